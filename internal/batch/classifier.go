package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"batchrpc/internal/jsonrpc"
)

// ErrParse is returned when a payload is not valid JSON
var ErrParse = errors.New("parse error")

// Info describes a payload that was classified as a batch
type Info struct {
	ID   string
	Size int
}

// Classify reports whether payload is a batch.
// It returns nil if payload is not an array. Contents are not validated.
func Classify(payload json.RawMessage) (*Info, error) {
	if !jsonrpc.IsBatchPayload(payload) {
		return nil, nil
	}

	size, err := countElements(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return &Info{
		ID:   NewID(),
		Size: size,
	}, nil
}

// NewID generates a batch identifier from the current time and a random UUID
func NewID() string {
	return "batch-" + strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + uuid.NewString()
}

// countElements counts top-level array elements without decoding them
func countElements(payload []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))

	tok, err := dec.Token()
	if err != nil {
		return 0, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return 0, fmt.Errorf("expected array")
	}

	n := 0
	for dec.More() {
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return 0, err
		}
		n++
	}

	if _, err := dec.Token(); err != nil {
		return 0, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return 0, fmt.Errorf("unexpected data after array")
	}

	return n, nil
}
