package batch

import (
	"encoding/json"
	"errors"
	"fmt"

	"batchrpc/internal/jsonrpc"
)

// Batch policy errors
var (
	ErrNotArray      = errors.New("batch must be an array")
	ErrEmptyBatch    = errors.New("batch cannot be empty")
	ErrBatchTooLarge = errors.New("batch too large")
	ErrInvalidEntry  = errors.New("invalid batch entry")
	ErrDuplicateID   = errors.New("duplicate request id")
)

// ValidationError rejects a whole batch before any entry is processed
type ValidationError struct {
	msg string
	err error
}

// Error implements error
func (e *ValidationError) Error() string {
	return e.msg
}

// Unwrap returns the policy error this validation error wraps
func (e *ValidationError) Unwrap() error {
	return e.err
}

func newValidationError(err error, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		msg: fmt.Sprintf(format, args...),
		err: err,
	}
}

// Validate enforces structural and policy constraints on an array payload
// and returns the decoded messages in array order.
//
// Checks run in this order: array shape, emptiness, size limit, entry shape,
// duplicate request ids. Notifications never take part in the duplicate check.
func Validate(payload json.RawMessage, cfg Config) ([]*jsonrpc.Request, error) {
	if !jsonrpc.IsBatchPayload(payload) {
		return nil, newValidationError(ErrNotArray, "batch must be an array")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if len(entries) == 0 {
		return nil, newValidationError(ErrEmptyBatch, "batch cannot be empty")
	}

	if cfg.MaxBatchSize > 0 && len(entries) > cfg.MaxBatchSize {
		return nil, newValidationError(ErrBatchTooLarge,
			"batch size %d exceeds limit %d", len(entries), cfg.MaxBatchSize)
	}

	messages := make([]*jsonrpc.Request, len(entries))
	for i, raw := range entries {
		var req jsonrpc.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, newValidationError(ErrInvalidEntry, "batch entry %d is not a valid message: %v", i, err)
		}
		messages[i] = &req
	}

	if err := checkDuplicateIDs(messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// checkDuplicateIDs fails if two requests share an id
func checkDuplicateIDs(messages []*jsonrpc.Request) error {
	seen := make(map[string]int, len(messages))
	for i, msg := range messages {
		if msg.IsNotification() {
			continue
		}
		key := msg.ID.Key()
		if first, ok := seen[key]; ok {
			return newValidationError(ErrDuplicateID,
				"duplicate request id in batch: %s (entries %d and %d)", msg.ID.String(), first, i)
		}
		seen[key] = i
	}
	return nil
}
