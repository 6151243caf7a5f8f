package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"batchrpc/internal/jsonrpc"
)

// syncBuffer is a goroutine-safe log sink
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// entries returns the decoded log lines at the given level
func (b *syncBuffer) entries(t *testing.T, level string) []map[string]interface{} {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		if m["level"] == level {
			out = append(out, m)
		}
	}
	return out
}

func newTestLogger() (zerolog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return zerolog.New(buf).Level(zerolog.DebugLevel), buf
}

// recordingSender collects every response sent through it
type recordingSender struct {
	mu        sync.Mutex
	responses []*jsonrpc.Response
}

func (s *recordingSender) Send(_ context.Context, resp *jsonrpc.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return nil
}

func (s *recordingSender) all() []*jsonrpc.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*jsonrpc.Response, len(s.responses))
	copy(out, s.responses)
	return out
}

// byID groups sent responses by id text
func (s *recordingSender) byID() map[string][]*jsonrpc.Response {
	out := make(map[string][]*jsonrpc.Response)
	for _, resp := range s.all() {
		out[resp.ID.String()] = append(out[resp.ID.String()], resp)
	}
	return out
}

func (s *recordingSender) timeouts() []*jsonrpc.Response {
	var out []*jsonrpc.Response
	for _, resp := range s.all() {
		if resp.HasError() && resp.Error.Code == jsonrpc.CodeServerError {
			out = append(out, resp)
		}
	}
	return out
}

// orderRecorder records values in the order they arrive
type orderRecorder struct {
	mu     sync.Mutex
	values []string
}

func (o *orderRecorder) add(v string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values = append(o.values, v)
}

func (o *orderRecorder) get() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.values))
	copy(out, o.values)
	return out
}

// requests builds a batch of requests with numeric ids
func requests(ids ...int) []*jsonrpc.Request {
	out := make([]*jsonrpc.Request, len(ids))
	for i, id := range ids {
		out[i] = &jsonrpc.Request{
			JSONRPC: jsonrpc.Version,
			Method:  "test",
			ID:      jsonrpc.NewIDInt(int64(id)),
		}
	}
	return out
}

func notification(method string) *jsonrpc.Request {
	return &jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: method}
}

// payload encodes messages as a JSON array
func payload(t *testing.T, messages ...*jsonrpc.Request) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(messages)
	require.NoError(t, err)
	return data
}

// reply sends a result for req through the batch reply sender
func reply(ctx context.Context, req *jsonrpc.Request, result interface{}) error {
	if req.IsNotification() {
		return nil
	}
	sender, ok := ReplySender(ctx)
	if !ok {
		return fmt.Errorf("no reply sender")
	}
	resp, err := jsonrpc.NewResponse(req.ID, result)
	if err != nil {
		return err
	}
	return sender.Send(ctx, resp)
}
