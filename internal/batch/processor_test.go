package batch

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchrpc/internal/jsonrpc"
)

func TestProcess_SingleMessageHasNoBatchContext(t *testing.T) {
	p := NewProcessor(Config{Parallel: true, Timeout: time.Second}, zerolog.Nop())

	called := false
	h := HandlerFunc(func(ctx context.Context, req *jsonrpc.Request) error {
		called = true
		_, ok := Current(ctx)
		assert.False(t, ok)
		_, ok = ReplySender(ctx)
		assert.False(t, ok)
		assert.Equal(t, "x", req.Method)
		return nil
	})

	err := p.Process(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","method":"x","id":1}`), h, &recordingSender{})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestProcess_SingleMessageErrorReturned(t *testing.T) {
	p := NewProcessor(Config{}, zerolog.Nop())
	want := errors.New("handler failed")
	h := HandlerFunc(func(context.Context, *jsonrpc.Request) error { return want })

	err := p.Process(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","method":"x","id":1}`), h, &recordingSender{})
	assert.Equal(t, want, err)
}

func TestProcess_ParseErrors(t *testing.T) {
	p := NewProcessor(Config{}, zerolog.Nop())
	h := HandlerFunc(func(context.Context, *jsonrpc.Request) error {
		t.Fatal("handler must not run")
		return nil
	})

	for _, body := range []string{`{"jsonrpc":`, `[{"jsonrpc":`} {
		err := p.Process(context.Background(), json.RawMessage(body), h, &recordingSender{})
		assert.True(t, errors.Is(err, ErrParse), "body %s: %v", body, err)
	}
}

func TestProcess_ValidationRejectsWholeBatch(t *testing.T) {
	p := NewProcessor(Config{MaxBatchSize: 2}, zerolog.Nop())
	var calls atomic.Int32
	h := HandlerFunc(func(context.Context, *jsonrpc.Request) error {
		calls.Add(1)
		return nil
	})

	tests := []struct {
		body string
		want error
	}{
		{`[]`, ErrEmptyBatch},
		{`[{"jsonrpc":"2.0","method":"m","id":1},{"jsonrpc":"2.0","method":"m","id":2},{"jsonrpc":"2.0","method":"m","id":3}]`, ErrBatchTooLarge},
		{`[{"jsonrpc":"2.0","method":"m","id":1},{"jsonrpc":"2.0","method":"m","id":1}]`, ErrDuplicateID},
	}
	for _, tt := range tests {
		err := p.Process(context.Background(), json.RawMessage(tt.body), h, &recordingSender{})
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr))
		assert.True(t, errors.Is(err, tt.want))
	}
	assert.Zero(t, calls.Load())
}

func TestProcess_BatchUsesConfiguredExecutor(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		p := NewProcessor(Config{Parallel: parallel}, zerolog.Nop())
		sender := &recordingSender{}
		h := HandlerFunc(func(ctx context.Context, req *jsonrpc.Request) error {
			bc, ok := Current(ctx)
			if !ok {
				return errors.New("no batch context")
			}
			return reply(ctx, req, bc)
		})

		body := payload(t, append(requests(1, 2), notification("n"))...)
		require.NoError(t, p.Process(context.Background(), body, h, sender))

		resps := sender.all()
		require.Len(t, resps, 2)
		for _, resp := range resps {
			var bc map[string]interface{}
			require.NoError(t, resp.GetResultAs(&bc))
			assert.Equal(t, parallel, bc["parallel"])
			assert.Equal(t, float64(3), bc["size"])
			_, hasTimeout := bc["timeout"]
			assert.False(t, hasTimeout)
		}
	}
}

func TestProcess_TimeoutErrorsUseTransportSender(t *testing.T) {
	p := NewProcessor(Config{Parallel: true, Timeout: 20 * time.Millisecond}, zerolog.Nop())
	sender := &recordingSender{}
	h := HandlerFunc(func(ctx context.Context, req *jsonrpc.Request) error {
		time.Sleep(100 * time.Millisecond)
		return reply(ctx, req, "late")
	})

	require.NoError(t, p.Process(context.Background(), payload(t, requests(1, 2)...), h, sender))

	timeouts := sender.timeouts()
	require.Len(t, timeouts, 2)
	for _, resp := range timeouts {
		assertTimeoutError(t, resp, 20*time.Millisecond)
	}
}
