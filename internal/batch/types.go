// Package batch executes JSON-RPC array payloads against a caller-supplied handler.
//
// A payload that is a single message bypasses this package's batch machinery
// entirely. An array payload is classified, validated and then run either
// sequentially (in array order, awaiting each entry) or in parallel (all
// entries launched in array order, awaited together). Every entry's handler
// sees a read-only Context describing its position in the batch through the
// context.Context it is called with.
//
// When a timeout is configured, requests that did not complete before the
// deadline are answered with a -32000 "Batch timeout exceeded" error. Handlers
// are never cancelled; a handler still running at the deadline keeps running
// and its reply, if any, is dropped.
package batch

import (
	"context"
	"time"

	"batchrpc/internal/jsonrpc"
)

// Config holds batch execution settings
type Config struct {
	// MaxBatchSize limits the number of entries in one batch. 0 means unbounded.
	MaxBatchSize int
	// Parallel selects the parallel executor.
	Parallel bool
	// Timeout is the wall-clock budget for a whole batch. 0 means unbounded.
	Timeout time.Duration
}

// Handler processes one inbound message.
// The core only looks at whether it returned an error.
type Handler interface {
	Handle(ctx context.Context, req *jsonrpc.Request) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, req *jsonrpc.Request) error

// Handle calls f(ctx, req)
func (f HandlerFunc) Handle(ctx context.Context, req *jsonrpc.Request) error {
	return f(ctx, req)
}

// Sender emits a response outside the handler's normal return path
type Sender interface {
	Send(ctx context.Context, resp *jsonrpc.Response) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, resp *jsonrpc.Response) error

// Send calls f(ctx, resp)
func (f SenderFunc) Send(ctx context.Context, resp *jsonrpc.Response) error {
	return f(ctx, resp)
}

// Batch is one validated array payload ready for execution
type Batch struct {
	ID       string
	Messages []*jsonrpc.Request
	Timeout  time.Duration
}

// Size returns the number of entries
func (b *Batch) Size() int {
	return len(b.Messages)
}
