package batch

import (
	"context"
	"encoding/json"
	"time"
)

// Context describes the batch entry a handler is running for.
// It is built immediately before the handler is invoked and never modified.
type Context struct {
	BatchID  string
	Size     int
	Index    int
	Parallel bool

	// Timeout, StartTime and Elapsed are zero when no timeout is configured.
	Timeout   time.Duration
	StartTime time.Time
	Elapsed   time.Duration
}

// HasTimeout reports whether the batch runs under a deadline
func (c Context) HasTimeout() bool {
	return c.Timeout > 0
}

// Deadline returns the instant the batch budget runs out
func (c Context) Deadline() (time.Time, bool) {
	if !c.HasTimeout() {
		return time.Time{}, false
	}
	return c.StartTime.Add(c.Timeout), true
}

type contextJSON struct {
	BatchID   string `json:"batchId"`
	Size      int    `json:"size"`
	Index     int    `json:"index"`
	Parallel  bool   `json:"parallel"`
	Timeout   *int64 `json:"timeout,omitempty"`
	StartTime *int64 `json:"startTime,omitempty"`
	ElapsedMs *int64 `json:"elapsedMs,omitempty"`
}

// MarshalJSON encodes durations as milliseconds and the start time as epoch milliseconds
func (c Context) MarshalJSON() ([]byte, error) {
	out := contextJSON{
		BatchID:  c.BatchID,
		Size:     c.Size,
		Index:    c.Index,
		Parallel: c.Parallel,
	}
	if c.HasTimeout() {
		timeout := c.Timeout.Milliseconds()
		start := c.StartTime.UnixMilli()
		elapsed := c.Elapsed.Milliseconds()
		out.Timeout = &timeout
		out.StartTime = &start
		out.ElapsedMs = &elapsed
	}
	return json.Marshal(out)
}

type contextKey struct{}

type replyKey struct{}

// Run calls fn with bc bound as the current batch context.
// Code reached from fn through the ctx it receives sees bc via Current;
// concurrent Run calls never observe each other's binding.
func Run(ctx context.Context, bc Context, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, contextKey{}, bc))
}

// Current returns the batch context bound to ctx.
// ok is false outside any Run, including for single non-batch messages.
func Current(ctx context.Context) (bc Context, ok bool) {
	bc, ok = ctx.Value(contextKey{}).(Context)
	return bc, ok
}

// withReplySender attaches the per-batch reply sender
func withReplySender(ctx context.Context, s Sender) context.Context {
	return context.WithValue(ctx, replyKey{}, s)
}

// ReplySender returns the sender a handler running inside a batch must use
// for its reply. It drops any reply for a request that was already answered,
// e.g. with a timeout error. ok is false outside a batch.
func ReplySender(ctx context.Context) (s Sender, ok bool) {
	s, ok = ctx.Value(replyKey{}).(Sender)
	return s, ok
}
