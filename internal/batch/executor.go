package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Executor runs every entry of a validated batch against a handler.
// Execute returns once each entry has either finished or been timed out.
type Executor interface {
	Execute(ctx context.Context, b *Batch, h Handler, send Sender)
}

// NewExecutor returns the parallel or the sequential executor
func NewExecutor(parallel bool, logger zerolog.Logger) Executor {
	if parallel {
		return NewParallelExecutor(logger)
	}
	return NewSequentialExecutor(logger)
}

// run is the state of one batch invocation
type run struct {
	batch    *Batch
	handler  Handler
	guard    *replyGuard
	parallel bool
	start    time.Time
	timedOut []atomic.Bool
	logger   zerolog.Logger
}

func newRun(b *Batch, h Handler, send Sender, parallel bool, logger zerolog.Logger) *run {
	return &run{
		batch:    b,
		handler:  h,
		guard:    newReplyGuard(send, b.ID, b.Size(), logger),
		parallel: parallel,
		start:    time.Now(),
		timedOut: make([]atomic.Bool, b.Size()),
		logger:   logger,
	}
}

// entryContext builds the batch context for the entry at index
func (r *run) entryContext(index int) Context {
	bc := Context{
		BatchID:  r.batch.ID,
		Size:     r.batch.Size(),
		Index:    index,
		Parallel: r.parallel,
	}
	if r.batch.Timeout > 0 {
		bc.Timeout = r.batch.Timeout
		bc.StartTime = r.start
		bc.Elapsed = time.Since(r.start)
	}
	return bc
}

// invoke calls the handler for the entry at index under its batch context.
// started, if not nil, is closed right before the handler is called.
// Panics are converted into errors.
// The handler keeps the caller's context values but not its cancellation:
// an entry abandoned at the deadline still runs to completion.
func (r *run) invoke(ctx context.Context, index int, started chan<- struct{}) (err error) {
	bc := r.entryContext(index)
	ctx = withReplySender(context.WithoutCancel(ctx), r.guard)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()

	return Run(ctx, bc, func(ctx context.Context) error {
		if started != nil {
			close(started)
		}
		return r.handler.Handle(ctx, r.batch.Messages[index])
	})
}

// logFailure records a handler error for the entry at index
func (r *run) logFailure(index int, err error) {
	req := r.batch.Messages[index]
	if r.timedOut[index].Load() {
		r.logger.Debug().
			Err(err).
			Str("batchId", r.batch.ID).
			Int("index", index).
			Msg("discarding result of timed out batch entry")
		return
	}
	r.logger.Error().
		Err(err).
		Str("batchId", r.batch.ID).
		Int("index", index).
		Str("method", req.Method).
		Msg("batch entry failed")
}

// SequentialExecutor runs entries one at a time in array order.
// Once the deadline has passed no further handler is started.
type SequentialExecutor struct {
	logger zerolog.Logger
}

// NewSequentialExecutor creates a new SequentialExecutor
func NewSequentialExecutor(logger zerolog.Logger) *SequentialExecutor {
	return &SequentialExecutor{logger: logger}
}

// Execute implements Executor
func (e *SequentialExecutor) Execute(ctx context.Context, b *Batch, h Handler, send Sender) {
	r := newRun(b, h, send, false, e.logger)

	for i := range b.Messages {
		if b.Timeout > 0 && time.Since(r.start) > b.Timeout {
			for j := i; j < b.Size(); j++ {
				r.timedOut[j].Store(true)
				r.sendTimeout(ctx, j)
			}
			return
		}

		if err := r.invoke(ctx, i, nil); err != nil {
			r.logFailure(i, err)
		}
	}
}

// ParallelExecutor launches every entry without waiting for earlier ones.
// Handlers are invoked in array order; completion order is unconstrained.
// Entries still running at the deadline are answered with a timeout error
// and left to finish in the background.
type ParallelExecutor struct {
	logger zerolog.Logger
}

// NewParallelExecutor creates a new ParallelExecutor
func NewParallelExecutor(logger zerolog.Logger) *ParallelExecutor {
	return &ParallelExecutor{logger: logger}
}

// Execute implements Executor
func (e *ParallelExecutor) Execute(ctx context.Context, b *Batch, h Handler, send Sender) {
	r := newRun(b, h, send, true, e.logger)

	done := make([]chan struct{}, b.Size())
	for i := range b.Messages {
		done[i] = make(chan struct{})
		started := make(chan struct{})

		go func(i int) {
			defer close(done[i])
			if err := r.invoke(ctx, i, started); err != nil {
				r.logFailure(i, err)
			}
		}(i)

		// the handler may panic before it signals
		select {
		case <-started:
		case <-done[i]:
		}
	}

	var deadline <-chan time.Time
	if b.Timeout > 0 {
		timer := time.NewTimer(time.Until(r.start.Add(b.Timeout)))
		defer timer.Stop()
		deadline = timer.C
	}

	expired := false
	for i := range done {
		if expired {
			select {
			case <-done[i]:
			default:
				r.expire(ctx, i)
			}
			continue
		}

		select {
		case <-done[i]:
		case <-deadline:
			expired = true
			r.expire(ctx, i)
		}
	}
}

// expire abandons the entry at index; its handler keeps running
func (r *run) expire(ctx context.Context, index int) {
	r.timedOut[index].Store(true)
	r.sendTimeout(ctx, index)
}
