package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"batchrpc/internal/jsonrpc"
)

// TimeoutMessage is the error message sent for requests cut off by the batch deadline
const TimeoutMessage = "Batch timeout exceeded"

// TimeoutData is the data payload of a batch timeout error
type TimeoutData struct {
	TimeoutMs int64 `json:"timeoutMs"`
	ElapsedMs int64 `json:"elapsedMs"`
}

// NewTimeoutResponse builds the error response for a request that missed the deadline
func NewTimeoutResponse(id jsonrpc.ID, timeout, elapsed time.Duration) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(id, jsonrpc.NewErrorWithData(
		jsonrpc.CodeServerError,
		TimeoutMessage,
		TimeoutData{
			TimeoutMs: timeout.Milliseconds(),
			ElapsedMs: elapsed.Milliseconds(),
		},
	))
}

// replyGuard forwards at most one response per request id of a batch
type replyGuard struct {
	next     Sender
	batchID  string
	logger   zerolog.Logger
	mu       sync.Mutex
	answered map[string]struct{}
}

func newReplyGuard(next Sender, batchID string, size int, logger zerolog.Logger) *replyGuard {
	return &replyGuard{
		next:     next,
		batchID:  batchID,
		logger:   logger,
		answered: make(map[string]struct{}, size),
	}
}

// claim marks id as answered and reports whether it was still open
func (g *replyGuard) claim(id jsonrpc.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := id.Key()
	if _, ok := g.answered[key]; ok {
		return false
	}
	g.answered[key] = struct{}{}
	return true
}

// Send implements Sender
func (g *replyGuard) Send(ctx context.Context, resp *jsonrpc.Response) error {
	if !resp.ID.IsNull() && !g.claim(resp.ID) {
		g.logger.Debug().
			Str("batchId", g.batchID).
			Str("id", resp.ID.String()).
			Msg("discarding reply for already answered request")
		return nil
	}
	return g.next.Send(ctx, resp)
}

// sendTimeout answers req with a timeout error unless it was already answered.
// Notifications never get a response.
func (r *run) sendTimeout(ctx context.Context, index int) {
	req := r.batch.Messages[index]
	if req.IsNotification() {
		return
	}
	if !r.guard.claim(req.ID) {
		return
	}

	elapsed := time.Since(r.start)
	r.logger.Warn().
		Str("batchId", r.batch.ID).
		Int("index", index).
		Str("id", req.ID.String()).
		Int64("timeoutMs", r.batch.Timeout.Milliseconds()).
		Int64("elapsedMs", elapsed.Milliseconds()).
		Msg("batch entry timed out")

	resp := NewTimeoutResponse(req.ID, r.batch.Timeout, elapsed)
	if err := r.guard.next.Send(ctx, resp); err != nil {
		r.logger.Error().
			Err(err).
			Str("batchId", r.batch.ID).
			Int("index", index).
			Msg("failed to send timeout error")
	}
}
