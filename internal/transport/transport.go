// Package transport connects byte-level message transports to the batch processor.
package transport

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"batchrpc/internal/batch"
	"batchrpc/internal/jsonrpc"
)

// ErrClosed is returned when sending on a closed transport
var ErrClosed = errors.New("transport closed")

// MessageHandler receives one framed inbound payload
type MessageHandler func(ctx context.Context, data []byte)

// Transport is a bidirectional message stream
type Transport interface {
	// Send emits a response to the peer
	Send(ctx context.Context, resp *jsonrpc.Response) error
	// OnMessage registers the hook called for every inbound payload
	OnMessage(h MessageHandler)
	// Run reads messages until ctx is done or the peer goes away
	Run(ctx context.Context) error
	// Close releases the underlying connection
	Close() error
}

type senderKey struct{}

// ContextWithSender attaches the transport's own sender to ctx
func ContextWithSender(ctx context.Context, s batch.Sender) context.Context {
	return context.WithValue(ctx, senderKey{}, s)
}

// ReplySender returns the sender a handler should reply through:
// the batch reply sender inside a batch, the transport's sender otherwise.
func ReplySender(ctx context.Context) (batch.Sender, bool) {
	if s, ok := batch.ReplySender(ctx); ok {
		return s, true
	}
	s, ok := ctx.Value(senderKey{}).(batch.Sender)
	return s, ok
}

// Adapter wraps a transport's message hook with batch processing
type Adapter struct {
	processor *batch.Processor
	handler   batch.Handler
	logger    zerolog.Logger
}

// NewAdapter creates a new Adapter
func NewAdapter(processor *batch.Processor, handler batch.Handler, logger zerolog.Logger) *Adapter {
	return &Adapter{
		processor: processor,
		handler:   handler,
		logger:    logger.With().Str("component", "transport").Logger(),
	}
}

// Attach installs the adapter as t's message hook.
// Rejections of malformed payloads are sent back through t.
func (a *Adapter) Attach(t Transport) {
	t.OnMessage(func(ctx context.Context, data []byte) {
		if rejection := a.Dispatch(ctx, t, data); rejection != nil {
			if err := t.Send(ctx, rejection); err != nil {
				a.logger.Debug().Err(err).Msg("failed to send rejection")
			}
		}
	})
}

// Dispatch processes one payload, replying through send.
// It returns the top-level error response for a payload that was rejected
// as a whole (parse error or batch policy violation), without sending it.
func (a *Adapter) Dispatch(ctx context.Context, send batch.Sender, data []byte) *jsonrpc.Response {
	ctx = ContextWithSender(ctx, send)

	err := a.processor.Process(ctx, data, a.handler, send)
	if err == nil {
		return nil
	}

	var verr *batch.ValidationError
	switch {
	case errors.Is(err, batch.ErrParse):
		a.logger.Debug().Err(err).Msg("unparseable payload")
		return jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.ErrParse)
	case errors.As(err, &verr):
		return jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(),
			jsonrpc.NewError(jsonrpc.CodeInvalidRequest, verr.Error()))
	default:
		// single message path: the handler owns its reply
		a.logger.Error().Err(err).Msg("message handler failed")
		return nil
	}
}
