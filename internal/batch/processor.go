package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"batchrpc/internal/jsonrpc"
)

// Processor routes one inbound payload either straight to the handler
// (single message) or through validation and an executor (batch).
type Processor struct {
	cfg        Config
	sequential Executor
	parallel   Executor
	logger     zerolog.Logger
}

// NewProcessor creates a new Processor
func NewProcessor(cfg Config, logger zerolog.Logger) *Processor {
	logger = logger.With().Str("component", "batch").Logger()
	return &Processor{
		cfg:        cfg,
		sequential: NewSequentialExecutor(logger),
		parallel:   NewParallelExecutor(logger),
		logger:     logger,
	}
}

// Config returns the processor's batch settings
func (p *Processor) Config() Config {
	return p.cfg
}

// Process handles one inbound payload.
//
// A single message is passed to h with ctx unchanged and h's error is returned.
// A batch is validated first; a *ValidationError or a wrapped ErrParse is
// returned without invoking h. Handler errors inside a batch are logged and
// never returned. send is used for synthesized timeout errors and, through
// ReplySender, for the handlers' own replies.
func (p *Processor) Process(ctx context.Context, payload json.RawMessage, h Handler, send Sender) error {
	info, err := Classify(payload)
	if err != nil {
		return err
	}

	if info == nil {
		req, err := jsonrpc.ParseRequest(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrParse, err)
		}
		return h.Handle(ctx, req)
	}

	messages, err := Validate(payload, p.cfg)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("batchId", info.ID).
			Int("size", info.Size).
			Msg("batch rejected")
		return err
	}

	b := &Batch{
		ID:       info.ID,
		Messages: messages,
		Timeout:  p.cfg.Timeout,
	}

	p.logger.Debug().
		Str("batchId", b.ID).
		Int("size", b.Size()).
		Bool("parallel", p.cfg.Parallel).
		Dur("timeout", b.Timeout).
		Msg("executing batch")

	p.executor().Execute(ctx, b, h, send)

	p.logger.Debug().
		Str("batchId", b.ID).
		Msg("batch completed")

	return nil
}

func (p *Processor) executor() Executor {
	if p.cfg.Parallel {
		return p.parallel
	}
	return p.sequential
}
