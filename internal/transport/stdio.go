package transport

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"batchrpc/internal/jsonrpc"
)

const maxLineSize = 10 * 1024 * 1024 // 10MB

// Stdio exchanges newline-delimited messages over a reader/writer pair
type Stdio struct {
	in      io.Reader
	out     io.Writer
	handler MessageHandler
	logger  zerolog.Logger

	writeMu sync.Mutex
	closed  bool
}

// NewStdio creates a new Stdio transport
func NewStdio(in io.Reader, out io.Writer, logger zerolog.Logger) *Stdio {
	return &Stdio{
		in:     in,
		out:    out,
		logger: logger.With().Str("transport", "stdio").Logger(),
	}
}

// OnMessage implements Transport
func (s *Stdio) OnMessage(h MessageHandler) {
	s.handler = h
}

// Run reads lines until EOF or ctx is done.
// Messages are handled one at a time in arrival order.
func (s *Stdio) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(trimSpace(line)) == 0 {
			continue
		}

		data := make([]byte, len(line))
		copy(data, line)

		if s.handler != nil {
			s.handler(ctx, data)
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Debug().Err(err).Msg("read error")
		return err
	}
	return nil
}

// Send implements Transport
func (s *Stdio) Send(_ context.Context, resp *jsonrpc.Response) error {
	data, err := resp.Bytes()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrClosed
	}
	data = append(data, '\n')
	_, err = s.out.Write(data)
	return err
}

// Close stops further writes
func (s *Stdio) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.closed = true
	return nil
}

func trimSpace(data []byte) []byte {
	for len(data) > 0 {
		switch data[0] {
		case ' ', '\t', '\r', '\n':
			data = data[1:]
		default:
			return data
		}
	}
	return data
}
