package server

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"batchrpc/internal/cache"
	"batchrpc/internal/jsonrpc"
	"batchrpc/internal/transport"
)

// ErrNoSender is returned when a request arrives without a way to reply
var ErrNoSender = errors.New("no reply sender in context")

// MethodFunc executes one method call
type MethodFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// MethodOption configures a registered method
type MethodOption func(*method)

// Cacheable marks a method whose successful results may be served from the cache
func Cacheable() MethodOption {
	return func(m *method) {
		m.cacheable = true
	}
}

type method struct {
	fn        MethodFunc
	cacheable bool
}

// Dispatcher routes requests to registered methods and sends their replies.
// It implements batch.Handler.
type Dispatcher struct {
	mu      sync.RWMutex
	methods map[string]*method
	cache   cache.Cache
	logger  zerolog.Logger
}

// NewDispatcher creates a new Dispatcher. A nil cache disables caching.
func NewDispatcher(c cache.Cache, logger zerolog.Logger) *Dispatcher {
	if c == nil {
		c = cache.NewNoopCache()
	}
	return &Dispatcher{
		methods: make(map[string]*method),
		cache:   c,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Register adds or replaces a method
func (d *Dispatcher) Register(name string, fn MethodFunc, opts ...MethodOption) {
	m := &method{fn: fn}
	for _, opt := range opts {
		opt(m)
	}

	d.mu.Lock()
	d.methods[name] = m
	d.mu.Unlock()
}

// Methods returns the registered method names, sorted
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) lookup(name string) (*method, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.methods[name]
	return m, ok
}

// Handle implements batch.Handler.
// Requests are answered through transport.ReplySender(ctx). Notifications run
// without a reply and their failures are returned to the caller for logging.
func (d *Dispatcher) Handle(ctx context.Context, req *jsonrpc.Request) error {
	if err := req.Validate(); err != nil {
		return d.reply(ctx, req, jsonrpc.ErrInvalidRequest.WithData(err.Error()))
	}

	m, ok := d.lookup(req.Method)
	if !ok {
		return d.reply(ctx, req, jsonrpc.ErrMethodNotFound)
	}

	var cacheKey string
	if m.cacheable && !req.IsNotification() {
		cacheKey = cache.Key(req.Method, req.Params)
		if data, found := d.cache.Get(cacheKey); found {
			d.logger.Debug().
				Str("method", req.Method).
				Str("cacheKey", cacheKey).
				Msg("cache hit")
			return d.send(ctx, jsonrpc.NewResponseRaw(req.ID, data))
		}
	}

	result, err := m.fn(ctx, req.Params)
	if err != nil {
		if req.IsNotification() {
			return err
		}
		var rpcErr *jsonrpc.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = jsonrpc.ErrInternal.WithData(err.Error())
		}
		return d.reply(ctx, req, rpcErr)
	}

	if req.IsNotification() {
		return nil
	}

	resp, err := jsonrpc.NewResponse(req.ID, result)
	if err != nil {
		return d.reply(ctx, req, jsonrpc.ErrInternal.WithData(err.Error()))
	}
	if cacheKey != "" {
		d.cache.Set(cacheKey, resp.Result)
	}
	return d.send(ctx, resp)
}

// reply sends an error response unless req is a notification
func (d *Dispatcher) reply(ctx context.Context, req *jsonrpc.Request, rpcErr *jsonrpc.Error) error {
	if req.IsNotification() {
		d.logger.Debug().
			Str("method", req.Method).
			Str("error", rpcErr.Message).
			Msg("notification failed")
		return nil
	}
	return d.send(ctx, jsonrpc.NewErrorResponse(req.ID, rpcErr))
}

func (d *Dispatcher) send(ctx context.Context, resp *jsonrpc.Response) error {
	sender, ok := transport.ReplySender(ctx)
	if !ok {
		return ErrNoSender
	}
	return sender.Send(ctx, resp)
}
