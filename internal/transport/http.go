package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"batchrpc/internal/jsonrpc"
)

// HTTPHandler serves JSON-RPC over HTTP POST.
// Responses produced while a request is processed are written as the HTTP
// response body: one object for a single message, an array for a batch,
// and 204 No Content when nothing was addressable.
type HTTPHandler struct {
	adapter     *Adapter
	maxBodySize int64
	logger      zerolog.Logger
}

// NewHTTPHandler creates a new HTTPHandler. maxBodySize 0 means no limit.
func NewHTTPHandler(adapter *Adapter, maxBodySize int64, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		adapter:     adapter,
		maxBodySize: maxBodySize,
		logger:      logger.With().Str("component", "http").Logger(),
	}
}

// ServeHTTP handles HTTP requests
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only accept POST requests
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		h.writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	// Read request body
	var body []byte
	var err error
	if h.maxBodySize > 0 {
		body, err = io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
		if err != nil {
			h.writeJSONRPCError(w, jsonrpc.NewIDNull(), jsonrpc.NewError(jsonrpc.CodeParseError, "failed to read request body"))
			return
		}
		if int64(len(body)) > h.maxBodySize {
			h.writeJSONRPCError(w, jsonrpc.NewIDNull(), jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "request body too large"))
			return
		}
	} else {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			h.writeJSONRPCError(w, jsonrpc.NewIDNull(), jsonrpc.NewError(jsonrpc.CodeParseError, "failed to read request body"))
			return
		}
	}

	collector := &responseCollector{}
	rejection := h.adapter.Dispatch(r.Context(), collector, body)
	responses := collector.close()

	if rejection != nil {
		h.writeResponse(w, rejection)
		return
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if jsonrpc.IsBatchPayload(body) {
		h.writeBatchResponse(w, responses)
		return
	}
	h.writeResponse(w, responses[0])
}

// writeResponse writes a JSON-RPC response
func (h *HTTPHandler) writeResponse(w http.ResponseWriter, resp *jsonrpc.Response) {
	data, err := resp.Bytes()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal response")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// writeBatchResponse writes a batch of JSON-RPC responses
func (h *HTTPHandler) writeBatchResponse(w http.ResponseWriter, responses []*jsonrpc.Response) {
	data, err := jsonrpc.MarshalBatchResponse(responses)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal batch response")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// writeJSONRPCError writes a JSON-RPC error response
func (h *HTTPHandler) writeJSONRPCError(w http.ResponseWriter, id jsonrpc.ID, rpcErr *jsonrpc.Error) {
	h.writeResponse(w, jsonrpc.NewErrorResponse(id, rpcErr))
}

// writeError writes a plain HTTP error
func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}

// responseCollector buffers the responses of one HTTP request
type responseCollector struct {
	mu        sync.Mutex
	responses []*jsonrpc.Response
	closed    bool
}

// Send implements batch.Sender
func (c *responseCollector) Send(_ context.Context, resp *jsonrpc.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.responses = append(c.responses, resp)
	return nil
}

// close stops collecting and returns what was sent
func (c *responseCollector) close() []*jsonrpc.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.responses
}
