// Package transport defines the request pipeline used to reach LLM providers:
// a Handler interface, composable Middleware, and the core handler that turns
// a Request into an HTTP round trip through a provider adapter.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
)

// ErrNilResponse is returned when an adapter produces neither a response nor an error.
var ErrNilResponse = errors.New("adapter returned nil response")

// Router selects the provider adapter serving a provider/model pair.
type Router interface {
	Pick(provider, model string) (ProviderAdapter, error)
}

// ProviderAdapter abstracts provider-specific HTTP request and response formats.
type ProviderAdapter interface {
	Build(ctx context.Context, req *Request) (*http.Request, error)
	Parse(httpResp *http.Response) (*Response, error)
	Name() string
}

// Handler processes one judge request.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware decorates a Handler.
type Middleware func(Handler) Handler

// Chain wraps h so that the first middleware is the outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// NewHTTPHandler returns the core handler performing provider HTTP calls.
func NewHTTPHandler(client *http.Client, router Router) Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpHandler{
		client: client,
		router: router,
		logger: slog.Default().With("component", "transport"),
	}
}

type httpHandler struct {
	client *http.Client
	router Router
	logger *slog.Logger
}

func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	adapter, err := h.router.Pick(req.Provider, req.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to select provider: %w", err)
	}

	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := adapter.Build(reqCtx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	httpResp, err := h.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			h.logger.Debug("response body close failed", "error", closeErr)
		}
	}()

	resp, err := adapter.Parse(httpResp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrInvalidResponse, ErrNilResponse)
	}

	resp.Provider = adapter.Name()
	if resp.Model == "" {
		resp.Model = req.Model
	}
	resp.Usage.LatencyMs = latency.Milliseconds()
	return resp, nil
}

// ProviderSwitch routes requests whose Provider has a dedicated handler
// (SDK-backed providers) and sends everything else to fallback.
func ProviderSwitch(fallback Handler, byProvider map[string]Handler) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if h, ok := byProvider[req.Provider]; ok {
			return h.Handle(ctx, req)
		}
		return fallback.Handle(ctx, req)
	})
}
