package providers

import (
	"fmt"

	"github.com/oscarlaird/gmath/internal/llm/configuration"
	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

// Router maps provider names to HTTP adapters. Google is served by
// GeminiHandler and never reaches the router.
type Router struct {
	adapters map[string]transport.ProviderAdapter
}

// NewRouter builds adapters for every configured HTTP provider.
func NewRouter(cfgs map[string]configuration.ProviderConfig) *Router {
	r := &Router{adapters: make(map[string]transport.ProviderAdapter)}
	for name, cfg := range cfgs {
		switch name {
		case configuration.ProviderOpenAI:
			r.adapters[name] = NewOpenAIAdapter(cfg)
		case configuration.ProviderAnthropic:
			r.adapters[name] = NewAnthropicAdapter(cfg)
		}
	}
	return r
}

// Pick implements transport.Router.
func (r *Router) Pick(provider, _ string) (transport.ProviderAdapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, provider)
	}
	return adapter, nil
}
