package llm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Router sends each chat to the provider configured for its model.
// Models without a route go to the default provider.
type Router struct {
	providers       map[string]Client
	routes          map[string]string // model → provider
	defaultProvider string
}

// NewRouter builds a router. The default and every route must name a
// provider in providers, so a typo in the model list fails at startup
// instead of on the first message.
func NewRouter(providers map[string]Client, routes map[string]string, defaultProvider string) (*Router, error) {
	if _, ok := providers[defaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q is not configured", defaultProvider)
	}
	for model, p := range routes {
		if _, ok := providers[p]; !ok {
			return nil, fmt.Errorf("model %q routes to unconfigured provider %q", model, p)
		}
	}
	return &Router{
		providers:       maps.Clone(providers),
		routes:          maps.Clone(routes),
		defaultProvider: defaultProvider,
	}, nil
}

// Provider returns the name of the provider that serves model.
func (r *Router) Provider(model string) string {
	if p, ok := r.routes[model]; ok {
		return p
	}
	return r.defaultProvider
}

// Chat sends the request to the provider that serves model. Errors are
// prefixed with the provider name.
func (r *Router) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	p := r.Provider(model)
	resp, err := r.providers[p].Chat(ctx, model, messages, tools)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return resp, nil
}

// Ping checks every provider and reports all that failed.
func (r *Router) Ping(ctx context.Context) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(r.providers)) {
		if err := r.providers[name].Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
