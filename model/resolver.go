package model

import (
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/novelmesh/core"
)

// Settings are the per-agent generation parameters passed to a provider.
type Settings struct {
	Name        string
	Temperature float64
	MaxTokens   int
}

// ProviderFunc constructs a model for a provider-specific model name.
type ProviderFunc func(s Settings) (Model, error)

// Resolver maps "provider/model-name" identifiers to concrete models.
type Resolver struct {
	mu        sync.RWMutex
	providers map[string]ProviderFunc
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{providers: map[string]ProviderFunc{}}
}

// Register binds a provider prefix such as "anthropic" or "openai".
func (r *Resolver) Register(provider string, fn ProviderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(provider)] = fn
}

// Providers returns the registered provider prefixes, sorted.
func (r *Resolver) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for p := range r.providers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Resolve builds the model named by id. Malformed identifiers and unknown
// providers return a *core.ConfigurationError.
func (r *Resolver) Resolve(id string, temperature float64, maxTokens int) (Model, error) {
	provider, name, ok := strings.Cut(id, "/")
	if !ok || provider == "" || name == "" {
		return nil, core.NewConfigurationError("model identifier %q must have the form provider/model", id)
	}
	r.mu.RLock()
	fn, ok := r.providers[strings.ToLower(provider)]
	r.mu.RUnlock()
	if !ok {
		return nil, core.NewConfigurationError("unknown model provider %q", provider)
	}
	m, err := fn(Settings{Name: name, Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return nil, &core.ConfigurationError{Msg: "resolve model " + id, Err: err}
	}
	return m, nil
}

// RegisterMock binds the "mock" provider to MockModel instances. Every
// resolution returns a fresh mock configured with fallback.
func (r *Resolver) RegisterMock(fallback string) {
	r.Register("mock", func(s Settings) (Model, error) {
		m := NewMockModel(s.Name, "mock")
		m.SetFallback(fallback)
		return m, nil
	})
}
