// Package provider defines the interface to hosted text-generation models.
package provider

import (
	"context"
	"strings"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

// Provider generates raw model output for a prompt.
type Provider interface {
	Name() string

	// Generate runs one completion against the named model and returns the
	// raw model text.
	Generate(ctx context.Context, model, prompt string, params domain.GenerationParams) (string, error)
}

// Registry resolves model names to providers.
type Registry struct {
	byName map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

// Register adds a provider under its name.
func (r *Registry) Register(p Provider) {
	r.byName[p.Name()] = p
}

// Resolve returns the provider serving the given model, or an API error
// when no configured provider can serve it.
func (r *Registry) Resolve(model string) (Provider, error) {
	if strings.HasPrefix(model, "gemini-") {
		if p, ok := r.byName["gemini"]; ok {
			return p, nil
		}
		return nil, domain.NewAPIError(domain.ErrorTypeInvalidRequest,
			"Gemini models are not configured on this server").WithParam("model")
	}
	if p, ok := r.byName[model]; ok {
		return p, nil
	}
	return nil, domain.NewAPIError(domain.ErrorTypeInvalidRequest,
		"model "+model+" requires local inference, which is not available on this server").WithParam("model")
}
