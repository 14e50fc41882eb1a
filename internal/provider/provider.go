// Package provider abstracts the external 3D generation backends and the
// registry that selects between them.
package provider

import (
	"context"
	"time"
)

// Result is the outcome of one provider call.
type Result struct {
	AssetPath string
	Duration  time.Duration
}

// Provider is a single generation backend. Generate produces an asset for
// the prompt (and optional reference image) and reports the wall-clock cost
// of producing it.
type Provider interface {
	Slug() string
	Generate(ctx context.Context, prompt, imageRef string) (Result, error)
}

// Registry maps provider slugs to providers. Construct once at startup and
// inject; it is immutable afterwards.
type Registry struct {
	providers   map[string]Provider
	defaultSlug string
}

// NewRegistry builds a registry over the given providers. defaultSlug names
// the provider returned for unknown slugs; it must be among providers.
func NewRegistry(defaultSlug string, providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Slug()] = p
	}
	return &Registry{providers: m, defaultSlug: defaultSlug}
}

// Resolve returns the provider for slug, falling back to the default when
// the slug is unknown. It never fails: an unknown provider id degrades to
// the default rather than failing the request.
func (r *Registry) Resolve(slug string) Provider {
	if p, ok := r.providers[slug]; ok {
		return p
	}
	return r.providers[r.defaultSlug]
}

// Slugs returns the registered provider slugs.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.providers))
	for s := range r.providers {
		slugs = append(slugs, s)
	}
	return slugs
}

// Builtin assembles the default provider set writing assets into modelDir.
// The hosted backends (meshy, kaedim, tripoSR) are stubs that delegate to
// the mock until real API integrations land. An unrecognized defaultSlug
// falls back to "meshy".
func Builtin(modelDir, defaultSlug string) *Registry {
	mock := NewMock(modelDir)
	providers := []Provider{
		mock,
		&stub{slug: "meshy", inner: mock},
		&stub{slug: "kaedim", inner: mock},
		&stub{slug: "tripoSR", inner: mock},
	}
	known := false
	for _, p := range providers {
		if p.Slug() == defaultSlug {
			known = true
			break
		}
	}
	if !known {
		defaultSlug = "meshy"
	}
	return NewRegistry(defaultSlug, providers...)
}

// stub is a named placeholder for a hosted backend.
type stub struct {
	slug  string
	inner Provider
}

func (s *stub) Slug() string { return s.slug }

func (s *stub) Generate(ctx context.Context, prompt, imageRef string) (Result, error) {
	return s.inner.Generate(ctx, prompt, imageRef)
}
