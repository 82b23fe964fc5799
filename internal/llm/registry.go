package llm

import "strings"

// Registry holds the configured provider adapters, keyed by backend
// name. Experiment lanes and the evaluation judge resolve their backend
// through one shared registry so a batch config can name any provider
// the pipeline was configured with.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under its lowercased name. A later
// registration for the same backend replaces the earlier one.
func (r *Registry) Register(p Provider) {
	if r == nil || p == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	if name == "" {
		return
	}
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[name] = p
}

// Get resolves a backend name case-insensitively. The second return
// reports whether the backend was configured.
func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil || r.providers == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}
