package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps server names to providers. Records with an empty server
// name use the default provider.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
}

// NewRegistry creates an empty registry whose default is defaultName.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultName: defaultName,
	}
}

// Register adds p under p.Name(), replacing any provider of that name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Resolve returns the provider for server, or the default when server is
// empty.
func (r *Registry) Resolve(server string) (Provider, error) {
	if server == "" {
		server = r.defaultName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[server]
	if !ok {
		return nil, &ProviderError{
			Provider:  server,
			Message:   fmt.Sprintf("no provider registered for server %q", server),
			Permanent: true,
		}
	}
	return p, nil
}

// Names returns the registered server names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered providers.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// NewProvider creates a provider from cfg.
func NewProvider(cfg Config) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	switch cfg.Type {
	case "smtp":
		return NewSMTP(cfg), nil
	case "stdout":
		return NewStdout(cfg), nil
	case "file":
		return NewFile(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}

// NewRegistryFromConfig builds a registry from cfgs. The first entry is the
// default provider.
func NewRegistryFromConfig(cfgs []Config) (*Registry, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}

	var reg *Registry
	for i, cfg := range cfgs {
		p, err := NewProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("provider %d: %w", i, err)
		}
		if reg == nil {
			reg = NewRegistry(p.Name())
		}
		reg.Register(p)
	}
	return reg, nil
}
