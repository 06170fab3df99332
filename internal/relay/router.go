package relay

import "fmt"

// BackendRouter maps engine names to model backends with a fallback default.
type BackendRouter struct {
	backends map[string]Completer
	fallback string
}

// NewBackendRouter creates a router with the given backends and a fallback
// engine name used when the requested engine is not found.
func NewBackendRouter(backends map[string]Completer, fallback string) *BackendRouter {
	return &BackendRouter{backends: backends, fallback: fallback}
}

// Route returns the backend for the given engine name, falling back to the default.
func (r *BackendRouter) Route(engine string) (Completer, error) {
	if backend, ok := r.backends[engine]; ok {
		return backend, nil
	}
	if backend, ok := r.backends[r.fallback]; ok {
		return backend, nil
	}
	return nil, fmt.Errorf("no analysis backend for engine %q", engine)
}

// Has reports whether the router has a backend for the given engine name.
func (r *BackendRouter) Has(engine string) bool {
	_, ok := r.backends[engine]
	return ok
}

// Engines returns the names of all registered backends.
func (r *BackendRouter) Engines() []string {
	names := make([]string, 0, len(r.backends))
	for k := range r.backends {
		names = append(names, k)
	}
	return names
}
