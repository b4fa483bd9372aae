package hostfuncs

import (
	"context"
	"fmt"
	"sort"
)

// HandlerRegistry is an immutable collection of named host functions.
// Handlers cannot be added or removed after construction, which keeps
// lookups lock-free during execution.
type HandlerRegistry struct {
	handlers map[string]ByteHandler
	names    []string
}

type registryBuilder struct {
	handlers   map[string]ByteHandler
	middleware []Middleware
	errs       []error
}

// RegistryOption configures registry construction.
type RegistryOption func(*registryBuilder)

// NewRegistry builds an immutable registry. Registering the same name
// twice is an error.
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{handlers: make(map[string]ByteHandler)}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	// Middleware wraps in FIFO order: the first registered middleware
	// is outermost.
	wrapped := make(map[string]ByteHandler, len(b.handlers))
	for name, handler := range b.handlers {
		h := handler
		for i := len(b.middleware) - 1; i >= 0; i-- {
			h = b.middleware[i](h)
		}
		wrapped[name] = h
	}

	return &HandlerRegistry{handlers: wrapped, names: names}, nil
}

// Invoke dispatches a guest call by function name. An unknown name
// returns a structured NOT_FOUND payload, not a Go error, so the guest
// sees a parseable response.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return NewNotFoundError(name).ToJSON(), nil
	}
	return handler(HostContextFrom(ctx, name), payload)
}

// Has reports whether a handler is registered under name.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the sorted handler names.
func (r *HandlerRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (b *registryBuilder) add(name string, handler ByteHandler) {
	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("handler name cannot be empty"))
		return
	}
	if _, exists := b.handlers[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate handler name: %q", name))
		return
	}
	b.handlers[name] = handler
}

// WithHandler registers a ByteHandler under name.
func WithHandler(name string, handler ByteHandler) RegistryOption {
	return func(b *registryBuilder) {
		b.add(name, handler)
	}
}

// WithMiddleware appends middleware. First added wraps outermost.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
