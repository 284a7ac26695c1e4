package bus

import (
	"errors"
	"sort"
	"sync"
)

// Registry memoizes topic handles by name for the life of the process.
// Handles are never evicted.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	prefix  string
	topics  map[string]Topic
	closed  bool
}

// NewRegistry returns a registry that creates handles with factory. prefix is
// prepended to every name handed to the factory; the cache is keyed by the
// unprefixed name.
func NewRegistry(factory Factory, prefix string) *Registry {
	return &Registry{
		factory: factory,
		prefix:  prefix,
		topics:  make(map[string]Topic),
	}
}

// Topic returns the cached handle for name, creating it on first use. A
// factory error is returned and nothing is cached.
func (r *Registry) Topic(name string) (Topic, error) {
	if name == "" {
		return nil, ErrEmptyTopicName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.topics[name]; ok {
		return t, nil
	}
	if r.closed {
		return nil, errors.New("topic registry closed")
	}

	t, err := r.factory(r.prefix + name)
	if err != nil {
		return nil, err
	}
	r.topics[name] = t
	return t, nil
}

// Names lists the cached topic names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.topics))
	for n := range r.topics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close releases every handle. Only called at process exit.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, t := range r.topics {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
