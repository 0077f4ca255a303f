package vm

import (
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Registry: loaded classes and methods
// ---------------------------------------------------------------------------

// Registry maps class names to classes and signatures to methods.
// It is filled once by Load and read during execution; registration
// replaces any previous entry under the same key.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*Class
	methods map[string]*Method
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*Class),
		methods: make(map[string]*Method),
	}
}

// RegisterClass inserts or replaces a class.
// Returns the previous class with this name, or nil.
func (r *Registry) RegisterClass(c *Class) *Class {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.classes[c.Name]
	r.classes[c.Name] = c
	return old
}

// RegisterMethod inserts or replaces a method under sig.
// Returns the previous method, or nil.
func (r *Registry) RegisterMethod(sig string, m *Method) *Method {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.methods[sig]
	r.methods[sig] = m
	return old
}

// removeMethod deletes sig if it still maps to m.
func (r *Registry) removeMethod(sig string, m *Method) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.methods[sig] == m {
		delete(r.methods, sig)
	}
}

// LookupClass finds a class by name.
func (r *Registry) LookupClass(name string) (*Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.classes[name]; ok {
		return c, nil
	}
	return nil, &LookupError{Name: name, Err: ErrClassNotFound}
}

// LookupMethod finds a method by signature.
func (r *Registry) LookupMethod(sig string) (*Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.methods[sig]; ok {
		return m, nil
	}
	return nil, &LookupError{Name: sig, Err: ErrMethodNotFound}
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.methods)
}

// Signatures returns every registered method signature, sorted.
func (r *Registry) Signatures() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.methods))
	for sig := range r.methods {
		result = append(result, sig)
	}
	sort.Strings(result)
	return result
}

// Classes returns every registered class, sorted by name.
func (r *Registry) Classes() []*Class {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Class, 0, len(r.classes))
	for _, c := range r.classes {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
