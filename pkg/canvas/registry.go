package canvas

import (
	"fmt"
	"sort"
	"sync"
)

// Registry owns every canvas of the process. It is built once at startup and handed to the
// request handlers.
type Registry struct {
	mu       sync.RWMutex
	canvases map[string]*Canvas
}

func NewRegistry() *Registry {
	return &Registry{canvases: make(map[string]*Canvas)}
}

func (r *Registry) Create(name string, opts Options, extra ...CanvasOption) (*Canvas, error) {
	if name == "" {
		return nil, fmt.Errorf("canvas name must not be empty")
	}
	c, err := New(name, opts, extra...)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.canvases[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrCanvasExists, name)
	}
	r.canvases[name] = c
	return c, nil
}

func (r *Registry) Get(name string) (*Canvas, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.canvases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCanvasNotFound, name)
	}
	return c, nil
}

// Names returns the canvas names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.canvases))
	for n := range r.canvases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Each calls fn for every canvas in name order until fn returns false.
func (r *Registry) Each(fn func(*Canvas) bool) {
	for _, n := range r.Names() {
		c, err := r.Get(n)
		if err != nil {
			continue
		}
		if !fn(c) {
			return
		}
	}
}
