package website

import (
	"fmt"
	"sort"
	"sync"

	"github.com/maheshrc27/crosspost/internal/apperr"
)

// Registry maps website identifiers to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its website.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Website()] = a
}

func (r *Registry) Get(website string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[website]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownWebsite, website)
	}
	return a, nil
}

func (r *Registry) Websites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.adapters))
	for w := range r.adapters {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
