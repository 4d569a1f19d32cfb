package behavior

import (
	"fmt"
	"sort"
	"sync"
)

type Factory func(p Params) Strategy

type UnknownStrategyError struct {
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown strategy %q", e.Name)
}

// Registry maps strategy names to factories. It is filled at startup and
// read during population and snapshot restore.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register strategy: empty name or nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("register strategy: %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry) New(name string, p Params) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownStrategyError{Name: name}
	}
	return f(p), nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Builtin returns a registry holding every strategy family in this package.
func Builtin() *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(NoopName, NewNoop))
	must(r.Register(RandomName, NewRandom))
	must(r.Register(TapeName, NewTape))
	must(r.Register(LookerName, NewLooker))
	return r
}
