package category

import (
	"fmt"

	"github.com/IshaanNene/unitscout/internal/types"
)

// Registry maps category names to descriptors, keeping registration order.
type Registry struct {
	byName map[string]*Descriptor
	order  []string
}

// NewRegistry creates a registry from descriptors.
func NewRegistry(descriptors ...*Descriptor) *Registry {
	r := &Registry{byName: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		r.Register(d)
	}
	return r
}

// Default returns a registry holding every built-in category.
func Default() *Registry {
	return NewRegistry(ToiletPaper(), Rice(), Mask(), Dishwashing(), MineralWater())
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d *Descriptor) {
	if _, exists := r.byName[d.Name]; !exists {
		r.order = append(r.order, d.Name)
	}
	r.byName[d.Name] = d
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownCategory, name)
	}
	return d, nil
}

// Names returns category names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns descriptors in registration order.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
