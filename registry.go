package mathwalk

import (
	"errors"
	"fmt"
)

// ErrEmptyRegistry is returned when a tutorial has no steps.
var ErrEmptyRegistry = errors.New("tutorial has no steps")

// Registry is the ordered, immutable sequence of tutorial steps.
// Step identity is the index.
type Registry struct {
	steps []Step
}

// NewRegistry copies steps into a registry. The registry must not be empty.
func NewRegistry(steps []Step) (*Registry, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyRegistry
	}
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return &Registry{steps: cp}, nil
}

// Get returns the step at index i. Callers must bounds-check against Count.
func (r *Registry) Get(i int) Step {
	if i < 0 || i >= len(r.steps) {
		panic(fmt.Sprintf("mathwalk: step index %d out of range [0, %d)", i, len(r.steps)))
	}
	return r.steps[i]
}

// Count returns the number of steps.
func (r *Registry) Count() int {
	return len(r.steps)
}

// Titles returns the step titles in order.
func (r *Registry) Titles() []string {
	titles := make([]string, len(r.steps))
	for i, s := range r.steps {
		titles[i] = s.Title
	}
	return titles
}
