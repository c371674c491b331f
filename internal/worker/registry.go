// Package worker runs the bot's background jobs. Workers are registered
// explicitly at startup and driven by a Manager bound to the process context.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Kind selects how the next run of a worker is scheduled.
type Kind int

const (
	// Periodic workers run every Frequency after InitialDelay.
	Periodic Kind = iota
	// SelfScheduling workers return the delay until their next run. A
	// non-positive delay stops the worker.
	SelfScheduling
)

func (k Kind) String() string {
	switch k {
	case Periodic:
		return "periodic"
	case SelfScheduling:
		return "self-scheduling"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RunFunc performs one run. Periodic workers may ignore the returned delay.
type RunFunc func(ctx context.Context) (time.Duration, error)

// Descriptor declares a worker.
type Descriptor struct {
	Name         string
	Kind         Kind
	InitialDelay time.Duration
	Frequency    time.Duration
	Run          RunFunc
}

var (
	ErrDuplicateWorker = errors.New("worker already registered")
	ErrInvalidWorker   = errors.New("invalid worker descriptor")
	ErrUnknownWorker   = errors.New("unknown worker")
)

func (d Descriptor) validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidWorker)
	case d.Run == nil:
		return fmt.Errorf("%w: %s has no run function", ErrInvalidWorker, d.Name)
	case d.InitialDelay < 0:
		return fmt.Errorf("%w: %s has a negative initial delay", ErrInvalidWorker, d.Name)
	case d.Kind == Periodic && d.Frequency <= 0:
		return fmt.Errorf("%w: periodic worker %s needs a positive frequency", ErrInvalidWorker, d.Name)
	case d.Kind != Periodic && d.Kind != SelfScheduling:
		return fmt.Errorf("%w: %s has %s", ErrInvalidWorker, d.Name, d.Kind)
	}
	return nil
}

// Registry holds worker descriptors in registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[d.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, d.Name)
	}
	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// List returns every descriptor in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the registered worker names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
