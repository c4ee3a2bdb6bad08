// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package builtin holds the commands the interpreter runs in its own
// process instead of launching.
package builtin

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Builtin is a command run inside the interpreter.
type Builtin interface {
	// Name returns the command name that selects the built-in.
	Name() string

	// Usage returns the one-line synopsis shown by help.
	Usage() string

	// Description returns a human-readable summary for help output.
	Description() string

	// Validate checks args before Run.
	Validate(args []string) error

	// Run executes the built-in.
	Run(ctx context.Context, env *Env, args []string) error
}

// Env is what a built-in may touch.
type Env struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Registry *Registry
}

// ExitRequest is returned by exit to end the interpreter.
type ExitRequest struct {
	Code int
}

func (e *ExitRequest) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// Registry maps built-in names to implementations.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Builtin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builtins: make(map[string]Builtin)}
}

// Default returns a registry with every built-in registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(&Cd{})
	r.Register(&Exit{})
	r.Register(&Help{})
	return r
}

// Register adds a built-in to the registry.
func (r *Registry) Register(b Builtin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[b.Name()] = b
}

// Lookup returns a built-in by name.
func (r *Registry) Lookup(name string) (Builtin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builtins[name]
	return b, ok
}

// All returns all registered built-ins sorted by name.
func (r *Registry) All() []Builtin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Builtin, 0, len(r.builtins))
	for _, b := range r.builtins {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name() < all[j].Name()
	})
	return all
}

// Run validates and runs the named built-in.
func (r *Registry) Run(ctx context.Context, env *Env, name string, args []string) error {
	b, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown built-in: %q", name)
	}
	if env.Registry == nil {
		env.Registry = r
	}
	if err := b.Validate(args); err != nil {
		return fmt.Errorf("%s: %w\nUsage: %s", name, err, b.Usage())
	}
	return b.Run(ctx, env, args)
}
