// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"fmt"
	"text/tabwriter"
)

type Help struct{}

var _ Builtin = (*Help)(nil)

func (h *Help) Name() string                 { return "help" }
func (h *Help) Usage() string                { return "help" }
func (h *Help) Description() string          { return "list the built-in commands" }
func (h *Help) Validate(args []string) error { return nil }

func (h *Help) Run(_ context.Context, env *Env, _ []string) error {
	fmt.Fprintln(env.Stdout, "Built-in commands:")
	w := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
	for _, b := range env.Registry.All() {
		fmt.Fprintf(w, "  %s\t%s\n", b.Usage(), b.Description())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "\nAnything else runs as a pipeline: cmd [args] [< file] | cmd [args] [> file]\n")
	return nil
}
