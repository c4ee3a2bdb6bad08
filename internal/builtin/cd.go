// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Cd changes the interpreter's working directory, which every later
// pipeline inherits.
type Cd struct{}

var _ Builtin = (*Cd)(nil)

func (c *Cd) Name() string        { return "cd" }
func (c *Cd) Usage() string       { return "cd <path>" }
func (c *Cd) Description() string { return "change the working directory" }

func (c *Cd) Validate(args []string) error {
	switch {
	case len(args) == 0:
		return errors.New("no directory specified")
	case len(args) > 1:
		return errors.New("too many parameters specified")
	}
	return nil
}

func (c *Cd) Run(_ context.Context, _ *Env, args []string) error {
	if err := os.Chdir(args[0]); err != nil {
		return fmt.Errorf("failed to change directory: %w", err)
	}
	return nil
}
