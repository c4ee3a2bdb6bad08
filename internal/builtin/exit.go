// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

type Exit struct{}

var _ Builtin = (*Exit)(nil)

func (e *Exit) Name() string        { return "exit" }
func (e *Exit) Usage() string       { return "exit [code]" }
func (e *Exit) Description() string { return "leave the shell" }

func (e *Exit) Validate(args []string) error {
	if len(args) > 1 {
		return errors.New("too many parameters specified")
	}
	if len(args) == 1 {
		if _, err := strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("numeric argument required: %q", args[0])
		}
	}
	return nil
}

func (e *Exit) Run(_ context.Context, _ *Env, args []string) error {
	code := 0
	if len(args) == 1 {
		code, _ = strconv.Atoi(args[0])
	}
	return &ExitRequest{Code: code & 0xff}
}
