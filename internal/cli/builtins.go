// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcelocantos/pipesh/internal/builtin"
)

func newBuiltinsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "builtins",
		Short: "List the commands the shell runs itself",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, b := range builtin.Default().All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", b.Usage(), b.Description())
			}
			return nil
		},
	}
}
