// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcelocantos/pipesh/internal/audit"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the audit log's hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if err := audit.Verify(a.cfg.Audit.Path); err != nil {
				fmt.Fprintf(w, "audit verification FAILED: %v\n", err)
				return &exitError{code: 1}
			}
			fmt.Fprintln(w, "audit log integrity verified")
			return nil
		},
	}

	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			entries, err := audit.Tail(a.cfg.Audit.Path, n)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(w, "no audit entries")
				return nil
			}
			for _, e := range entries {
				data, _ := json.MarshalIndent(e, "", "  ")
				fmt.Fprintf(w, "%s\n", data)
			}
			return nil
		},
	}
	tail.Flags().IntVarP(&n, "lines", "n", 20, "number of entries")

	cmd.AddCommand(verify, tail)
	return cmd
}
