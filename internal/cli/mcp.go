// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"github.com/spf13/cobra"

	"github.com/marcelocantos/pipesh/internal/mcpserver"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the run_pipeline tool over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.loadRC()
			if err != nil {
				return err
			}
			sig, err := a.cfg.Pipeline.Signal()
			if err != nil {
				return err
			}
			srv := mcpserver.New(a.version, mcpserver.Options{
				Rules:      a.cfg.RuleSet(),
				RC:         r,
				Audit:      a.openAudit(),
				KillSignal: sig,
			})
			return srv.ServeStdio()
		},
	}
}
