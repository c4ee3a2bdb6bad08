// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package cli wires configuration, the rc script, the audit log and the
// shell into the pipesh commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/marcelocantos/pipesh/internal/audit"
	"github.com/marcelocantos/pipesh/internal/config"
	"github.com/marcelocantos/pipesh/internal/pipeline"
	"github.com/marcelocantos/pipesh/internal/rc"
	"github.com/marcelocantos/pipesh/internal/shell"
	"github.com/marcelocantos/pipesh/internal/signals"
)

const usage = `pipesh runs command pipelines, one process per stage.

Line syntax:
  cmd [args] [< file] | cmd [args] | ... | cmd [args] [> file]

  |  pipe (stdout to stdin of the next command)
  <  redirect stdin of the first command from file
  >  redirect stdout of the last command to file (created mode 0600, truncated)

Single and double quotes and backslash escapes work as in sh. Ctrl-C
interrupts the running pipeline, never the shell.`

// exitError carries an exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// app holds what the commands share.
type app struct {
	version    string
	configPath string
	streams    pipeline.Streams
	cfg        *config.Config
}

// Execute runs the pipesh command line and returns the process exit status.
func Execute(version string) int {
	return execute(NewRootCmd(version, pipeline.StdStreams()), os.Stderr)
}

func execute(root *cobra.Command, stderr io.Writer) int {
	err := root.Execute()
	var exit *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.code
	default:
		fmt.Fprintf(stderr, "pipesh: %v\n", err)
		return 1
	}
}

// NewRootCmd builds the command tree. streams are the interpreter's own
// standard streams.
func NewRootCmd(version string, streams pipeline.Streams) *cobra.Command {
	a := &app{version: version, streams: streams}
	var line string

	root := &cobra.Command{
		Use:           "pipesh [-c line]",
		Short:         "A pipeline shell",
		Long:          usage,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			code := a.runShell(cmd.Context(), line, cmd.Flags().Changed("command"))
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	root.SetIn(streams.Stdin)
	root.SetOut(streams.Stdout)
	root.SetErr(streams.Stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	root.Flags().StringVarP(&line, "command", "c", "", "run one line and exit")

	root.AddCommand(
		newAuditCmd(a),
		newBuiltinsCmd(),
		newMCPCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) loadConfig() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFrom(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// loadRC evaluates the rc script and exports its environment.
func (a *app) loadRC() (*rc.RC, error) {
	r, err := rc.Load(a.cfg.RCFile, a.streams.Stderr)
	if err != nil {
		return nil, err
	}
	if err := r.ApplyEnv(); err != nil {
		return nil, err
	}
	return r, nil
}

// openAudit returns the audit logger, or nil when auditing is disabled or
// the log cannot be opened.
func (a *app) openAudit() *audit.Logger {
	if !a.cfg.Audit.Enabled {
		return nil
	}
	logger, err := audit.NewLogger(a.cfg.Audit.Path)
	if err != nil {
		fmt.Fprintf(a.streams.Stderr, "pipesh: audit: %v\n", err)
		// Continue without audit logging.
		return nil
	}
	return logger
}

// runShell runs one line when oneShot is set and the interactive loop
// otherwise, and returns the exit status.
func (a *app) runShell(ctx context.Context, line string, oneShot bool) int {
	if ctx == nil {
		ctx = context.Background()
	}
	r, err := a.loadRC()
	if err != nil {
		fmt.Fprintf(a.streams.Stderr, "pipesh: %v\n", err)
		return 1
	}
	execOpts, err := a.cfg.Pipeline.Options()
	if err != nil {
		fmt.Fprintf(a.streams.Stderr, "pipesh: config: %v\n", err)
		return 1
	}

	coord := signals.New()
	if err := coord.Install(); err != nil {
		fmt.Fprintf(a.streams.Stderr, "pipesh: failed to set up signal handling: %v\n", err)
		return 2
	}
	defer coord.Uninstall()
	execOpts = append(execOpts, pipeline.WithInterrupts(coord))

	// Termination tears the running pipeline down before the shell exits.
	ctx, stop := signal.NotifyContext(ctx, unix.SIGTERM, unix.SIGHUP)
	defer stop()

	source := "shell"
	if oneShot {
		source = "command"
	}
	sh := shell.New(shell.Options{
		Streams: a.streams,
		Rules:   a.cfg.RuleSet(),
		RC:      r,
		Audit:   a.openAudit(),
		Prompt:  a.cfg.Prompt,
		Color:   a.cfg.Color,
		Source:  source,
	}, execOpts...)

	if oneShot {
		return shell.ExitCode(sh.RunLine(ctx, line))
	}

	in, err := shell.NewLineReader(a.streams.Stdin, a.streams.Stdout, a.cfg.HistoryFile)
	if err != nil {
		fmt.Fprintf(a.streams.Stderr, "pipesh: %v\n", err)
		return 1
	}
	defer in.Close()
	return sh.Run(ctx, in)
}
