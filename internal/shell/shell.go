// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package shell implements the prompt loop: read a line, expand aliases,
// dispatch a built-in or run the pipeline, record it.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/marcelocantos/pipesh/internal/audit"
	"github.com/marcelocantos/pipesh/internal/builtin"
	"github.com/marcelocantos/pipesh/internal/pipeline"
	"github.com/marcelocantos/pipesh/internal/rc"
	"github.com/marcelocantos/pipesh/internal/rules"
)

// DefaultPrompt is used when neither the config nor the rc script set one.
const DefaultPrompt = "-> "

// Options configures a Shell. Zero fields get defaults.
type Options struct {
	Streams  pipeline.Streams
	Rules    *rules.RuleSet
	Builtins *builtin.Registry
	RC       *rc.RC
	Audit    *audit.Logger // nil disables auditing
	Prompt   string
	Color    bool
	Source   string // audit source: "shell" or "command"
}

// Shell runs lines against the pipeline executor.
type Shell struct {
	out      *bufio.Writer
	stderr   io.Writer
	exec     *pipeline.Executor
	rules    *rules.RuleSet
	builtins *builtin.Registry
	rc       *rc.RC
	audit    *audit.Logger
	prompt   string
	source   string
	diag     *color.Color
}

// New returns a Shell. execOpts configure the executor; the shell adds the
// flush of its own buffered output.
func New(opts Options, execOpts ...pipeline.Option) *Shell {
	std := pipeline.StdStreams()
	if opts.Streams.Stdout == nil {
		opts.Streams.Stdout = std.Stdout
	}
	if opts.Streams.Stderr == nil {
		opts.Streams.Stderr = std.Stderr
	}
	s := &Shell{
		out:      bufio.NewWriter(opts.Streams.Stdout),
		stderr:   opts.Streams.Stderr,
		rules:    opts.Rules,
		builtins: opts.Builtins,
		rc:       opts.RC,
		audit:    opts.Audit,
		prompt:   opts.Prompt,
		source:   opts.Source,
		diag:     color.New(color.FgRed, color.Bold),
	}
	if s.rules == nil {
		s.rules = rules.FromConfig(nil)
	}
	if s.builtins == nil {
		s.builtins = builtin.Default()
	}
	if s.rc == nil {
		s.rc = &rc.RC{}
	}
	if s.rc.Prompt != "" {
		s.prompt = s.rc.Prompt
	}
	if s.prompt == "" {
		s.prompt = DefaultPrompt
	}
	if s.source == "" {
		s.source = "shell"
	}
	if colorable(opts.Color, s.stderr) {
		s.diag.EnableColor()
	} else {
		s.diag.DisableColor()
	}
	execOpts = append(execOpts, pipeline.WithFlush(s.out.Flush))
	s.exec = pipeline.NewExecutor(opts.Streams, execOpts...)
	return s
}

// Prompt returns the prompt shown before each line.
func (s *Shell) Prompt() string { return s.prompt }

// Run reads and executes lines until end of input, exit, a fatal error or
// cancellation of ctx, and returns the interpreter's exit status.
func (s *Shell) Run(ctx context.Context, in LineReader) int {
	for {
		if ctx.Err() != nil {
			return 1
		}
		in.SetPrompt(s.prompt)
		line, err := in.Readline()
		switch {
		case errors.Is(err, io.EOF):
			return 0
		case errors.Is(err, ErrInterrupt):
			continue
		case err != nil:
			s.report(fmt.Errorf("read: %w", err))
			return 1
		}

		err = s.RunLine(ctx, line)
		var exit *builtin.ExitRequest
		if errors.As(err, &exit) || pipeline.IsFatal(err) {
			return ExitCode(err)
		}
	}
}

// RunLine parses and executes one line. Diagnostics are written to the
// shell's stderr; the error is returned for the exit status.
func (s *Shell) RunLine(ctx context.Context, line string) error {
	defer s.out.Flush()

	p, err := pipeline.Parse(line)
	if errors.Is(err, pipeline.ErrEmptyLine) {
		return nil
	}
	if err != nil {
		s.report(err)
		return err
	}
	p = s.rc.Expand(p)

	if b, ok := s.builtins.Lookup(p.Commands[0].Name); ok {
		return s.runBuiltin(ctx, b, p)
	}

	start := time.Now()
	if err := s.rules.CheckPipeline(p, false); err != nil {
		s.record(p, nil, err, "rule", time.Since(start))
		s.report(err)
		return err
	}

	res, err := s.exec.Run(ctx, p)
	s.record(p, res, err, pipeline.ErrorKind(err), time.Since(start))
	if err != nil {
		s.report(err)
		if !pipeline.IsFatal(err) {
			s.report(errors.New("pipeline aborted"))
		}
		return err
	}
	return nil
}

func (s *Shell) runBuiltin(ctx context.Context, b builtin.Builtin, p *pipeline.Pipeline) error {
	c := p.Commands[0]
	if len(p.Commands) > 1 || c.In != "" || c.Out != "" {
		err := fmt.Errorf("%s: built-in cannot be piped or redirected", c.Name)
		s.report(err)
		return err
	}
	env := &builtin.Env{Stdout: s.out, Stderr: s.stderr, Registry: s.builtins}
	err := s.builtins.Run(ctx, env, c.Name, c.Args)
	var exit *builtin.ExitRequest
	if err != nil && !errors.As(err, &exit) {
		s.report(err)
	}
	return err
}

// record appends the run to the audit log. Auditing is best-effort.
func (s *Shell) record(p *pipeline.Pipeline, res *pipeline.Result, err error, kind string, d time.Duration) {
	if s.audit == nil {
		return
	}
	cwd, _ := os.Getwd()
	r := audit.Record{
		Source:    s.source,
		Line:      p.String(),
		Commands:  p.Names(),
		Err:       err,
		ErrorKind: kind,
		Duration:  d,
		Cwd:       cwd,
	}
	if res != nil {
		r.Pids = res.Pids()
		r.ExitCodes = res.ExitCodes()
	}
	if lerr := s.audit.Log(r); lerr != nil {
		s.report(lerr)
	}
}

func (s *Shell) report(err error) {
	s.out.Flush()
	fmt.Fprintln(s.stderr, s.diag.Sprintf("pipesh: %v", err))
}

// colorable reports whether diagnostics written to w may carry color
// escapes: only when asked for and w is a terminal.
func colorable(want bool, w io.Writer) bool {
	f, ok := w.(*os.File)
	return want && ok && isTerminal(f)
}

// ExitCode maps the error of a line to the interpreter's exit status: 0 on
// success, the requested code for exit, 2 when the interrupt could not be
// restored, 1 otherwise.
func ExitCode(err error) int {
	var exit *builtin.ExitRequest
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.Code
	case pipeline.IsFatal(err):
		return 2
	default:
		return 1
	}
}
