// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package mcpserver exposes pipeline execution as an MCP tool over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sys/unix"

	"github.com/marcelocantos/pipesh/internal/audit"
	"github.com/marcelocantos/pipesh/internal/pipeline"
	"github.com/marcelocantos/pipesh/internal/rc"
	"github.com/marcelocantos/pipesh/internal/rules"
)

// DefaultMaxOutput caps each captured stream returned to the client.
const DefaultMaxOutput = 64 << 10

// Options configures a Server. Zero fields get defaults.
type Options struct {
	Rules      *rules.RuleSet
	RC         *rc.RC
	Audit      *audit.Logger // nil disables auditing
	KillSignal syscall.Signal
	MaxOutput  int
}

// Server runs pipelines on behalf of an MCP client. Every call runs in its
// own process group with its own captured streams, so calls may overlap.
type Server struct {
	rules     *rules.RuleSet
	rc        *rc.RC
	audit     *audit.Logger
	killSig   syscall.Signal
	maxOutput int
	mcp       *server.MCPServer
}

// New returns a Server announcing itself with the given version.
func New(version string, opts Options) *Server {
	s := &Server{
		rules:     opts.Rules,
		rc:        opts.RC,
		audit:     opts.Audit,
		killSig:   opts.KillSignal,
		maxOutput: opts.MaxOutput,
	}
	if s.rules == nil {
		s.rules = rules.FromConfig(nil)
	}
	if s.rc == nil {
		s.rc = &rc.RC{}
	}
	if s.killSig == 0 {
		s.killSig = unix.SIGTERM
	}
	if s.maxOutput <= 0 {
		s.maxOutput = DefaultMaxOutput
	}

	s.mcp = server.NewMCPServer("pipesh", version, server.WithToolCapabilities(false))
	s.mcp.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("Run a command pipeline: cmd [args] [< file] | cmd [args] ... [> file]. "+
			"Each stage is a separate process; there is no globbing, variable expansion or &&/||/;. "+
			"Returns the captured stdout and stderr and each stage's exit code."),
		mcp.WithString("command", mcp.Required(), mcp.Description("The pipeline to run")),
		mcp.WithString("stdin", mcp.Description("Text fed to the first stage when it has no input redirect")),
		mcp.WithBoolean("override", mcp.Description("Skip configurable argument rules. Only set this after the user has explicitly approved the operation")),
	), s.handleRunPipeline)
	return s
}

// ServeStdio serves the MCP protocol on stdin and stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleRunPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := req.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stdin := req.GetString("stdin", "")
	override := req.GetBool("override", false)

	out, err := s.run(ctx, command, stdin, override)
	if err != nil {
		msg := "pipesh: " + err.Error()
		if out != "" {
			msg += "\n" + out
		}
		return mcp.NewToolResultError(msg), nil
	}
	return mcp.NewToolResultText(out), nil
}

// run executes command with stdin as its input and returns the formatted
// captured output.
func (s *Server) run(ctx context.Context, command, stdin string, override bool) (string, error) {
	p, err := pipeline.Parse(command)
	if err != nil {
		return "", err
	}
	p = s.rc.Expand(p)

	start := time.Now()
	if err := s.rules.CheckPipeline(p, override); err != nil {
		s.record(p, nil, override, err, "rule", time.Since(start))
		return "", err
	}

	dir, err := os.MkdirTemp("", "pipesh-mcp-")
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	defer os.RemoveAll(dir)

	streams, closeAll, err := captureStreams(dir, stdin)
	if err != nil {
		return "", err
	}
	exec := pipeline.NewExecutor(streams,
		pipeline.WithIsolatedGroup(true),
		pipeline.WithReapOrphans(false),
		pipeline.WithKillSignal(s.killSig),
	)
	res, runErr := exec.Run(ctx, p)
	closeAll()
	s.record(p, res, override, runErr, pipeline.ErrorKind(runErr), time.Since(start))

	stdout, err := s.readCapped(filepath.Join(dir, "stdout"))
	if err != nil {
		return "", err
	}
	stderr, err := s.readCapped(filepath.Join(dir, "stderr"))
	if err != nil {
		return "", err
	}
	return format(res, stdout, stderr), runErr
}

// captureStreams creates the stdin, stdout and stderr files of one call.
func captureStreams(dir, stdin string) (pipeline.Streams, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	fail := func(err error) (pipeline.Streams, func(), error) {
		closeAll()
		return pipeline.Streams{}, nil, fmt.Errorf("capture: %w", err)
	}

	inPath := filepath.Join(dir, "stdin")
	if err := os.WriteFile(inPath, []byte(stdin), 0o600); err != nil {
		return fail(err)
	}
	in, err := os.Open(inPath)
	if err != nil {
		return fail(err)
	}
	files = append(files, in)
	out, err := os.Create(filepath.Join(dir, "stdout"))
	if err != nil {
		return fail(err)
	}
	files = append(files, out)
	serr, err := os.Create(filepath.Join(dir, "stderr"))
	if err != nil {
		return fail(err)
	}
	files = append(files, serr)
	return pipeline.Streams{Stdin: in, Stdout: out, Stderr: serr}, closeAll, nil
}

func (s *Server) readCapped(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	if len(data) > s.maxOutput {
		return string(data[:s.maxOutput]) + fmt.Sprintf("\n[truncated %d bytes]", len(data)-s.maxOutput), nil
	}
	return string(data), nil
}

func format(res *pipeline.Result, stdout, stderr string) string {
	var b strings.Builder
	if res != nil {
		fmt.Fprintf(&b, "exit codes: %v\n", res.ExitCodes())
	}
	if stdout != "" {
		b.WriteString("--- stdout ---\n")
		b.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if stderr != "" {
		b.WriteString("--- stderr ---\n")
		b.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			b.WriteByte('\n')
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (s *Server) record(p *pipeline.Pipeline, res *pipeline.Result, override bool, err error, kind string, d time.Duration) {
	if s.audit == nil {
		return
	}
	cwd, _ := os.Getwd()
	r := audit.Record{
		Source:    "mcp",
		Line:      p.String(),
		Commands:  p.Names(),
		Override:  override,
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
		fmt.Fprintf(os.Stderr, "pipesh: audit: %v\n", lerr)
	}
}
