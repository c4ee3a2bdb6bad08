// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/pipesh/internal/audit"
	"github.com/marcelocantos/pipesh/internal/pipeline"
	"github.com/marcelocantos/pipesh/internal/rc"
)

type harness struct {
	sh        *Shell
	outPath   string
	errPath   string
	auditPath string
}

func newHarness(t *testing.T, r *rc.RC) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		outPath:   filepath.Join(dir, "stdout"),
		errPath:   filepath.Join(dir, "stderr"),
		auditPath: filepath.Join(dir, "audit.jsonl"),
	}
	in, err := os.Open(os.DevNull)
	require.NoError(t, err)
	out, err := os.Create(h.outPath)
	require.NoError(t, err)
	serr, err := os.Create(h.errPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		in.Close()
		out.Close()
		serr.Close()
	})
	logger, err := audit.NewLogger(h.auditPath)
	require.NoError(t, err)

	h.sh = New(Options{
		Streams: pipeline.Streams{Stdin: in, Stdout: out, Stderr: serr},
		RC:      r,
		Audit:   logger,
		Source:  "command",
	}, pipeline.WithIsolatedGroup(true))
	return h
}

func (h *harness) stdout(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(h.outPath)
	require.NoError(t, err)
	return string(data)
}

func (h *harness) stderr(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(h.errPath)
	require.NoError(t, err)
	return string(data)
}

func (h *harness) entries(t *testing.T) []audit.Entry {
	t.Helper()
	entries, err := audit.Tail(h.auditPath, 100)
	require.NoError(t, err)
	return entries
}

func TestRunLinePipeline(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sh.RunLine(context.Background(), "printf 'b\\na\\n' | sort"))
	assert.Equal(t, "a\nb\n", h.stdout(t))

	entries := h.entries(t)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.True(t, e.Success)
	assert.Equal(t, "command", e.Source)
	assert.Equal(t, []string{"printf", "sort"}, e.Commands)
	assert.Len(t, e.Pids, 2)
	assert.Equal(t, []int{0, 0}, e.ExitCodes)
	require.NoError(t, audit.Verify(h.auditPath))
}

func TestRunLineEmpty(t *testing.T) {
	h := newHarness(t, nil)
	assert.NoError(t, h.sh.RunLine(context.Background(), "   "))
	assert.Empty(t, h.entries(t))
}

func TestRunLineParseError(t *testing.T) {
	h := newHarness(t, nil)
	err := h.sh.RunLine(context.Background(), "cat |")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, h.stderr(t), "pipesh: empty pipeline stage")
	assert.Empty(t, h.entries(t))
}

func TestRunLineRuleViolation(t *testing.T) {
	h := newHarness(t, nil)
	err := h.sh.RunLine(context.Background(), "echo / | rm -rf /")
	require.Error(t, err)
	assert.Contains(t, h.stderr(t), "permanently blocked")
	assert.Empty(t, h.stdout(t))

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "rule", entries[0].ErrorKind)
	assert.Empty(t, entries[0].Pids)
}

func TestRunLineLaunchFailure(t *testing.T) {
	h := newHarness(t, nil)
	err := h.sh.RunLine(context.Background(), "echo hi | pipesh-no-such-command")
	require.Error(t, err)
	assert.False(t, pipeline.IsFatal(err))

	stderr := h.stderr(t)
	assert.Contains(t, stderr, "pipesh: stage 1 (pipesh-no-such-command)")
	assert.Contains(t, stderr, "pipesh: pipeline aborted")

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "exec", entries[0].ErrorKind)
	assert.Equal(t, -1, entries[0].ExitCodes[1])
}

func TestRunLineBuiltins(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(wd) })

	h := newHarness(t, nil)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), nil, 0o600))

	require.NoError(t, h.sh.RunLine(context.Background(), "cd "+dir))
	require.NoError(t, h.sh.RunLine(context.Background(), "ls"))
	assert.Equal(t, "marker\n", h.stdout(t))

	require.NoError(t, h.sh.RunLine(context.Background(), "help"))
	assert.Contains(t, h.stdout(t), "cd <path>")

	assert.Len(t, h.entries(t), 1, "built-ins are not audited")
}

func TestRunLineBuiltinInPipeline(t *testing.T) {
	h := newHarness(t, nil)
	err := h.sh.RunLine(context.Background(), "cd /tmp | cat")
	require.Error(t, err)
	assert.Contains(t, h.stderr(t), "built-in cannot be piped or redirected")
}

func TestRunLineAlias(t *testing.T) {
	r := &rc.RC{Aliases: map[string][]string{"say": {"echo", "said:"}}}
	h := newHarness(t, r)
	require.NoError(t, h.sh.RunLine(context.Background(), "say hello"))
	assert.Equal(t, "said: hello\n", h.stdout(t))

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "echo said: hello", entries[0].Line)
}

func TestPrompt(t *testing.T) {
	assert.Equal(t, DefaultPrompt, newHarness(t, nil).sh.Prompt())
	assert.Equal(t, "% ", newHarness(t, &rc.RC{Prompt: "% "}).sh.Prompt())
}

func TestRunScript(t *testing.T) {
	h := newHarness(t, nil)
	in := NewScriptReader(strings.NewReader("echo a\n\nbad |\nexit 3\necho b\n"))
	code := h.sh.Run(context.Background(), in)
	assert.Equal(t, 3, code)
	assert.Equal(t, "a\n", h.stdout(t))
	assert.Contains(t, h.stderr(t), "empty pipeline stage")
}

func TestRunEndOfInput(t *testing.T) {
	h := newHarness(t, nil)
	code := h.sh.Run(context.Background(), NewScriptReader(strings.NewReader("echo last")))
	assert.Equal(t, 0, code)
	assert.Equal(t, "last\n", h.stdout(t))
}

// scripted replays canned Readline results.
type scripted struct {
	lines   []string
	errs    []error
	prompts []string
}

func (s *scripted) SetPrompt(p string) { s.prompts = append(s.prompts, p) }

func (s *scripted) Readline() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line, err := s.lines[0], s.errs[0]
	s.lines, s.errs = s.lines[1:], s.errs[1:]
	return line, err
}

func (s *scripted) Close() error { return nil }

func TestRunInterruptAtPrompt(t *testing.T) {
	h := newHarness(t, nil)
	in := &scripted{
		lines: []string{"half typed", "echo after"},
		errs:  []error{ErrInterrupt, nil},
	}
	assert.Equal(t, 0, h.sh.Run(context.Background(), in))
	assert.Equal(t, "after\n", h.stdout(t))
	assert.Equal(t, []string{DefaultPrompt, DefaultPrompt, DefaultPrompt}, in.prompts)
}

func TestRunReadError(t *testing.T) {
	h := newHarness(t, nil)
	in := &scripted{lines: []string{""}, errs: []error{errors.New("tty gone")}}
	assert.Equal(t, 1, h.sh.Run(context.Background(), in))
	assert.Contains(t, h.stderr(t), "tty gone")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("x")))
	assert.Equal(t, 2, ExitCode(&pipeline.SignalError{Op: "unblock", Err: errors.New("x")}))
}

func TestScriptReaderDoesNotReadAhead(t *testing.T) {
	r := strings.NewReader("first\nrest of input")
	in := NewScriptReader(r)
	line, err := in.Readline()
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "rest of input", string(rest))
}

func TestDiagnosticsPlainOffTerminal(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	dir := t.TempDir()
	errPath := filepath.Join(dir, "stderr")
	in, err := os.Open(os.DevNull)
	require.NoError(t, err)
	out, err := os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	serr, err := os.Create(errPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		in.Close()
		out.Close()
		serr.Close()
	})

	sh := New(Options{
		Streams: pipeline.Streams{Stdin: in, Stdout: out, Stderr: serr},
		Color:   true,
	}, pipeline.WithIsolatedGroup(true))
	require.Error(t, sh.RunLine(context.Background(), "pipesh-no-such-command"))

	data, err := os.ReadFile(errPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\x1b[")
	assert.Contains(t, string(data), "pipesh: stage 0 (pipesh-no-such-command): lookup:")
	assert.Contains(t, string(data), "pipesh: pipeline aborted\n")
}

func TestDiagnosticsColorAlwaysReset(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	h := newHarness(t, nil)
	h.sh.diag.EnableColor()
	h.sh.report(errors.New("boom"))

	got := h.stderr(t)
	assert.True(t, strings.HasPrefix(got, "\x1b["), "expected color escape in %q", got)
	assert.True(t, strings.HasSuffix(got, "\x1b[0m\n"), "expected reset before newline in %q", got)
	assert.Contains(t, got, "pipesh: boom")
}

func TestColorable(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "f"))
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, colorable(true, f))
	assert.False(t, colorable(false, f))
	assert.False(t, colorable(true, io.Discard))
}
