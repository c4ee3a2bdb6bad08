// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/pipesh/internal/pipeline"
)

type env struct {
	dir     string
	config  string
	audit   string
	streams pipeline.Streams
	outPath string
	errPath string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:     dir,
		config:  filepath.Join(dir, "config.yaml"),
		audit:   filepath.Join(dir, "audit.jsonl"),
		outPath: filepath.Join(dir, "stdout"),
		errPath: filepath.Join(dir, "stderr"),
	}
	cfg := "color: false\n" +
		"rc_file: " + filepath.Join(dir, "rc.star") + "\n" +
		"history_file: " + filepath.Join(dir, "history") + "\n" +
		"audit:\n  enabled: true\n  path: " + e.audit + "\n" +
		"pipeline:\n  isolate_group: true\n  reap_orphans: false\n"
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o600))

	in, err := os.Open(os.DevNull)
	require.NoError(t, err)
	out, err := os.Create(e.outPath)
	require.NoError(t, err)
	serr, err := os.Create(e.errPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		in.Close()
		out.Close()
		serr.Close()
	})
	e.streams = pipeline.Streams{Stdin: in, Stdout: out, Stderr: serr}
	return e
}

func (e *env) run(args ...string) int {
	root := NewRootCmd("1.2.3", e.streams)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	return execute(root, e.streams.Stderr)
}

func (e *env) read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, 0, e.run("version"))
	assert.Equal(t, "pipesh 1.2.3\n", e.read(t, e.outPath))
}

func TestBuiltins(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, 0, e.run("builtins"))
	out := e.read(t, e.outPath)
	assert.Contains(t, out, "cd <path>")
	assert.Contains(t, out, "exit [code]")
}

func TestCommandLine(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, 0, e.run("-c", "echo hello | tr a-z A-Z"))
	assert.Equal(t, "HELLO\n", e.read(t, e.outPath))

	assert.Equal(t, 0, e.run("audit", "verify"))
	assert.Contains(t, e.read(t, e.outPath), "audit log integrity verified")
}

func TestCommandLineFailure(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, 1, e.run("-c", "echo hi | pipesh-no-such-command"))
	assert.Contains(t, e.read(t, e.errPath), "pipesh: pipeline aborted")
}

func TestCommandLineExit(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, 7, e.run("-c", "exit 7"))
}

func TestCommandLineRC(t *testing.T) {
	e := newEnv(t)
	rcSrc := `aliases = {"shout": "tr a-z A-Z"}` + "\n" + `env = {"PIPESH_CLI_TEST": "set-by-rc"}`
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "rc.star"), []byte(rcSrc), 0o600))
	t.Setenv("PIPESH_CLI_TEST", "")

	assert.Equal(t, 0, e.run("-c", `sh -c 'echo $PIPESH_CLI_TEST' | shout`))
	assert.Equal(t, "SET-BY-RC\n", e.read(t, e.outPath))
}

func TestAuditTail(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, 0, e.run("-c", "true"))
	require.Equal(t, 0, e.run("-c", "echo x"))

	assert.Equal(t, 0, e.run("audit", "tail", "-n", "1"))
	out := e.read(t, e.outPath)
	assert.Equal(t, 1, strings.Count(out, `"seq"`))
	assert.Contains(t, out, `"line": "echo x"`)
}

func TestAuditVerifyFailure(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.audit, []byte(`{"seq":5}`+"\n"), 0o600))
	assert.Equal(t, 1, e.run("audit", "verify"))
	assert.Contains(t, e.read(t, e.outPath), "FAILED")
}

func TestBadConfig(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.config, []byte("pipeline:\n  kill_signal: NOPE\n"), 0o600))
	assert.Equal(t, 1, e.run("version"))
	assert.Contains(t, e.read(t, e.errPath), "pipesh: config:")
}

func TestScriptOnStdin(t *testing.T) {
	e := newEnv(t)
	script := filepath.Join(e.dir, "script")
	require.NoError(t, os.WriteFile(script, []byte("echo one\necho two\n"), 0o600))
	in, err := os.Open(script)
	require.NoError(t, err)
	defer in.Close()
	e.streams.Stdin = in

	assert.Equal(t, 0, e.run())
	assert.Equal(t, "one\ntwo\n", e.read(t, e.outPath))
}
