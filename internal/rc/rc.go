// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package rc loads the interpreter's Starlark startup script.
//
// The script is plain Starlark. After it runs, three globals are read:
//
//	prompt = "$ "
//	aliases = {"ll": "ls -l", "g": "grep -n"}
//	env = {"PAGER": "cat"}
//
// getenv(name, default="") is predeclared.
package rc

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/anmitsu/go-shlex"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/marcelocantos/pipesh/internal/pipeline"
)

// RC is the evaluated startup script.
type RC struct {
	Prompt  string
	Aliases map[string][]string // alias name -> replacement words
	Env     map[string]string
}

// Load runs the script at path. A missing file yields an empty RC. Output
// of print goes to w.
func Load(path string, w io.Writer) (*RC, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &RC{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rc: %w", err)
	}
	return Eval(path, src, w)
}

// Eval runs src as the startup script named filename.
func Eval(filename string, src []byte, w io.Writer) (*RC, error) {
	thread := &starlark.Thread{
		Name: "rc",
		Print: func(_ *starlark.Thread, msg string) {
			if w != nil {
				fmt.Fprintln(w, msg)
			}
		},
	}
	predeclared := starlark.StringDict{
		"getenv": starlark.NewBuiltin("getenv", getenv),
	}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, predeclared)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, fmt.Errorf("rc: %s", evalErr.Backtrace())
		}
		return nil, fmt.Errorf("rc: %w", err)
	}

	rc := &RC{}
	if v, ok := globals["prompt"]; ok {
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("rc: prompt must be a string, got %s", v.Type())
		}
		rc.Prompt = s
	}
	aliases, err := stringDict(globals, "aliases")
	if err != nil {
		return nil, err
	}
	if len(aliases) > 0 {
		rc.Aliases = make(map[string][]string, len(aliases))
		for name, value := range aliases {
			words, err := shlex.Split(value, true)
			if err != nil {
				return nil, fmt.Errorf("rc: alias %q: %w", name, err)
			}
			if len(words) == 0 {
				return nil, fmt.Errorf("rc: alias %q is empty", name)
			}
			rc.Aliases[name] = words
		}
	}
	if rc.Env, err = stringDict(globals, "env"); err != nil {
		return nil, err
	}
	return rc, nil
}

// stringDict reads the global name as a dict of strings.
func stringDict(globals starlark.StringDict, name string) (map[string]string, error) {
	v, ok := globals[name]
	if !ok {
		return nil, nil
	}
	d, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("rc: %s must be a dict, got %s", name, v.Type())
	}
	m := make(map[string]string, d.Len())
	for _, item := range d.Items() {
		k, kok := starlark.AsString(item[0])
		val, vok := starlark.AsString(item[1])
		if !kok || !vok {
			return nil, fmt.Errorf("rc: %s entries must map strings to strings", name)
		}
		m[k] = val
	}
	return m, nil
}

func getenv(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, def string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv(name); ok {
		return starlark.String(v), nil
	}
	return starlark.String(def), nil
}

// ApplyEnv exports the script's environment to the interpreter, and so to
// every pipeline it launches.
func (rc *RC) ApplyEnv() error {
	for k, v := range rc.Env {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("rc: setenv %s: %w", k, err)
		}
	}
	return nil
}

// Expand replaces the command name of every stage that names an alias.
// Expansion is one level deep: the replacement is not looked up again.
func (rc *RC) Expand(p *pipeline.Pipeline) *pipeline.Pipeline {
	if len(rc.Aliases) == 0 {
		return p
	}
	out := &pipeline.Pipeline{Commands: make([]pipeline.Command, len(p.Commands))}
	for i, c := range p.Commands {
		if words, ok := rc.Aliases[c.Name]; ok {
			args := make([]string, 0, len(words)-1+len(c.Args))
			args = append(args, words[1:]...)
			c.Args = append(args, c.Args...)
			c.Name = words[0]
		}
		out.Commands[i] = c
	}
	return out
}
