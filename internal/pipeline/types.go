// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Operators recognised by the parser.
const (
	OpPipe        = "|" // stdout → stdin of the next command
	OpRedirectIn  = "<" // stdin of the first command from file
	OpRedirectOut = ">" // stdout of the last command to file (created, truncated)
)

// Command is a single stage of a pipeline.
type Command struct {
	Name string   // executable name, resolved through PATH
	Args []string // remaining arguments
	In   string   // input redirect, empty if none
	Out  string   // output redirect, empty if none
}

func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, a := range c.Args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	if c.In != "" {
		fmt.Fprintf(&b, " %s %s", OpRedirectIn, c.In)
	}
	if c.Out != "" {
		fmt.Fprintf(&b, " %s %s", OpRedirectOut, c.Out)
	}
	return b.String()
}

// Pipeline is an ordered chain of commands. Insertion order is both
// execution and connection order.
type Pipeline struct {
	Commands []Command
}

// ErrEmptyPipeline is returned for a pipeline with no commands.
var ErrEmptyPipeline = errors.New("empty pipeline")

// Validate checks the structural invariants: at least one command, every
// command named, an input redirect only on the first command and an output
// redirect only on the last.
func (p *Pipeline) Validate() error {
	if p == nil || len(p.Commands) == 0 {
		return ErrEmptyPipeline
	}
	last := len(p.Commands) - 1
	for i, c := range p.Commands {
		if c.Name == "" {
			return fmt.Errorf("stage %d: missing command name", i)
		}
		if c.In != "" && i != 0 {
			return fmt.Errorf("stage %d (%s): ambiguous input redirect", i, c.Name)
		}
		if c.Out != "" && i != last {
			return fmt.Errorf("stage %d (%s): ambiguous output redirect", i, c.Name)
		}
	}
	return nil
}

// Names returns the command name of every stage.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.Commands))
	for i, c := range p.Commands {
		names[i] = c.Name
	}
	return names
}

func (p *Pipeline) String() string {
	parts := make([]string, len(p.Commands))
	for i, c := range p.Commands {
		parts[i] = c.String()
	}
	return strings.Join(parts, " "+OpPipe+" ")
}

// Position encodes a stage's role in its pipeline. The first stage has
// PosStart set, the last PosEnd; a single-command pipeline has both.
type Position uint8

const (
	PosIntermediate Position = 0x0
	PosStart        Position = 0x1
	PosEnd          Position = 0x2
)

func (p Position) IsStart() bool { return p&PosStart != 0 }
func (p Position) IsEnd() bool   { return p&PosEnd != 0 }

// Streams are the interpreter's own standard streams. The engine hands
// them to stages but never closes them.
type Streams struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// StdStreams returns the process's standard streams.
func StdStreams() Streams {
	return Streams{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Argv materialises the argument vector passed to exec: the command name
// followed by its arguments. The terminating null is added by the runtime.
func Argv(c Command) []string {
	argv := make([]string, 0, 1+len(c.Args))
	argv = append(argv, c.Name)
	return append(argv, c.Args...)
}
