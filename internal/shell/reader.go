// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/abiosoft/readline"
	"golang.org/x/sys/unix"
)

// ErrInterrupt is returned by a LineReader when the user interrupts the
// line being edited.
var ErrInterrupt = readline.ErrInterrupt

// LineReader supplies input lines to the shell.
type LineReader interface {
	SetPrompt(prompt string)
	Readline() (string, error)
	Close() error
}

// NewLineReader returns a line editor with history when stdin is a
// terminal, and a script reader otherwise.
func NewLineReader(stdin *os.File, stdout io.Writer, historyFile string) (LineReader, error) {
	if !isTerminal(stdin) {
		return NewScriptReader(stdin), nil
	}
	gate := newGate(stdin)
	cfg := &readline.Config{
		Stdin:           readline.NewCancelableStdin(gate),
		Stdout:          stdout,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}
	return &editor{rl: rl, gate: gate}, nil
}

func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

// editor is an interactive line editor. The editor's reader only touches
// stdin while a prompt is active, so pipeline stages reading the terminal
// see every byte typed while they run.
type editor struct {
	rl   *readline.Instance
	gate *gate
}

func (e *editor) SetPrompt(prompt string) { e.rl.SetPrompt(prompt) }

func (e *editor) Readline() (string, error) {
	e.gate.set(true)
	defer e.gate.set(false)
	return e.rl.Readline()
}

func (e *editor) Close() error {
	e.gate.Close()
	return e.rl.Close()
}

// gate passes reads through to r only while open.
type gate struct {
	r      io.Reader
	mu     sync.Mutex
	cond   *sync.Cond
	open   bool
	closed bool
}

func newGate(r io.Reader) *gate {
	g := &gate{r: r}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *gate) set(open bool) {
	g.mu.Lock()
	g.open = open
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *gate) Read(p []byte) (int, error) {
	g.mu.Lock()
	for !g.open && !g.closed {
		g.cond.Wait()
	}
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return 0, io.EOF
	}
	return g.r.Read(p)
}

func (g *gate) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cond.Broadcast()
	return nil
}

// scriptReader reads lines one byte at a time so that nothing past the
// current line is consumed: the rest of the input belongs to whatever the
// line runs.
type scriptReader struct {
	r io.Reader
}

// NewScriptReader returns a LineReader for non-interactive input. It never
// prints a prompt.
func NewScriptReader(r io.Reader) LineReader {
	return &scriptReader{r: r}
}

func (s *scriptReader) SetPrompt(string) {}

func (s *scriptReader) Readline() (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := s.r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				return b.String(), nil
			}
			b.WriteByte(buf[0])
			continue
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && b.Len() > 0 {
				return b.String(), nil
			}
			return "", err
		}
	}
}

func (s *scriptReader) Close() error { return nil }
