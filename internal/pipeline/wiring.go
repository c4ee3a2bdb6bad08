// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"os"
)

// stageFiles is the descriptor set of one stage while it is being launched.
// next is the read end of the pipe feeding the following stage and is nil
// for the last stage.
type stageFiles struct {
	in   *os.File
	out  *os.File
	next *os.File
}

// wire resolves the input and output of stage i. in is the input handed
// down from the previous stage and is ignored for the first stage. On
// failure everything opened for this stage, including in, is closed.
func (e *Executor) wire(i int, c Command, pos Position, in *os.File) (stageFiles, error) {
	fail := func(op string, err error) (stageFiles, error) {
		return stageFiles{}, &StageError{Stage: i, Command: c.Name, Kind: KindSetup, Op: op, Err: err}
	}

	f := stageFiles{in: in}
	if pos.IsStart() {
		f.in = e.streams.Stdin
		if c.In != "" {
			r, err := os.OpenFile(c.In, os.O_RDWR, 0)
			if err != nil {
				return fail("open input", err)
			}
			f.in = r
		}
	}
	if f.in == nil {
		return fail("input", errors.New("no input handed down from previous stage"))
	}

	if pos.IsEnd() {
		f.out = e.streams.Stdout
		if c.Out != "" {
			w, err := os.OpenFile(c.Out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
			if err != nil {
				e.safeClose(f.in)
				return fail("open output", err)
			}
			f.out = w
		}
		return f, nil
	}

	r, w, err := os.Pipe()
	if err != nil {
		e.safeClose(f.in)
		return fail("pipe", err)
	}
	f.out, f.next = w, r
	return f, nil
}

// safeClose closes f unless it is nil or one of the interpreter's own
// streams.
func (e *Executor) safeClose(f *os.File) error {
	if f == nil || f == e.streams.Stdin || f == e.streams.Stdout || f == e.streams.Stderr {
		return nil
	}
	return f.Close()
}
