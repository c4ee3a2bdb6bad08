// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is an owned child process: one pipeline stage.
type Process struct {
	Name  string
	proc  *os.Process
	state *os.ProcessState
}

// Pid returns the child's process id.
func (p *Process) Pid() int { return p.proc.Pid }

// Signal sends sig to the child. Signalling a child that has already been
// reaped is not an error.
func (p *Process) Signal(sig syscall.Signal) error {
	err := p.proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Wait blocks until the child terminates and reaps it. Later calls return
// the same state.
func (p *Process) Wait() (*os.ProcessState, error) {
	if p.state != nil {
		return p.state, nil
	}
	st, err := p.proc.Wait()
	if err != nil {
		return nil, err
	}
	p.state = st
	return st, nil
}

// start launches c as stage i with the resolved descriptors on fd 0 and 1.
// pgid is the group to join in isolated mode (0 creates a new group led by
// the child).
//
// The runtime forks and execs in one step. In the child it restores default
// disposition for handled signals and the pre-fork signal mask, so the
// interrupt is neither caught nor blocked after exec. Descriptors other
// than 0, 1 and 2 are close-on-exec, which also drops the child's copy of
// the next pipe's read end.
func (e *Executor) start(i int, c Command, f stageFiles, pgid int) (*Process, error) {
	path, err := e.lookPath(c.Name)
	if err != nil {
		return nil, &StageError{Stage: i, Command: c.Name, Kind: KindExec, Op: "lookup", Err: err}
	}

	attr := &os.ProcAttr{
		Files: []*os.File{f.in, f.out, e.streams.Stderr},
		Sys:   &syscall.SysProcAttr{Setpgid: e.isolate, Pgid: pgid},
	}
	proc, err := os.StartProcess(path, Argv(c), attr)
	if err != nil {
		kind := startKind(err)
		return nil, &StageError{Stage: i, Command: c.Name, Kind: kind, Op: kind.String(), Err: err}
	}
	return &Process{Name: c.Name, proc: proc}, nil
}
