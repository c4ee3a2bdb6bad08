// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/marcelocantos/pipesh/internal/signals"
)

// Interrupts brackets a pipeline run: the interrupt is blocked while stages
// are launched and the running pipeline is the forwarding target until it
// finishes. *signals.Coordinator implements it.
type Interrupts interface {
	Block() error
	Unblock() error
	Attach(t signals.Target)
	Detach()
}

type noInterrupts struct{}

func (noInterrupts) Block() error          { return nil }
func (noInterrupts) Unblock() error        { return nil }
func (noInterrupts) Attach(signals.Target) {}
func (noInterrupts) Detach()               {}

// Executor launches pipelines as one OS process per stage.
type Executor struct {
	streams  Streams
	intr     Interrupts
	isolate  bool
	reap     bool
	killSig  syscall.Signal
	lookPath func(string) (string, error)
	flush    func() error
}

// Option configures an Executor.
type Option func(*Executor)

// WithInterrupts sets the interrupt coordinator. Without one, interrupts
// are not blocked during launch and not forwarded.
func WithInterrupts(i Interrupts) Option {
	return func(e *Executor) { e.intr = i }
}

// WithIsolatedGroup puts every pipeline in its own process group led by
// its first stage. Otherwise stages share the interpreter's group.
func WithIsolatedGroup(isolate bool) Option {
	return func(e *Executor) { e.isolate = isolate }
}

// WithReapOrphans makes Run also collect terminated children of the
// interpreter that it did not launch itself.
func WithReapOrphans(reap bool) Option {
	return func(e *Executor) { e.reap = reap }
}

// WithKillSignal sets the signal sent to launched stages when the pipeline
// is torn down. The default is SIGTERM.
func WithKillSignal(sig syscall.Signal) Option {
	return func(e *Executor) { e.killSig = sig }
}

// WithLookPath replaces the executable search (exec.LookPath).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(e *Executor) { e.lookPath = fn }
}

// WithFlush registers a flush of buffered interpreter output, called before
// the first stage is launched and after the pipeline has finished.
func WithFlush(fn func() error) Option {
	return func(e *Executor) { e.flush = fn }
}

// NewExecutor returns an Executor attached to the given streams. Nil
// streams default to the process's own.
func NewExecutor(streams Streams, opts ...Option) *Executor {
	std := StdStreams()
	if streams.Stdin == nil {
		streams.Stdin = std.Stdin
	}
	if streams.Stdout == nil {
		streams.Stdout = std.Stdout
	}
	if streams.Stderr == nil {
		streams.Stderr = std.Stderr
	}
	e := &Executor{
		streams:  streams,
		intr:     noInterrupts{},
		killSig:  unix.SIGTERM,
		lookPath: exec.LookPath,
		flush:    func() error { return nil },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StageStatus describes how one stage ended.
type StageStatus struct {
	Name     string
	Pid      int
	Launched bool
	Exited   bool // terminated normally
	ExitCode int  // valid when Exited
	Signaled bool
	Signal   syscall.Signal // valid when Signaled
}

// Result is the outcome of a pipeline run.
type Result struct {
	Stages []StageStatus
	Pipes  int // pipes created
}

// Pids returns the pid of every launched stage.
func (r *Result) Pids() []int {
	var pids []int
	for _, s := range r.Stages {
		if s.Launched {
			pids = append(pids, s.Pid)
		}
	}
	return pids
}

// ExitCodes returns one code per stage: the exit status, 128+signal for a
// stage killed by a signal, -1 for a stage that never ran.
func (r *Result) ExitCodes() []int {
	codes := make([]int, len(r.Stages))
	for i, s := range r.Stages {
		switch {
		case s.Exited:
			codes[i] = s.ExitCode
		case s.Signaled:
			codes[i] = 128 + int(s.Signal)
		default:
			codes[i] = -1
		}
	}
	return codes
}

// running is the state of a pipeline between its first launch and the
// reaping of its last stage. It is the forwarding target for interrupts
// and is therefore shared with the coordinator's goroutine.
type running struct {
	mu      sync.Mutex
	isolate bool
	pgid    int
	procs   []*Process

	in *os.File // input handed down to the next stage; orchestrator only
}

func (r *running) add(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs = append(r.procs, p)
	if r.isolate && r.pgid == 0 {
		r.pgid = p.Pid()
	}
}

func (r *running) group() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pgid
}

// Signal delivers sig to the whole pipeline's process group.
func (r *running) Signal(sig syscall.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isolate {
		return unix.Kill(0, sig)
	}
	if r.pgid == 0 {
		return nil
	}
	return ignoreGone(unix.Kill(-r.pgid, sig))
}

// IncludesSelf reports whether Signal also reaches the interpreter.
func (r *running) IncludesSelf() bool { return !r.isolate }

// terminate sends sig to every launched stage. A shared group would include
// the interpreter, so there each collected pid is signalled instead.
func (r *running) terminate(sig syscall.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isolate && r.pgid != 0 {
		_ = unix.Kill(-r.pgid, sig)
		return
	}
	for _, p := range r.procs {
		_ = p.Signal(sig)
	}
}

// wait reaps every launched stage and records how it ended.
func (r *running) wait(res *Result) {
	r.mu.Lock()
	procs := append([]*Process(nil), r.procs...)
	r.mu.Unlock()

	for i, p := range procs {
		st, err := p.Wait()
		if err != nil {
			continue
		}
		ws, ok := st.Sys().(syscall.WaitStatus)
		switch {
		case ok && ws.Signaled():
			res.Stages[i].Signaled = true
			res.Stages[i].Signal = ws.Signal()
		default:
			res.Stages[i].Exited = true
			res.Stages[i].ExitCode = st.ExitCode()
		}
	}
}

func ignoreGone(err error) error {
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Run launches p, one process per stage in pipeline order, and waits for
// all of them. It returns nil only when every stage was launched and
// reaped; stage exit codes are reported in the Result. If a stage fails to
// launch, later stages are never launched and the launched ones are
// terminated and reaped before Run returns a *StageError. A *SignalError
// means the interrupt could not be unblocked and the caller must exit.
func (e *Executor) Run(ctx context.Context, p *Pipeline) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res := &Result{Stages: make([]StageStatus, len(p.Commands))}
	for i, c := range p.Commands {
		res.Stages[i].Name = c.Name
	}

	_ = e.flush()
	if err := e.intr.Block(); err != nil {
		return res, &SignalError{Op: "block", Err: err}
	}
	st := &running{isolate: e.isolate}
	e.intr.Attach(st)
	defer e.intr.Detach()

	last := len(p.Commands) - 1
	pos := PosStart
	for i, c := range p.Commands {
		if i == last {
			pos |= PosEnd
		}
		if err := e.launch(i, c, pos, st, res); err != nil {
			if ferr := e.abort(st, res); ferr != nil {
				return res, ferr
			}
			return res, err
		}
		pos = PosIntermediate
	}

	if err := e.intr.Unblock(); err != nil {
		st.terminate(e.killSig)
		st.wait(res)
		return res, &SignalError{Op: "unblock", Err: err}
	}

	stop := context.AfterFunc(ctx, func() { st.terminate(e.killSig) })
	st.wait(res)
	stop()
	if e.reap {
		reapOrphans()
	}
	_ = e.flush()

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("pipeline cancelled: %w", err)
	}
	return res, nil
}

// launch wires and starts stage i, then releases the parent's copies of the
// stage's descriptors.
func (e *Executor) launch(i int, c Command, pos Position, st *running, res *Result) error {
	f, err := e.wire(i, c, pos, st.in)
	st.in = nil
	if err != nil {
		return err
	}
	if f.next != nil {
		res.Pipes++
	}

	proc, err := e.start(i, c, f, st.group())
	if err != nil {
		e.safeClose(f.in)
		e.safeClose(f.out)
		e.safeClose(f.next)
		return err
	}
	st.add(proc)
	res.Stages[i].Pid = proc.Pid()
	res.Stages[i].Launched = true

	errIn := e.safeClose(f.in)
	errOut := e.safeClose(f.out)
	st.in = f.next
	if err := errors.Join(errIn, errOut); err != nil {
		return &StageError{Stage: i, Command: c.Name, Kind: KindSetup, Op: "close", Err: err}
	}
	return nil
}

// abort tears a partially launched pipeline down: the dangling input is
// closed, the interrupt unblocked, and every launched stage terminated and
// reaped. It returns a *SignalError if the interrupt stays blocked.
func (e *Executor) abort(st *running, res *Result) error {
	e.safeClose(st.in)
	st.in = nil
	uerr := e.intr.Unblock()
	st.terminate(e.killSig)
	st.wait(res)
	_ = e.flush()
	if uerr != nil {
		return &SignalError{Op: "unblock", Err: uerr}
	}
	return nil
}

// reapOrphans collects every child of the interpreter that has already
// terminated.
func reapOrphans() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}
	}
}
