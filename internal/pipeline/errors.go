// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind classifies a stage failure. All kinds abort the pipeline; they differ
// only in the diagnostic.
type Kind int

const (
	KindSetup Kind = iota // redirect open, pipe creation, descriptor close
	KindFork              // no child was created
	KindExec              // the child could not replace its image
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindFork:
		return "fork"
	case KindExec:
		return "exec"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StageError reports the failure of one stage's launch.
type StageError struct {
	Stage   int    // zero-based position in the pipeline
	Command string // command name
	Kind    Kind
	Op      string // e.g. "open input", "pipe", "close"
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %s: %v", e.Stage, e.Command, e.Op, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// SignalError reports a failure to change the interrupt's block state.
// The interpreter cannot safely continue and must exit.
type SignalError struct {
	Op  string // "block" or "unblock"
	Err error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("%s interrupt: %v", e.Op, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }

// IsFatal reports whether err must terminate the interpreter.
func IsFatal(err error) bool {
	var se *SignalError
	return errors.As(err, &se)
}

// ErrorKind returns a short classification of err for diagnostics and the
// audit log, or "" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind.String()
	}
	if IsFatal(err) {
		return "signal"
	}
	return "other"
}

// startKind tells fork failures from exec failures in an os.StartProcess
// error. Only resource exhaustion can stop the fork itself.
func startKind(err error) Kind {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOMEM), errors.Is(err, unix.ENOSYS):
		return KindFork
	default:
		return KindExec
	}
}
