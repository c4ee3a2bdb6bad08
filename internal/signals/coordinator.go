// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package signals keeps the interpreter alive across interactive interrupts
// and forwards them to the running pipeline.
package signals

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var (
	ErrNotInstalled = errors.New("interrupt handler not installed")
	ErrNotBlocked   = errors.New("interrupt not blocked")
)

// Target is a running pipeline that interrupts are forwarded to.
type Target interface {
	// Signal delivers sig to every process of the pipeline's group.
	Signal(sig syscall.Signal) error
	// IncludesSelf reports whether the group contains the interpreter, in
	// which case the interpreter receives its own re-send.
	IncludesSelf() bool
}

// DefaultEchoWindow bounds how long a re-sent interrupt may take to come
// back to the interpreter before it is treated as a new one.
const DefaultEchoWindow = 250 * time.Millisecond

// Coordinator owns the interpreter's interrupt handling. The interrupt is
// subscribed to, never ignored: an ignored disposition would survive exec
// and make pipeline stages immune to it.
type Coordinator struct {
	sig        syscall.Signal
	self       int64
	echoWindow time.Duration

	mu        sync.Mutex
	installed bool
	blocked   bool
	pending   bool
	target    Target
	ch        chan os.Signal
	done      chan struct{}
	wg        sync.WaitGroup

	// Sender identity of the last group-wide re-send and the deadline for
	// its echo. An interrupt seen while they are set is that echo.
	echoFrom     atomic.Int64
	echoDeadline atomic.Int64

	forwarded atomic.Int64
}

// New returns a coordinator for SIGINT.
func New() *Coordinator {
	return &Coordinator{
		sig:        unix.SIGINT,
		self:       int64(os.Getpid()),
		echoWindow: DefaultEchoWindow,
	}
}

// Install subscribes to the interrupt and starts handling it.
func (c *Coordinator) Install() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.installed {
		return errors.New("interrupt handler already installed")
	}
	c.ch = make(chan os.Signal, 4)
	c.done = make(chan struct{})
	signal.Notify(c.ch, c.sig)
	c.installed = true

	c.wg.Add(1)
	go c.loop(c.ch, c.done)
	return nil
}

// Uninstall stops handling the interrupt and restores its default
// disposition.
func (c *Coordinator) Uninstall() {
	c.mu.Lock()
	if !c.installed {
		c.mu.Unlock()
		return
	}
	signal.Stop(c.ch)
	close(c.done)
	c.installed = false
	c.blocked = false
	c.pending = false
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) loop(ch <-chan os.Signal, done <-chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-ch:
			c.handle()
		}
	}
}

// handle processes one delivery of the interrupt.
func (c *Coordinator) handle() {
	if c.consumeEcho() {
		return
	}
	c.mu.Lock()
	if c.blocked {
		c.pending = true
		c.mu.Unlock()
		return
	}
	t := c.target
	c.mu.Unlock()
	c.forward(t)
}

func (c *Coordinator) forward(t Target) {
	if t == nil {
		return
	}
	if t.IncludesSelf() {
		c.echoDeadline.Store(time.Now().Add(c.echoWindow).UnixNano())
		c.echoFrom.Store(c.self)
	}
	if err := t.Signal(c.sig); err != nil {
		c.echoFrom.Store(0)
		return
	}
	c.forwarded.Add(1)
}

// consumeEcho reports whether the interrupt just received is the echo of
// the coordinator's own re-send. The marker is consumed either way.
func (c *Coordinator) consumeEcho() bool {
	if c.echoFrom.Swap(0) != c.self {
		return false
	}
	return time.Now().UnixNano() <= c.echoDeadline.Load()
}

// Block holds interrupts pending until Unblock.
func (c *Coordinator) Block() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.installed {
		return ErrNotInstalled
	}
	c.blocked = true
	return nil
}

// Unblock lifts Block and forwards an interrupt that arrived meanwhile.
func (c *Coordinator) Unblock() error {
	c.mu.Lock()
	if !c.installed {
		c.mu.Unlock()
		return ErrNotInstalled
	}
	if !c.blocked {
		c.mu.Unlock()
		return ErrNotBlocked
	}
	c.blocked = false
	pending := c.pending
	c.pending = false
	t := c.target
	c.mu.Unlock()

	if pending {
		c.forward(t)
	}
	return nil
}

// Attach makes t the target of forwarded interrupts.
func (c *Coordinator) Attach(t Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = t
}

// Detach clears the target; interrupts are then absorbed.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = nil
}

// Forwarded returns the number of interrupts re-sent so far.
func (c *Coordinator) Forwarded() int64 {
	return c.forwarded.Load()
}
