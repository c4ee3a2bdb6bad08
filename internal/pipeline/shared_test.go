// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marcelocantos/pipesh/internal/signals"
)

// The interactive shell runs stages in its own process group, so signals
// sent to "the group" also reach the interpreter. These tests run the
// interpreter side in a child of the test binary that leads a fresh
// session, keeping group-wide signals away from the test runner.

const sharedGroupEnv = "PIPESH_SHARED_GROUP_MODE"

func TestSharedGroupChild(t *testing.T) {
	mode := os.Getenv(sharedGroupEnv)
	if mode == "" {
		t.Skip("runs only as a child of the shared group tests")
	}
	os.Exit(sharedGroupMain(mode))
}

// countingTarget counts interrupts forwarded after the pipeline finished.
type countingTarget struct{ n atomic.Int64 }

func (c *countingTarget) Signal(syscall.Signal) error {
	c.n.Add(1)
	return nil
}

func (c *countingTarget) IncludesSelf() bool { return false }

func sharedGroupMain(mode string) int {
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer null.Close()
	streams := Streams{Stdin: null, Stdout: null, Stderr: os.Stderr}

	coord := signals.New()
	if err := coord.Install(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer coord.Uninstall()

	intr := &unblockNotifier{Coordinator: coord, launched: make(chan struct{})}
	go func() {
		<-intr.launched
		fmt.Println("launched")
	}()

	line := "sleep 30 | sleep 30"
	if mode == "teardown" {
		line = "sleep 30 | pipesh-no-such-command"
	}
	p, err := Parse(line)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	exe := NewExecutor(streams, WithInterrupts(intr), WithIsolatedGroup(false))
	res, err := exe.Run(context.Background(), p)

	// A re-send that escaped the echo guard would be forwarded again.
	late := &countingTarget{}
	coord.Attach(late)
	time.Sleep(2 * signals.DefaultEchoWindow)
	coord.Detach()

	fmt.Printf("result kind=%s codes=%v forwarded=%d late=%d\n",
		ErrorKind(err), res.ExitCodes(), coord.Forwarded(), late.n.Load())
	return 0
}

// runSharedGroup runs the interpreter side in mode and returns its result
// line. With interrupt set, SIGINT is sent to the interpreter alone once
// every stage has been launched.
func runSharedGroup(t *testing.T, mode string, interrupt bool) string {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^TestSharedGroupChild$")
	cmd.Env = append(os.Environ(), sharedGroupEnv+"="+mode)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pgid := cmd.Process.Pid
	timer := time.AfterFunc(20*time.Second, func() { _ = unix.Kill(-pgid, unix.SIGKILL) })
	defer timer.Stop()

	var result string
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "launched" && interrupt:
			if err := cmd.Process.Signal(os.Interrupt); err != nil {
				t.Error(err)
			}
		case strings.HasPrefix(line, "result "):
			result = line
		}
	}
	if err := cmd.Wait(); err != nil {
		t.Fatalf("interpreter did not survive: %v\n%s", err, stderr.String())
	}
	if result == "" {
		t.Fatalf("no result from interpreter\n%s", stderr.String())
	}
	return result
}

func TestSharedGroupForwardsInterrupt(t *testing.T) {
	got := runSharedGroup(t, "interrupt", true)
	want := "result kind= codes=[130 130] forwarded=1 late=0"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSharedGroupTeardownSparesInterpreter(t *testing.T) {
	got := runSharedGroup(t, "teardown", false)
	want := fmt.Sprintf("result kind=exec codes=[%d -1] forwarded=0 late=0", 128+int(unix.SIGTERM))
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
