// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package audit

import "time"

// Entry represents a single audit log record: one executed pipeline.
type Entry struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"ts"`
	PrevHash  string    `json:"prev_hash"`
	Source    string    `json:"source"`               // "shell", "command" or "mcp"
	Line      string    `json:"line"`                 // pipeline as executed, after alias expansion
	Commands  []string  `json:"commands"`             // command name of each stage
	Pids      []int     `json:"pids,omitempty"`       // pid of each launched stage
	ExitCodes []int     `json:"exit_codes,omitempty"` // per stage; 128+n if killed by signal n, -1 if never run
	Override  bool      `json:"override,omitempty"`   // config rules were skipped
	Success   bool      `json:"success"`              // every stage launched and reaped
	Error     string    `json:"error,omitempty"`      // error message if failed
	ErrorKind string    `json:"error_kind,omitempty"` // "rule", "setup", "fork", "exec", "signal", ...
	Duration  float64   `json:"duration_ms"`          // execution time in milliseconds
	Cwd       string    `json:"cwd"`                  // working directory
	Hash      string    `json:"hash"`                 // SHA-256 of this entry (with hash field empty)
}

// Record is what the caller knows about a pipeline run.
type Record struct {
	Source    string
	Line      string
	Commands  []string
	Pids      []int
	ExitCodes []int
	Override  bool
	Err       error
	ErrorKind string
	Duration  time.Duration
	Cwd       string
}
