// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Verify walks the log and returns an error naming the first entry that
// breaks the chain or describes an impossible pipeline run. An empty log
// is valid.
func Verify(path string) error {
	entries, err := readEntries(path)
	if err != nil {
		return err
	}

	prev := genesisHash()
	for i, e := range entries {
		at := fmt.Sprintf("entry %d", i+1)
		if e.Seq != uint64(i+1) {
			return fmt.Errorf("%s: seq %d, want %d (entries missing or reordered)", at, e.Seq, i+1)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%s: chained to %s, want %s", at, short(e.PrevHash), short(prev))
		}
		if want := computeHash(e); e.Hash != want {
			return fmt.Errorf("%s (%q): content altered: hash %s, want %s", at, e.Line, short(e.Hash), short(want))
		}
		if err := checkStages(e); err != nil {
			return fmt.Errorf("%s (%q): %w", at, e.Line, err)
		}
		prev = e.Hash
	}
	return nil
}

// checkStages reports stage records that no pipeline run can produce.
func checkStages(e Entry) error {
	n := len(e.Commands)
	if n == 0 {
		return errors.New("no commands")
	}
	if len(e.ExitCodes) != 0 && len(e.ExitCodes) != n {
		return fmt.Errorf("%d exit codes for %d stages", len(e.ExitCodes), n)
	}
	if len(e.Pids) > n {
		return fmt.Errorf("%d pids for %d stages", len(e.Pids), n)
	}
	ran := 0
	for _, c := range e.ExitCodes {
		if c >= 0 {
			ran++
		}
	}
	if ran > len(e.Pids) {
		return fmt.Errorf("%d stages ended but only %d launched", ran, len(e.Pids))
	}
	if e.Success && e.Error != "" {
		return errors.New("successful run carries an error")
	}
	if !e.Success && e.Error == "" {
		return errors.New("failed run without an error")
	}
	if e.Success && len(e.Pids) > 0 && len(e.Pids) != n {
		return fmt.Errorf("successful run launched %d of %d stages", len(e.Pids), n)
	}
	return nil
}

// Tail returns the last n entries from the audit log.
func Tail(path string, n int) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	lines := splitLines(data)
	n = max(0, min(n, len(lines)))

	entries := make([]Entry, 0, n)
	for _, line := range lines[len(lines)-n:] {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	lines := splitLines(data)
	entries := make([]Entry, len(lines))
	for i, line := range lines {
		if err := json.Unmarshal(line, &entries[i]); err != nil {
			return nil, fmt.Errorf("entry %d: not JSON: %w", i+1, err)
		}
	}
	return entries, nil
}

// short abbreviates a hash for diagnostics.
func short(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:16] + "..."
}
