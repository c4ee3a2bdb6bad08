// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"fmt"
	"strings"

	"github.com/marcelocantos/pipesh/internal/pipeline"
)

// CheckFunc validates the arguments of a named command.
// Returns a non-nil error to block execution.
type CheckFunc func(name string, args []string) error

// RuleSet holds an ordered list of validation rules. Hardcoded rules run first
// and cannot be removed. Config rules are appended after.
type RuleSet struct {
	hardcoded []CheckFunc
	config    []CheckFunc
}

// NewRuleSet creates a RuleSet with the given hardcoded rules.
func NewRuleSet(hardcoded ...CheckFunc) *RuleSet {
	return &RuleSet{hardcoded: hardcoded}
}

// AddConfig appends a config-driven rule.
func (rs *RuleSet) AddConfig(fn CheckFunc) {
	rs.config = append(rs.config, fn)
}

// Check runs all rules against the given command name and args.
// Hardcoded rules always run first. When override is true, config rules are
// skipped (the user has explicitly approved the operation).
func (rs *RuleSet) Check(name string, args []string, override bool) error {
	for _, fn := range rs.hardcoded {
		if err := fn(name, args); err != nil {
			return err
		}
	}
	if override {
		return nil
	}
	for _, fn := range rs.config {
		if err := fn(name, args); err != nil {
			return err
		}
	}
	return nil
}

// CheckPipeline runs the rules over every stage of p before anything is
// launched. A pipeline whose output redirect names its own input file is
// refused as well, since the output is truncated before it is read.
func (rs *RuleSet) CheckPipeline(p *pipeline.Pipeline, override bool) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for i, c := range p.Commands {
		if err := rs.Check(c.Name, c.Args, override); err != nil {
			return fmt.Errorf("stage %d (%s): %w", i, c.Name, err)
		}
	}
	if override {
		return nil
	}
	return checkRedirectClobber(p)
}

// hasAnyFlag checks whether any element in args matches one of the given flags.
// It handles:
//   - Exact match: "-f" matches "-f"
//   - Combined short flags: "-rf" matches "-r" and "-f"
//   - Short flag with value: "-j4" matches "-j"
//   - Long flag with =: "--flag=value" matches "--flag"
func hasAnyFlag(args []string, flags ...string) bool {
	for _, arg := range args {
		if arg == "" || arg[0] != '-' {
			continue
		}
		for _, flag := range flags {
			if arg == flag {
				return true
			}
			// Short flag: "-j" matches "-j4" (value suffix) and "-rf" (combined)
			if len(flag) == 2 && flag[0] == '-' && flag[1] != '-' &&
				len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
				if strings.ContainsRune(arg[1:], rune(flag[1])) {
					return true
				}
			}
			// Long flag with =: "--force" matches "--force=yes"
			if len(flag) > 2 && flag[0:2] == "--" && strings.HasPrefix(arg, flag+"=") {
				return true
			}
		}
	}
	return false
}
