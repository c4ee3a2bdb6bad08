// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/marcelocantos/pipesh/internal/pipeline"
)

// Hardcoded returns the built-in safety rules that are always enforced
// regardless of configuration or override. They block permanently
// catastrophic operations.
func Hardcoded() []CheckFunc {
	return []CheckFunc{
		checkRmCatastrophic,
	}
}

// CheckGitCheckoutAll refuses "git checkout ." in any spelling ("./",
// "-- ."), which discards every uncommitted change. It is a config rule, so
// override lifts it.
func CheckGitCheckoutAll(name string, args []string) error {
	if name != "git" || len(args) == 0 || args[0] != "checkout" {
		return nil
	}
	for _, arg := range args[1:] {
		if filepath.Clean(arg) == "." {
			return fmt.Errorf("git checkout %s: refusing to discard all uncommitted changes (config rule)", arg)
		}
	}
	return nil
}

// checkRmCatastrophic blocks recursive removal of root, home, or current directory.
func checkRmCatastrophic(name string, args []string) error {
	if name != "rm" {
		return nil
	}
	if !hasAnyFlag(args, "-r", "-R") {
		return nil
	}
	for _, arg := range args {
		if arg == "" || arg[0] == '-' {
			continue
		}
		cleaned := filepath.Clean(arg)
		if cleaned == "/" || cleaned == "." || cleaned == ".." {
			return fmt.Errorf("refusing to recursively remove %q. This operation is permanently blocked", arg)
		}
		if arg == "~" || strings.HasPrefix(arg, "~/") {
			return fmt.Errorf("refusing to recursively remove %q. This operation is permanently blocked", arg)
		}
	}
	return nil
}

// checkRedirectClobber refuses a pipeline that reads and truncates the same
// file.
func checkRedirectClobber(p *pipeline.Pipeline) error {
	in := p.Commands[0].In
	out := p.Commands[len(p.Commands)-1].Out
	if in == "" || out == "" {
		return nil
	}
	if filepath.Clean(in) == filepath.Clean(out) {
		return fmt.Errorf("output redirect %q would truncate the pipeline's input (config rule)", out)
	}
	return nil
}
