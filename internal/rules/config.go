// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package rules

import "fmt"

// CommandRuleConfig represents one command's rules from YAML config.
type CommandRuleConfig struct {
	RejectFlags []string                 `yaml:"reject_flags"`
	Subcommands map[string]SubRuleConfig `yaml:"subcommands"`
}

// SubRuleConfig represents rules for a specific subcommand.
type SubRuleConfig struct {
	RejectFlags []string `yaml:"reject_flags"`
}

// CompileCommandRule turns a single command's config into CheckFuncs.
func CompileCommandRule(name string, cfg CommandRuleConfig) []CheckFunc {
	var fns []CheckFunc

	// Top-level reject_flags for the whole command.
	if len(cfg.RejectFlags) > 0 {
		flags := cfg.RejectFlags
		fns = append(fns, func(cn string, args []string) error {
			if cn != name {
				return nil
			}
			if hasAnyFlag(args, flags...) {
				return fmt.Errorf("%s: rejected flag (config rule)", name)
			}
			return nil
		})
	}

	// Subcommand-level rules.
	for subcmd, subRule := range cfg.Subcommands {
		if len(subRule.RejectFlags) > 0 {
			flags := subRule.RejectFlags
			sub := subcmd
			fns = append(fns, func(cn string, args []string) error {
				if cn != name || len(args) == 0 || args[0] != sub {
					return nil
				}
				if hasAnyFlag(args[1:], flags...) {
					return fmt.Errorf("%s %s: rejected flag (config rule)", name, sub)
				}
				return nil
			})
		}
	}

	return fns
}

// DefaultConfig returns the rules used when the configuration names none.
func DefaultConfig() map[string]CommandRuleConfig {
	return map[string]CommandRuleConfig{
		"git": {
			Subcommands: map[string]SubRuleConfig{
				"push":  {RejectFlags: []string{"--force", "-f", "--force-with-lease"}},
				"reset": {RejectFlags: []string{"--hard"}},
			},
		},
	}
}

// FromConfig builds the full rule set: the hardcoded rules, the compiled
// config rules (DefaultConfig when cfg is nil) and the programmatic
// defaults that cannot be expressed in YAML.
func FromConfig(cfg map[string]CommandRuleConfig) *RuleSet {
	rs := NewRuleSet(Hardcoded()...)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	for name, rule := range cfg {
		for _, fn := range CompileCommandRule(name, rule) {
			rs.AddConfig(fn)
		}
	}
	rs.AddConfig(CheckGitCheckoutAll)
	return rs
}
