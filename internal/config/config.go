// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v9"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/marcelocantos/pipesh/internal/pipeline"
	"github.com/marcelocantos/pipesh/internal/rules"
)

// EnvPrefix prefixes every environment override, e.g. PIPESH_PROMPT or
// PIPESH_PIPELINE_KILL_SIGNAL.
const EnvPrefix = "PIPESH_"

// Config holds the global pipesh configuration.
type Config struct {
	Prompt      string                             `yaml:"prompt" env:"PROMPT"`
	HistoryFile string                             `yaml:"history_file" env:"HISTORY_FILE"`
	RCFile      string                             `yaml:"rc_file" env:"RC_FILE"`
	Color       bool                               `yaml:"color" env:"COLOR"`
	Audit       AuditConfig                        `yaml:"audit" envPrefix:"AUDIT_"`
	Pipeline    PipelineConfig                     `yaml:"pipeline" envPrefix:"PIPELINE_"`
	Rules       map[string]rules.CommandRuleConfig `yaml:"rules"`
}

// AuditConfig controls audit log settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// PipelineConfig controls how pipelines are launched.
type PipelineConfig struct {
	// IsolateGroup runs each pipeline in its own process group. Stages that
	// read the terminal are stopped in that case, so it is off for the
	// interactive shell.
	IsolateGroup bool   `yaml:"isolate_group" env:"ISOLATE_GROUP"`
	ReapOrphans  bool   `yaml:"reap_orphans" env:"REAP_ORPHANS"`
	KillSignal   string `yaml:"kill_signal" env:"KILL_SIGNAL"`
}

// Signal returns the configured kill signal. Names may omit the SIG prefix.
func (p PipelineConfig) Signal() (syscall.Signal, error) {
	if p.KillSignal == "" {
		return unix.SIGTERM, nil
	}
	name := strings.ToUpper(p.KillSignal)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("unknown kill_signal %q", p.KillSignal)
	}
	return sig, nil
}

// Options returns the executor options for this configuration.
func (p PipelineConfig) Options() ([]pipeline.Option, error) {
	sig, err := p.Signal()
	if err != nil {
		return nil, err
	}
	return []pipeline.Option{
		pipeline.WithIsolatedGroup(p.IsolateGroup),
		pipeline.WithReapOrphans(p.ReapOrphans),
		pipeline.WithKillSignal(sig),
	}, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Prompt:      "-> ",
		HistoryFile: filepath.Join(home, ".local", "share", "pipesh", "history"),
		RCFile:      filepath.Join(home, ".config", "pipesh", "rc.star"),
		Color:       true,
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(home, ".local", "share", "pipesh", "audit.jsonl"),
		},
		Pipeline: PipelineConfig{
			ReapOrphans: true,
			KillSignal:  "SIGTERM",
		},
	}
}

// Load reads the config from the standard location (~/.config/pipesh/config.yaml).
// If the file doesn't exist, returns the default config.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config from the given path and applies environment
// overrides.
func LoadFrom(path string) (*Config, error) {
	return load(path, nil)
}

// load is LoadFrom with an explicit environment; nil means the process's.
func load(path string, environ map[string]string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config environment: %w", err)
	}

	cfg.HistoryFile = expandHome(cfg.HistoryFile)
	cfg.RCFile = expandHome(cfg.RCFile)
	cfg.Audit.Path = expandHome(cfg.Audit.Path)

	if _, err := cfg.Pipeline.Signal(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// RuleSet builds the argument rules from the config.
func (c *Config) RuleSet() *rules.RuleSet {
	return rules.FromConfig(c.Rules)
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pipesh", "config.yaml")
}

// expandHome expands a leading ~ in path.
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
