// Package config holds the settings of perld and of the tools it runs.
//
// Settings are layered: Default, then a YAML file, then command line flags,
// then whatever the editor sends as initializationOptions and through
// workspace/didChangeConfiguration. Every layer is decoded on top of the
// previous one, so keys a layer leaves out keep their earlier value.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/shell"
)

// Severity names perlcritic uses, from 5 (least strict) to 1.
var SeverityNames = []string{"gentle", "stern", "harsh", "cruel", "brutal"}

type Config struct {
	Perltidy   PerltidyConfig   `json:"perltidy" yaml:"perltidy"`
	Perlcritic PerlcriticConfig `json:"perlcritic" yaml:"perlcritic"`
	Workspace  WorkspaceConfig  `json:"workspace" yaml:"workspace"`
	Timeout    Duration         `json:"timeout" yaml:"timeout"`
}

type PerltidyConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Executable string   `json:"executable" yaml:"executable" validate:"required"`
	Args       []string `json:"args" yaml:"args"`
}

type PerlcriticConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Executable string   `json:"executable" yaml:"executable" validate:"required"`
	Args       []string `json:"args" yaml:"args"`
	// LintOnChange lints unsaved buffers through a temporary file.
	LintOnChange bool     `json:"lintOnChange" yaml:"lintOnChange"`
	Debounce     Duration `json:"debounce" yaml:"debounce"`
	// Severities maps a perlcritic severity name to an editor severity.
	Severities map[string]string `json:"severities" yaml:"severities" validate:"dive,keys,oneof=gentle stern harsh cruel brutal,endkeys,oneof=hint info warning error"`
}

type WorkspaceConfig struct {
	LintOnStartup bool     `json:"lintOnStartup" yaml:"lintOnStartup"`
	ExcludeDirs   []string `json:"excludeDirs" yaml:"excludeDirs"`
	Concurrency   int      `json:"concurrency" yaml:"concurrency" validate:"min=1,max=64"`
}

func Default() Config {
	return Config{
		Perltidy: PerltidyConfig{
			Enabled:    true,
			Executable: "perltidy",
			Args:       []string{"-q"},
		},
		Perlcritic: PerlcriticConfig{
			Enabled:    true,
			Executable: "perlcritic",
			Args:       []string{},
			Debounce:   Duration{500 * time.Millisecond},
			Severities: map[string]string{
				"gentle": "error",
				"stern":  "error",
				"harsh":  "error",
				"cruel":  "error",
				"brutal": "error",
			},
		},
		Workspace: WorkspaceConfig{
			LintOnStartup: false,
			ExcludeDirs:   []string{".git", "blib", "local", "node_modules"},
			Concurrency:   4,
		},
		Timeout: Duration{30 * time.Second},
	}
}

// Clone returns a deep copy so that a layer can be decoded onto it without
// touching the original.
func (c Config) Clone() Config {
	clone := c
	clone.Perltidy.Args = slices.Clone(c.Perltidy.Args)
	clone.Perlcritic.Args = slices.Clone(c.Perlcritic.Args)
	clone.Perlcritic.Severities = maps.Clone(c.Perlcritic.Severities)
	clone.Workspace.ExcludeDirs = slices.Clone(c.Workspace.ExcludeDirs)
	return clone
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports settings that are out of range. Invalid severity names
// are not fatal: lookups of unknown values fall back to error.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// Normalize replaces values that cannot work with their defaults.
func (c *Config) Normalize() {
	def := Default()
	if c.Perltidy.Executable == "" {
		c.Perltidy.Executable = def.Perltidy.Executable
	}
	if c.Perlcritic.Executable == "" {
		c.Perlcritic.Executable = def.Perlcritic.Executable
	}
	if c.Perlcritic.Severities == nil {
		c.Perlcritic.Severities = def.Perlcritic.Severities
	}
	if c.Perlcritic.Debounce.Duration < 0 {
		c.Perlcritic.Debounce = def.Perlcritic.Debounce
	}
	if c.Workspace.Concurrency < 1 {
		c.Workspace.Concurrency = 1
	}
	if c.Timeout.Duration <= 0 {
		c.Timeout = def.Timeout
	}
}

// LoadFile decodes a YAML file on top of base. A missing file is not an
// error when optional is true.
func LoadFile(base Config, path string, optional bool) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return base, fmt.Errorf("reading config file: %w", err)
	}

	cfg := base.Clone()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

// DefaultFile is $XDG_CONFIG_HOME/perld/config.yaml or its platform
// equivalent.
func DefaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "perld", "config.yaml")
}

// ApplySettings decodes client settings on top of base. The settings may be
// wrapped in a "perld" key. The keys of the VS Code "simple-perl" extension
// ("perl.perltidy", "perl.perltidyArgs", "simple-perl.perlcritic" and the
// severity names) are understood as well.
func ApplySettings(base Config, raw json.RawMessage) (Config, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return base, nil
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return base, fmt.Errorf("decoding settings: %w", err)
	}

	cfg := base.Clone()
	settings := raw
	if wrapped, ok := sections["perld"]; ok {
		settings = wrapped
	}
	if err := json.Unmarshal(settings, &cfg); err != nil {
		return base, fmt.Errorf("decoding settings: %w", err)
	}
	if err := applyLegacySettings(&cfg, sections); err != nil {
		return base, err
	}

	cfg.Normalize()
	return cfg, nil
}

type legacyPerlSettings struct {
	Perltidy     *string  `json:"perltidy"`
	PerltidyArgs []string `json:"perltidyArgs"`
}

type legacySimplePerlSettings struct {
	Perlcritic *string `json:"perlcritic"`
	Gentle     *string `json:"gentle"`
	Stern      *string `json:"stern"`
	Harsh      *string `json:"harsh"`
	Cruel      *string `json:"cruel"`
	Brutal     *string `json:"brutal"`
}

func applyLegacySettings(cfg *Config, sections map[string]json.RawMessage) error {
	if raw, ok := sections["perl"]; ok {
		var perl legacyPerlSettings
		if err := json.Unmarshal(raw, &perl); err != nil {
			return fmt.Errorf("decoding perl settings: %w", err)
		}
		if perl.Perltidy != nil {
			cfg.Perltidy.Executable = *perl.Perltidy
		}
		if perl.PerltidyArgs != nil {
			cfg.Perltidy.Args = perl.PerltidyArgs
		}
	}

	if raw, ok := sections["simple-perl"]; ok {
		var simple legacySimplePerlSettings
		if err := json.Unmarshal(raw, &simple); err != nil {
			return fmt.Errorf("decoding simple-perl settings: %w", err)
		}
		if simple.Perlcritic != nil {
			cfg.Perlcritic.Executable = *simple.Perlcritic
		}
		if cfg.Perlcritic.Severities == nil {
			cfg.Perlcritic.Severities = map[string]string{}
		}
		for name, value := range map[string]*string{
			"gentle": simple.Gentle,
			"stern":  simple.Stern,
			"harsh":  simple.Harsh,
			"cruel":  simple.Cruel,
			"brutal": simple.Brutal,
		} {
			if value != nil {
				cfg.Perlcritic.Severities[name] = *value
			}
		}
	}
	return nil
}

// ExpandCommand performs shell expansion ($VAR, ${VAR}, ~, quotes) on the
// executable and the arguments. An argument that expands to several words
// becomes several arguments. Entries that fail to parse are passed on as
// they are.
func ExpandCommand(executable string, args []string) (string, []string) {
	expandedExecutable := executable
	if fields, err := shell.Fields(executable, nil); err != nil {
		slog.Warn("Could not expand executable", "executable", executable, "err", err)
	} else if len(fields) > 0 {
		expandedExecutable = fields[0]
	}

	expandedArgs := make([]string, 0, len(args))
	for _, arg := range args {
		fields, err := shell.Fields(arg, nil)
		if err != nil {
			slog.Warn("Could not expand argument", "arg", arg, "err", err)
			expandedArgs = append(expandedArgs, arg)
			continue
		}
		expandedArgs = append(expandedArgs, fields...)
	}
	return expandedExecutable, expandedArgs
}

// Duration decodes from a Go duration string ("500ms") or a number of
// milliseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	return d.set(value)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" || node.Tag == "!!float" {
		ms, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return err
		}
		return d.set(ms)
	}
	return d.set(node.Value)
}

func (d *Duration) set(value any) error {
	switch v := value.(type) {
	case float64:
		d.Duration = time.Duration(v * float64(time.Millisecond))
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %v", value)
	}
}
