package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"-q"}, cfg.Perltidy.Args)
	assert.Equal(t, "perlcritic", cfg.Perlcritic.Executable)
	for _, name := range SeverityNames {
		assert.Equal(t, "error", cfg.Perlcritic.Severities[name], name)
	}
}

func TestValidateSeverities(t *testing.T) {
	cfg := Default()
	cfg.Perlcritic.Severities["gentle"] = "loud"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Perlcritic.Severities["mild"] = "hint"
	assert.Error(t, cfg.Validate())
}

func TestApplySettingsOverlay(t *testing.T) {
	base := Default()
	raw := json.RawMessage(`{
		"perltidy": {"args": ["-q", "-pbp"]},
		"perlcritic": {"severities": {"gentle": "hint"}, "debounce": "1s"},
		"timeout": 5000
	}`)

	cfg, err := ApplySettings(base, raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"-q", "-pbp"}, cfg.Perltidy.Args)
	assert.Equal(t, "perltidy", cfg.Perltidy.Executable)
	assert.True(t, cfg.Perltidy.Enabled)
	assert.Equal(t, "hint", cfg.Perlcritic.Severities["gentle"])
	assert.Equal(t, "error", cfg.Perlcritic.Severities["brutal"])
	assert.Equal(t, time.Second, cfg.Perlcritic.Debounce.Duration)
	assert.Equal(t, 5*time.Second, cfg.Timeout.Duration)

	// base must not be modified
	assert.Equal(t, []string{"-q"}, base.Perltidy.Args)
	assert.Equal(t, "error", base.Perlcritic.Severities["gentle"])
}

func TestApplySettingsWrapped(t *testing.T) {
	cfg, err := ApplySettings(Default(), json.RawMessage(`{"perld": {"perlcritic": {"enabled": false}}}`))
	require.NoError(t, err)
	assert.False(t, cfg.Perlcritic.Enabled)
	assert.True(t, cfg.Perltidy.Enabled)
}

func TestApplySettingsLegacyKeys(t *testing.T) {
	raw := json.RawMessage(`{
		"perl": {"perltidy": "/opt/perl/bin/perltidy", "perltidyArgs": ["-pro=.tidyrc"]},
		"simple-perl": {"perlcritic": "/opt/perl/bin/perlcritic", "stern": "warning", "brutal": "info"}
	}`)
	cfg, err := ApplySettings(Default(), raw)
	require.NoError(t, err)

	assert.Equal(t, "/opt/perl/bin/perltidy", cfg.Perltidy.Executable)
	assert.Equal(t, []string{"-pro=.tidyrc"}, cfg.Perltidy.Args)
	assert.Equal(t, "/opt/perl/bin/perlcritic", cfg.Perlcritic.Executable)
	assert.Equal(t, "warning", cfg.Perlcritic.Severities["stern"])
	assert.Equal(t, "info", cfg.Perlcritic.Severities["brutal"])
	assert.Equal(t, "error", cfg.Perlcritic.Severities["harsh"])
}

func TestApplySettingsEmptyAndInvalid(t *testing.T) {
	base := Default()

	cfg, err := ApplySettings(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, cfg)

	cfg, err = ApplySettings(base, json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Equal(t, base, cfg)

	_, err = ApplySettings(base, json.RawMessage(`{"timeout": "soon"}`))
	assert.Error(t, err)

	_, err = ApplySettings(base, json.RawMessage(`[1, 2]`))
	assert.Error(t, err)
}

func TestApplySettingsNormalize(t *testing.T) {
	cfg, err := ApplySettings(Default(), json.RawMessage(`{"perltidy": {"executable": ""}, "workspace": {"concurrency": 0}}`))
	require.NoError(t, err)
	assert.Equal(t, "perltidy", cfg.Perltidy.Executable)
	assert.Equal(t, 1, cfg.Workspace.Concurrency)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
perltidy:
  args: ["-q", "-l=100"]
perlcritic:
  enabled: false
  debounce: 250ms
  severities:
    gentle: hint
workspace:
  lintOnStartup: true
timeout: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(Default(), path, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"-q", "-l=100"}, cfg.Perltidy.Args)
	assert.Equal(t, "perltidy", cfg.Perltidy.Executable)
	assert.False(t, cfg.Perlcritic.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Perlcritic.Debounce.Duration)
	assert.Equal(t, "hint", cfg.Perlcritic.Severities["gentle"])
	assert.True(t, cfg.Workspace.LintOnStartup)
	assert.Equal(t, 10*time.Second, cfg.Timeout.Duration)
}

func TestLoadFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := LoadFile(Default(), path, true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = LoadFile(Default(), path, false)
	assert.Error(t, err)
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("perltidy: [unclosed"), 0o644))

	_, err := LoadFile(Default(), path, false)
	assert.Error(t, err)
}

func TestExpandCommand(t *testing.T) {
	t.Setenv("PERLD_TEST_HOME", "/home/tester")

	executable, args := ExpandCommand("$PERLD_TEST_HOME/perl5/bin/perltidy", []string{
		"-q",
		"--profile=$PERLD_TEST_HOME/.perltidyrc",
		"-b -bext=/",
		`"/path with/spaces"`,
		"",
	})
	assert.Equal(t, "/home/tester/perl5/bin/perltidy", executable)
	assert.Equal(t, []string{
		"-q",
		"--profile=/home/tester/.perltidyrc",
		"-b",
		"-bext=/",
		"/path with/spaces",
	}, args)
}

func TestExpandCommandInvalidSyntax(t *testing.T) {
	executable, args := ExpandCommand("perlcritic", []string{`"unterminated`})
	assert.Equal(t, "perlcritic", executable)
	assert.Equal(t, []string{`"unterminated`}, args)
}
