package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/matkrin/perld/internal/config"
	"github.com/matkrin/perld/internal/lsp"
	"github.com/matkrin/perld/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upcase = `out=$(tr a-z A-Z); printf '%s\n' "$out"`

const twoViolations = `printf '5~|~3~|~1~|~Module does not end with "1;"~|~Must end with a true value~|~Modules::RequireEndWithOne~||~\n'
printf '3~|~1~|~7~|~Found "\\N{SPACE}" at the end of the line~|~See page 9~|~CodeLayout::ProhibitTrailingWhitespace~||~\n'
exit 2`

func fakeTool(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	// Keeps the tests away from the user's config file.
	cmd.SetArgs(append([]string{"--config", "", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("perld %s\n", version), out)
}

func TestLint(t *testing.T) {
	perlcritic := fakeTool(t, "perlcritic", twoViolations)
	path := filepath.Join(t.TempDir(), "Module.pm")
	require.NoError(t, os.WriteFile(path, []byte("package Module;\n"), 0o644))

	out, err := execute(t, "", "--perlcritic", perlcritic, "lint", path)
	assert.ErrorIs(t, err, errViolations)
	assert.Equal(t,
		path+":3:1: GENTLE: Module does not end with \"1;\" (Modules::RequireEndWithOne)\n"+
			path+":1:7: HARSH: Found \"\\N{SPACE}\" at the end of the line (CodeLayout::ProhibitTrailingWhitespace)\n",
		out)
}

func TestLintClean(t *testing.T) {
	perlcritic := fakeTool(t, "perlcritic", `echo "$3 source OK"`)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pl"), []byte("1;\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x\n"), 0o644))

	out, err := execute(t, "", "--perlcritic", perlcritic, "lint", dir)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLintMissingFile(t *testing.T) {
	_, err := execute(t, "", "lint", filepath.Join(t.TempDir(), "missing.pl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFormat(t *testing.T) {
	perltidy := fakeTool(t, "perltidy", upcase)
	path := filepath.Join(t.TempDir(), "script.pl")
	require.NoError(t, os.WriteFile(path, []byte("print 1;\nexit;\n"), 0o644))

	out, err := execute(t, "", "--perltidy", perltidy, "format", path)
	require.NoError(t, err)
	assert.Equal(t, "PRINT 1;\nEXIT;\n", out)

	out, err = execute(t, "print 2;", "--perltidy", perltidy, "format", "-")
	require.NoError(t, err)
	assert.Equal(t, "PRINT 2;", out)
}

func TestFormatDiff(t *testing.T) {
	perltidy := fakeTool(t, "perltidy", upcase)
	path := filepath.Join(t.TempDir(), "script.pl")
	require.NoError(t, os.WriteFile(path, []byte("PRINT 1;\nexit;\n"), 0o644))

	out, err := execute(t, "", "--perltidy", perltidy, "format", "--diff", path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"--- " + path,
		"+++ " + path + " (formatted)",
		"@@ -1,2 +1,2 @@",
		" PRINT 1;",
		"-exit;",
		"+EXIT;",
		"",
	}, "\n"), out)
}

func TestFormatWrite(t *testing.T) {
	perltidy := fakeTool(t, "perltidy", upcase)
	path := filepath.Join(t.TempDir(), "script.pl")
	require.NoError(t, os.WriteFile(path, []byte("print 1;\n"), 0o600))

	out, err := execute(t, "", "--perltidy", perltidy, "format", "-w", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PRINT 1;\n", string(content))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFormatFlagsExclusive(t *testing.T) {
	_, err := execute(t, "", "format", "--diff", "-w", "script.pl")
	assert.Error(t, err)
}

func TestFormatError(t *testing.T) {
	perltidy := fakeTool(t, "perltidy", `echo "unbalanced braces" >&2; exit 1`)
	_, err := execute(t, "sub {", "--perltidy", perltidy, "format", "-")
	assert.EqualError(t, err, "Could not format, code: 1, error: unbalanced braces")
}

func TestConfigFile(t *testing.T) {
	perltidy := fakeTool(t, "perltidy", `printf '%s\n' "$@"`)
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(fmt.Sprintf("perltidy:\n  executable: %s\n  args: [-q, -l=100]\n", perltidy)), 0o644))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("1;\n"))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", configFile, "--log-level", "error", "format", "-"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "-q\n-l=100\n", out.String())

	cmd = newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "version"})
	cmd.SetOut(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestServe(t *testing.T) {
	var in bytes.Buffer
	in.WriteString(lsp.EncodeMessage(map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": map[string]any{"clientInfo": map[string]any{"name": "test", "version": "1"}},
	}))
	in.WriteString(lsp.EncodeMessage(map[string]any{"jsonrpc": "2.0", "method": "initialized", "params": map[string]any{}}))
	in.WriteString(lsp.EncodeMessage(map[string]any{"jsonrpc": "2.0", "id": 2, "method": "shutdown"}))

	var out bytes.Buffer
	exited := false
	err := serve(&in, &out, config.Default(), server.WithExit(func(int) { exited = true }))
	require.NoError(t, err)
	assert.False(t, exited)

	output := out.String()
	assert.Contains(t, output, `"id":1`)
	assert.Contains(t, output, `"serverInfo":{"name":"perld","version":"`+version+`"}`)
	assert.Contains(t, output, `{"jsonrpc":"2.0","id":2,"result":null}`)
}
