package perltidy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/matkrin/perld/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePerltidy(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), "perltidy")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// Uppercases its input and always ends the output with a newline, the way
// perltidy does.
const upcase = `out=$(tr a-z A-Z); printf '%s\n' "$out"`

func TestFormat(t *testing.T) {
	executable := fakePerltidy(t, upcase)

	got, err := Format(context.Background(), "print 1;\nprint 2;\n", Options{Executable: executable})
	require.NoError(t, err)
	assert.Equal(t, "PRINT 1;\nPRINT 2;\n", got)
}

func TestFormatStripsTrailingNewline(t *testing.T) {
	executable := fakePerltidy(t, upcase)

	got, err := Format(context.Background(), "print 1;\nprint 2;", Options{Executable: executable})
	require.NoError(t, err)
	assert.Equal(t, "PRINT 1;\nPRINT 2;", got)
}

func TestFormatPassesArgs(t *testing.T) {
	executable := fakePerltidy(t, `cat >/dev/null; echo "$@"`)

	got, err := Format(context.Background(), "x", Options{Executable: executable, Args: []string{"-q", "-pbp"}})
	require.NoError(t, err)
	assert.Equal(t, "-q -pbp", got)
}

func TestFormatStderrOnSuccessIsIgnored(t *testing.T) {
	executable := fakePerltidy(t, `cat; echo "just a warning" >&2`)

	got, err := Format(context.Background(), "my $x;\n", Options{Executable: executable})
	require.NoError(t, err)
	assert.Equal(t, "my $x;\n", got)
}

func TestFormatErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{
			name:    "stderr wins",
			body:    `cat >/dev/null; echo partial; echo "  syntax error near line 2  " >&2; exit 2`,
			code:    2,
			message: "syntax error near line 2",
		},
		{
			name:    "stdout when stderr is empty",
			body:    `cat >/dev/null; echo "bad option"; exit 1`,
			code:    1,
			message: "bad option",
		},
		{
			name:    "empty output",
			body:    `cat >/dev/null; exit 3`,
			code:    3,
			message: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executable := fakePerltidy(t, tt.body)

			_, err := Format(context.Background(), "print 1;", Options{Executable: executable})
			var formatErr *FormatError
			require.True(t, errors.As(err, &formatErr))
			assert.Equal(t, tt.code, formatErr.Code)
			assert.Equal(t, tt.message, formatErr.Message)
		})
	}
}

func TestFormatNotInstalled(t *testing.T) {
	_, err := Format(context.Background(), "print 1;", Options{
		Executable: filepath.Join(t.TempDir(), "perltidy"),
	})

	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, -1, formatErr.Code)
	assert.ErrorIs(t, err, runner.ErrNotInstalled)
	assert.Contains(t, err.Error(), "Could not format, code: -1, error: ")
}
