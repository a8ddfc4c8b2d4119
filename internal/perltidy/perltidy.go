// Package perltidy formats Perl source by piping it through perltidy.
package perltidy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/matkrin/perld/internal/runner"
)

type Options struct {
	Executable string
	Args       []string
	Dir        string
	Timeout    time.Duration
}

// FormatError is returned when perltidy could not be run or exited with a
// non-zero code. Code is -1 if the process never ran.
type FormatError struct {
	Code    int
	Message string
	Err     error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("Could not format, code: %d, error: %s", e.Code, e.Message)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Format writes text to perltidy's standard input and returns what it
// prints. When text has no trailing newline the one perltidy appends is
// removed, so that formatting a range does not join it with the next line.
func Format(ctx context.Context, text string, options Options) (string, error) {
	out, err := runner.Run(ctx, runner.Command{
		Tool:       "perltidy",
		Executable: options.Executable,
		Args:       options.Args,
		Dir:        options.Dir,
		Stdin:      &text,
		Timeout:    options.Timeout,
	})

	var message string
	switch {
	case err != nil:
		message = err.Error()
	case out.Stderr != "":
		message = out.Stderr
	case out.ExitCode != 0:
		message = out.Stdout
	}

	if err != nil || out.ExitCode != 0 {
		return "", &FormatError{
			Code:    out.ExitCode,
			Message: strings.TrimSpace(message),
			Err:     err,
		}
	}

	if message != "" {
		slog.Debug("perltidy wrote to stderr", "stderr", message)
	}

	formatted := out.Stdout
	if !strings.HasSuffix(text, "\n") {
		formatted = strings.TrimSuffix(formatted, "\n")
	}
	return formatted, nil
}
