// Package runner executes the external tools perld delegates to.
//
// One Run call owns exactly one child process: it feeds the optional
// standard input, buffers standard output and standard error until the
// process exits and reports the exit code.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

const DefaultTimeout = 30 * time.Second

// waitDelay bounds how long Run waits for the output pipes after the
// process was killed. Children that inherited them may outlive it.
const waitDelay = 500 * time.Millisecond

var (
	ErrNotInstalled = errors.New("executable not found")
	ErrTimeout      = errors.New("process timed out")
)

type Command struct {
	// Tool names the command in logs, spans and metrics, e.g. "perltidy".
	Tool       string
	Executable string
	Args       []string
	// Dir is the working directory. Empty inherits the server's.
	Dir   string
	Stdin *string
	// Timeout of zero means DefaultTimeout.
	Timeout time.Duration
}

type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Run starts the command and waits for it to exit. A non-zero exit code is
// not an error: it is reported in Output.ExitCode. Errors are returned when
// the process could not be started, timed out or ctx was cancelled; the
// returned Output then has ExitCode -1 and whatever output was collected.
func Run(ctx context.Context, command Command) (*Output, error) {
	ctx, span := startRunSpan(ctx, command)
	defer span.End()

	timeout := command.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Debug("Spawning process",
		"tool", command.Tool,
		"command", QuoteCommand(command.Executable, command.Args),
		"dir", command.Dir,
	)

	cmd := exec.CommandContext(cmdCtx, command.Executable, command.Args...)
	cmd.Dir = command.Dir
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)
	if command.Stdin != nil {
		cmd.Stdin = strings.NewReader(*command.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	output := &Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		err = fmt.Errorf("%s after %s: %w", command.Executable, timeout, ErrTimeout)
	case ctx.Err() != nil:
		err = ctx.Err()
	case errors.Is(err, exec.ErrNotFound) || isNotExist(err):
		err = fmt.Errorf("%s: %w", command.Executable, ErrNotInstalled)
	case errors.As(err, &exitErr):
		output.ExitCode = exitErr.ExitCode()
		err = nil
	case errors.Is(err, exec.ErrWaitDelay):
		// The process exited but a child it left behind kept the pipes open.
		output.ExitCode = cmd.ProcessState.ExitCode()
		err = nil
	case err != nil:
		err = fmt.Errorf("running %s: %w", command.Executable, err)
	}
	if err != nil {
		output.ExitCode = -1
	}

	recordRun(ctx, span, command.Tool, output, err)

	slog.Debug("Process finished",
		"tool", command.Tool,
		"exitCode", output.ExitCode,
		"duration", output.Duration,
		"stdoutBytes", len(output.Stdout),
		"stderrBytes", len(output.Stderr),
	)

	return output, err
}

// QuoteCommand renders a command line the way a shell user would type it.
func QuoteCommand(executable string, args []string) string {
	words := make([]string, 0, len(args)+1)
	for _, word := range append([]string{executable}, args...) {
		quoted, err := syntax.Quote(word, syntax.LangBash)
		if err != nil {
			quoted = word
		}
		words = append(words, quoted)
	}
	return strings.Join(words, " ")
}

func isNotExist(err error) bool {
	return err != nil && errors.Is(err, fs.ErrNotExist)
}
