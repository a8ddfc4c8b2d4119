package perlcritic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matkrin/perld/internal/lsp"
	"github.com/matkrin/perld/internal/runner"
	"github.com/matkrin/perld/internal/utils"
)

// https://metacpan.org/pod/Perl::Critic::Violation#OVERLOADS
// severity, line, column, message, explanation, policy
const VerboseFormat = "%s~|~%l~|~%c~|~%m~|~%e~|~%p~||~%n"

const (
	fieldSeparator = "~|~"
	endMarker      = "~||~"
	fieldCount     = 6
	Source         = "perlcritic"
)

var ErrFailed = errors.New("perlcritic failed")

type Options struct {
	Executable string
	Args       []string
	Dir        string
	Timeout    time.Duration
}

type Result struct {
	Violations []Violation
}

type Violation struct {
	Severity    int
	Line        uint
	Column      uint
	Message     string
	Explanation string
	Policy      string
}

// ParseViolations extracts one violation per line of perlcritic output
// produced with VerboseFormat. Lines that do not have exactly six fields,
// like "source OK" summaries, are skipped.
func ParseViolations(output string) []Violation {
	violations := []Violation{}
	for line := range strings.SplitSeq(output, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if len(strings.Split(line, fieldSeparator)) != fieldCount {
			continue
		}
		violation, err := parseViolation(line)
		if err != nil {
			slog.Warn("Skipping perlcritic violation", "line", line, "err", err)
			continue
		}
		violations = append(violations, violation)
	}
	return violations
}

func parseViolation(line string) (Violation, error) {
	tokens := strings.Split(strings.Replace(line, endMarker, "", 1), fieldSeparator)

	lineNumber, err := strconv.ParseUint(strings.TrimSpace(tokens[1]), 10, 0)
	if err != nil {
		return Violation{}, fmt.Errorf("invalid line %q: %w", tokens[1], err)
	}
	column, err := strconv.ParseUint(strings.TrimSpace(tokens[2]), 10, 0)
	if err != nil {
		return Violation{}, fmt.Errorf("invalid column %q: %w", tokens[2], err)
	}
	// Unparsable severities rank as brutal.
	severity, err := strconv.Atoi(strings.TrimSpace(tokens[0]))
	if err != nil {
		severity = 1
	}

	return Violation{
		Severity:    severity,
		Line:        uint(lineNumber),
		Column:      uint(column),
		Message:     tokens[3],
		Explanation: tokens[4],
		Policy:      strings.TrimSpace(tokens[5]),
	}, nil
}

func SeverityName(severity int) string {
	switch severity {
	case 5:
		return "gentle"
	case 4:
		return "stern"
	case 3:
		return "harsh"
	case 2:
		return "cruel"
	default:
		return "brutal"
	}
}

func (v *Violation) SeverityName() string {
	return SeverityName(v.Severity)
}

// ToDiagnostics maps every violation to a diagnostic spanning from its
// column to the end of its line in documentText.
func (r *Result) ToDiagnostics(documentText string, severities map[string]string) []lsp.Diagnostic {
	diagnostics := []lsp.Diagnostic{}
	for _, violation := range r.Violations {
		lineLength := utils.LineLength(documentText, zeroBased(violation.Line))
		diagnostics = append(diagnostics, violation.ToDiagnostic(lineLength, severities))
	}
	return diagnostics
}

func (v *Violation) ToDiagnostic(lineLength uint, severities map[string]string) lsp.Diagnostic {
	line := zeroBased(v.Line)
	column := zeroBased(v.Column)
	policy := v.Policy

	return lsp.Diagnostic{
		Range:    lsp.NewRange(line, column, line, max(lineLength, column)),
		Severity: levelToSeverity(severities[v.SeverityName()]),
		Code:     &policy,
		Source:   Source,
		Message:  fmt.Sprintf("Lint: %s: %s", strings.ToUpper(v.SeverityName()), v.Message),
	}
}

func levelToSeverity(level string) lsp.DiagnosticSeverity {
	switch level {
	case "hint":
		return lsp.DiagnosticHint
	case "info":
		return lsp.DiagnosticInformation
	case "warning":
		return lsp.DiagnosticWarning
	default:
		return lsp.DiagnosticError
	}
}

func zeroBased(n uint) uint {
	if n == 0 {
		return 0
	}
	return n - 1
}

// Run lints the file at filePath. perlcritic exits non-zero whenever it finds
// violations, so the exit code alone is not a failure: Run only fails when
// the process could not run or printed nothing but an error.
func Run(ctx context.Context, filePath string, options Options) (*Result, error) {
	args := append(append([]string{}, options.Args...), "--verbose", VerboseFormat, filePath)
	out, err := runner.Run(ctx, runner.Command{
		Tool:       "perlcritic",
		Executable: options.Executable,
		Args:       args,
		Dir:        options.Dir,
		Timeout:    options.Timeout,
	})
	if err != nil {
		return nil, err
	}

	if out.Stderr != "" {
		slog.Info("perlcritic stderr", "file", filePath, "stderr", out.Stderr)
	}
	if out.ExitCode != 0 && strings.TrimSpace(out.Stdout) == "" && strings.TrimSpace(out.Stderr) != "" {
		return nil, fmt.Errorf("%w with code %d: %s", ErrFailed, out.ExitCode, strings.TrimSpace(out.Stderr))
	}

	return &Result{Violations: ParseViolations(out.Stdout)}, nil
}

// RunContent lints unsaved content through a temporary file.
func RunContent(ctx context.Context, content string, options Options) (*Result, error) {
	tmpFile, err := os.CreateTemp("", "perld-*.pl")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.WriteString(content); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	return Run(ctx, tmpPath, options)
}
