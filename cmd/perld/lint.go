package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matkrin/perld/internal/config"
	"github.com/matkrin/perld/internal/lsp"
	"github.com/matkrin/perld/internal/perlcritic"
	"github.com/matkrin/perld/internal/server"
)

// errViolations makes perld exit with code 1.
var errViolations = errors.New("perlcritic found violations")

func newLintCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lint FILE|DIR...",
		Short: "Run perlcritic on files and print the violations",
		Long: `Run perlcritic on the given files. Directories are searched for
perl files, skipping workspace.excludeDirs. Exits with 1 when any
violation is found.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLint(cmd.Context(), cmd.OutOrStdout(), opts.cfg, args)
		},
	}
}

type lintResult struct {
	path       string
	violations []perlcritic.Violation
}

func runLint(ctx context.Context, w io.Writer, cfg config.Config, args []string) error {
	files, err := collectFiles(args, cfg.Workspace.ExcludeDirs)
	if err != nil {
		return err
	}

	executable, criticArgs := config.ExpandCommand(cfg.Perlcritic.Executable, cfg.Perlcritic.Args)
	options := perlcritic.Options{
		Executable: executable,
		Args:       criticArgs,
		Timeout:    cfg.Timeout.Duration,
	}

	results := make([]lintResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workspace.Concurrency)
	for i, path := range files {
		g.Go(func() error {
			result, err := perlcritic.Run(ctx, path, options)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = lintResult{path: path, violations: result.Violations}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printer := newViolationPrinter(w, cfg.Perlcritic.Severities)
	total := 0
	for _, result := range results {
		for _, violation := range result.violations {
			printer.print(result.path, violation)
		}
		total += len(result.violations)
	}
	if total > 0 {
		return errViolations
	}
	return nil
}

func collectFiles(args []string, excludeDirs []string) ([]string, error) {
	files := []string{}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			files = append(files, server.WorkspacePerlFiles([]string{arg}, excludeDirs)...)
			continue
		}
		files = append(files, arg)
	}
	return files, nil
}

type violationPrinter struct {
	w          io.Writer
	severities map[string]string
	location   lipgloss.Style
	policy     lipgloss.Style
	levels     map[lsp.DiagnosticSeverity]lipgloss.Style
}

func newViolationPrinter(w io.Writer, severities map[string]string) *violationPrinter {
	renderer := lipgloss.NewRenderer(w)
	return &violationPrinter{
		w:          w,
		severities: severities,
		location:   renderer.NewStyle().Bold(true),
		policy:     renderer.NewStyle().Faint(true),
		levels: map[lsp.DiagnosticSeverity]lipgloss.Style{
			lsp.DiagnosticError:       renderer.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
			lsp.DiagnosticWarning:     renderer.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
			lsp.DiagnosticInformation: renderer.NewStyle().Foreground(lipgloss.Color("12")),
			lsp.DiagnosticHint:        renderer.NewStyle().Foreground(lipgloss.Color("14")),
		},
	}
}

// print writes "file:line:col: SEVERITY: message (Policy)".
func (p *violationPrinter) print(path string, v perlcritic.Violation) {
	level := v.ToDiagnostic(0, p.severities).Severity
	fmt.Fprintf(p.w, "%s %s %s %s\n",
		p.location.Render(fmt.Sprintf("%s:%d:%d:", path, v.Line, v.Column)),
		p.levels[level].Render(strings.ToUpper(v.SeverityName())+":"),
		v.Message,
		p.policy.Render("("+v.Policy+")"),
	)
}
