package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/matkrin/perld/internal/config"
	"github.com/matkrin/perld/internal/perltidy"
)

type formatOptions struct {
	diff  bool
	write bool
}

func newFormatCmd(opts *rootOptions) *cobra.Command {
	formatOpts := &formatOptions{}
	cmd := &cobra.Command{
		Use:   "format [--diff|-w] FILE",
		Short: "Format a file with perltidy",
		Long: `Format a file with perltidy and print the result. With --diff a
unified diff against the file is printed instead, with -w the file is
rewritten in place. FILE "-" reads standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts.cfg, formatOpts, args[0])
		},
	}
	cmd.Flags().BoolVar(&formatOpts.diff, "diff", false, "print a unified diff")
	cmd.Flags().BoolVarP(&formatOpts.write, "write", "w", false, "write the result to the file")
	cmd.MarkFlagsMutuallyExclusive("diff", "write")
	return cmd
}

func runFormat(ctx context.Context, stdin io.Reader, w io.Writer, cfg config.Config, opts *formatOptions, path string) error {
	var original []byte
	var err error
	if path == "-" {
		if opts.write {
			return fmt.Errorf("cannot write standard input in place")
		}
		original, err = io.ReadAll(stdin)
	} else {
		original, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	executable, args := config.ExpandCommand(cfg.Perltidy.Executable, cfg.Perltidy.Args)
	formatted, err := perltidy.Format(ctx, string(original), perltidy.Options{
		Executable: executable,
		Args:       args,
		Timeout:    cfg.Timeout.Duration,
	})
	if err != nil {
		return err
	}

	switch {
	case opts.diff:
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(original)),
			B:        difflib.SplitLines(formatted),
			FromFile: path,
			ToFile:   path + " (formatted)",
			Context:  3,
		})
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, diff)
		return err

	case opts.write:
		if formatted == string(original) {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		return os.WriteFile(path, []byte(formatted), info.Mode().Perm())

	default:
		_, err = io.WriteString(w, formatted)
		return err
	}
}
