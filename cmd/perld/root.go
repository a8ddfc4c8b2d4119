package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matkrin/perld/internal/config"
	"github.com/matkrin/perld/internal/logger"
)

type rootOptions struct {
	configFile string
	logFile    string
	logLevel   string
	perltidy   string
	perlcritic string

	cfg     config.Config
	logfile *os.File
}

func addGlobalFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.StringVar(&opts.configFile, "config", config.DefaultFile(), "path of the YAML config file")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to this file (default for serve: "+logger.DefaultFile()+")")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&opts.perltidy, "perltidy", "", "perltidy executable")
	flags.StringVar(&opts.perlcritic, "perlcritic", "", "perlcritic executable")
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   name,
		Short: "Language server for Perl backed by perltidy and perlcritic",
		Long: `perld speaks the Language Server Protocol on stdin and stdout.
It formats documents with perltidy and reports perlcritic violations
as diagnostics. Without a subcommand it runs the server.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.initLogging(cmd); err != nil {
				return err
			}
			return opts.loadConfig(cmd.Flags())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logfile != nil {
				opts.logfile.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts.cfg)
		},
	}
	addGlobalFlags(rootCmd.PersistentFlags(), opts)

	rootCmd.AddCommand(
		newServeCmd(opts),
		newLintCmd(opts),
		newFormatCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, version)
		},
	}
}

// isServe reports whether cmd runs the language server, which owns stdout.
func isServe(cmd *cobra.Command) bool {
	return !cmd.HasParent() || cmd.Name() == "serve"
}

func (opts *rootOptions) initLogging(cmd *cobra.Command) error {
	logFile := opts.logFile
	if logFile == "" && isServe(cmd) {
		logFile = logger.DefaultFile()
	}

	if logFile == "" {
		level := opts.logLevel
		if !cmd.Flags().Changed("log-level") {
			level = "warn"
		}
		l, err := logger.New(cmd.ErrOrStderr(), level)
		if err != nil {
			return err
		}
		slog.SetDefault(l)
		return nil
	}

	logfile, err := logger.Init(opts.logLevel, logFile)
	if err != nil {
		// Logging must not keep the server from starting.
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
		l, _ := logger.New(io.Discard, opts.logLevel)
		slog.SetDefault(l)
		return nil
	}
	opts.logfile = logfile
	slog.Info("Logging initialized", "level", opts.logLevel, "file", logFile)
	return nil
}

func (opts *rootOptions) loadConfig(flags *pflag.FlagSet) error {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		cfg, err = config.LoadFile(cfg, opts.configFile, !flags.Changed("config"))
		if err != nil {
			return err
		}
	}

	if flags.Changed("perltidy") {
		cfg.Perltidy.Executable = opts.perltidy
	}
	if flags.Changed("perlcritic") {
		cfg.Perlcritic.Executable = opts.perlcritic
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		slog.Warn("Invalid configuration", "err", err)
	}

	opts.cfg = cfg
	slog.Debug("Configuration loaded", "file", opts.configFile, "config", cfg)
	return nil
}
