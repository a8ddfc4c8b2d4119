package main

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matkrin/perld/internal/config"
	"github.com/matkrin/perld/internal/lsp"
	"github.com/matkrin/perld/internal/server"
)

const maxMessageSize = 64 * 1024 * 1024

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the language server on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts.cfg)
		},
	}
}

func runServe(cmd *cobra.Command, cfg config.Config) error {
	return serve(cmd.InOrStdin(), cmd.OutOrStdout(), cfg)
}

// serve handles messages from r until it is exhausted. The exit
// notification ends the process before that.
func serve(r io.Reader, w io.Writer, cfg config.Config, options ...server.Option) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	scanner.Split(lsp.Split)

	state := server.NewState(cfg)
	s := server.NewServer(name, version, state, w, options...)
	defer s.Stop()

	slog.Info("Server started", "version", version)
	for scanner.Scan() {
		method, contents, err := lsp.DecodeMessage(scanner.Bytes())
		if err != nil {
			slog.Error("Could not decode message", "err", err)
			continue
		}
		// The scanner reuses its buffer on the next Scan.
		s.HandleMessage(method, bytes.Clone(contents))
	}
	if err := scanner.Err(); err != nil {
		slog.Error("Could not read message", "err", err)
		return err
	}
	slog.Info("Input closed")
	return nil
}
