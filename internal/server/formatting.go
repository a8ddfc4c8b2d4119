package server

import (
	"log/slog"

	"github.com/matkrin/perld/internal/config"
	"github.com/matkrin/perld/internal/lsp"
	"github.com/matkrin/perld/internal/perltidy"
	"github.com/matkrin/perld/internal/utils"
)

func (s *Server) handleFormatting(request *lsp.FormattingRequest) lsp.FormattingResponse {
	uri := request.Params.TextDocument.URI
	slog.Info("Formatting document", "uri", uri)

	document, ok := s.state.Document(uri)
	if !ok {
		slog.Warn("Formatting unknown document", "uri", uri)
		return lsp.NewFormattingResponse(request.ID, nil)
	}
	edits := s.formatRange(uri, document.Text, utils.FullRange(document.Text))
	return lsp.NewFormattingResponse(request.ID, edits)
}

func (s *Server) handleRangeFormatting(request *lsp.RangeFormattingRequest) lsp.FormattingResponse {
	uri := request.Params.TextDocument.URI
	slog.Info("Formatting range", "uri", uri, "range", request.Params.Range)

	document, ok := s.state.Document(uri)
	if !ok {
		slog.Warn("Formatting unknown document", "uri", uri)
		return lsp.NewFormattingResponse(request.ID, nil)
	}
	r := widenRange(document.Text, request.Params.Range)
	edits := s.formatRange(uri, document.Text, r)
	return lsp.NewFormattingResponse(request.ID, edits)
}

// widenRange extends a range over several lines to whole lines, so that
// perltidy never sees a statement cut in half. A range within one line is
// left alone.
func widenRange(text string, r lsp.Range) lsp.Range {
	if r.Start.Line == r.End.Line {
		return r
	}
	return lsp.NewRange(r.Start.Line, 0, r.End.Line, utils.LineLength(text, r.End.Line))
}

func (s *Server) formatRange(uri, text string, r lsp.Range) []lsp.TextEdit {
	cfg := s.state.Config()
	if !cfg.Perltidy.Enabled {
		return nil
	}

	executable, args := config.ExpandCommand(cfg.Perltidy.Executable, cfg.Perltidy.Args)
	formatted, err := perltidy.Format(s.ctx, utils.TextInRange(text, r), perltidy.Options{
		Executable: executable,
		Args:       args,
		Dir:        s.state.WorkingDir(uri),
		Timeout:    cfg.Timeout.Duration,
	})
	if err != nil {
		slog.Error("Could not format", "uri", uri, "err", err)
		s.showMessage(lsp.MessageError, err.Error())
		return nil
	}

	return []lsp.TextEdit{{Range: r, NewText: formatted}}
}
