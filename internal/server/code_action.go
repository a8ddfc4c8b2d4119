package server

import (
	"log/slog"
	"slices"

	"github.com/matkrin/perld/internal/lsp"
	"github.com/matkrin/perld/internal/perlcritic"
)

func (s *Server) handleCodeAction(request *lsp.CodeActionRequest) lsp.CodeActionResponse {
	uri := request.Params.TextDocument.URI
	slog.Debug("Code action", "uri", uri, "range", request.Params.Range)

	actions := []lsp.CodeAction{}
	document, ok := s.state.Document(uri)
	if !ok || !wantsQuickFix(request.Params.Context.Only) {
		return lsp.NewCodeActionResponse(request.ID, actions)
	}

	type lineAction struct {
		line  uint
		title string
	}
	seen := map[lineAction]bool{}
	for _, diagnostic := range request.Params.Context.Diagnostics {
		action := perlcritic.NoCriticCodeAction(uri, document.Text, diagnostic)
		if action == nil {
			continue
		}
		// Several violations of one policy on a line need only one action.
		key := lineAction{diagnostic.Range.Start.Line, action.Title}
		if seen[key] {
			continue
		}
		seen[key] = true
		actions = append(actions, *action)
	}

	return lsp.NewCodeActionResponse(request.ID, actions)
}

func wantsQuickFix(only []lsp.CodeActionKind) bool {
	if len(only) == 0 {
		return true
	}
	return slices.ContainsFunc(only, func(kind lsp.CodeActionKind) bool {
		return kind == "" || kind == lsp.CodeActionQuickFix
	})
}
