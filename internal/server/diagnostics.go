package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/matkrin/perld/internal/config"
	"github.com/matkrin/perld/internal/lsp"
	"github.com/matkrin/perld/internal/perlcritic"
	"github.com/matkrin/perld/internal/runner"
	"github.com/matkrin/perld/internal/utils"
)

type lintRequest struct {
	uri string
	// path is the file perlcritic reads. If empty, text is linted
	// through a temporary file.
	path       string
	text       string
	generation uint64
}

// lintDocument lints an open perl document in the background. With
// fromBuffer the unsaved text is linted instead of the file on disk.
func (s *Server) lintDocument(uri string, fromBuffer bool) {
	cfg := s.state.Config()
	if !cfg.Perlcritic.Enabled || s.state.ShutdownRequested() {
		return
	}
	document, ok := s.state.Document(uri)
	if !ok || !document.IsPerl() {
		return
	}

	request := lintRequest{
		uri:        uri,
		text:       document.Text,
		generation: s.nextGeneration(uri),
	}
	if !fromBuffer {
		if path, err := utils.UriToPath(uri); err == nil {
			request.path = path
		}
	}

	s.goJob(func() {
		s.lint(s.ctx, cfg, request)
	})
}

func (s *Server) debounceLint(uri string, delay time.Duration) {
	generation := s.nextGeneration(uri)

	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if timer, ok := s.timers[uri]; ok {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.timerMu.Lock()
		if s.timers[uri] == timer {
			delete(s.timers, uri)
		}
		s.timerMu.Unlock()

		if !s.isCurrent(uri, generation) {
			return
		}
		s.lintDocument(uri, true)
	})
	s.timers[uri] = timer
}

func (s *Server) stopTimer(uri string) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if timer, ok := s.timers[uri]; ok {
		timer.Stop()
		delete(s.timers, uri)
	}
}

func (s *Server) stopTimers() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	for uri, timer := range s.timers {
		timer.Stop()
		delete(s.timers, uri)
	}
}

func (s *Server) relintOpenDocuments() {
	for _, document := range s.state.Documents() {
		if document.IsPerl() {
			s.lintDocument(document.URI, false)
		}
	}
}

func (s *Server) lint(ctx context.Context, cfg config.Config, request lintRequest) {
	executable, args := config.ExpandCommand(cfg.Perlcritic.Executable, cfg.Perlcritic.Args)
	options := perlcritic.Options{
		Executable: executable,
		Args:       args,
		Dir:        s.state.WorkingDir(request.uri),
		Timeout:    cfg.Timeout.Duration,
	}

	var result *perlcritic.Result
	var err error
	if request.path != "" {
		result, err = perlcritic.Run(ctx, request.path, options)
	} else {
		result, err = perlcritic.RunContent(ctx, request.text, options)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.reportLintError(executable, err)
		return
	}

	slog.Debug("Linted document", "uri", request.uri, "violations", len(result.Violations))
	diagnostics := result.ToDiagnostics(request.text, cfg.Perlcritic.Severities)
	s.publishDiagnostics(request.uri, request.generation, diagnostics)
}

func (s *Server) reportLintError(executable string, err error) {
	slog.Error("Could not lint", "executable", executable, "err", err)
	if errors.Is(err, runner.ErrNotInstalled) {
		s.showMessageOnce("missing:"+executable, lsp.MessageError,
			fmt.Sprintf("perld: perlcritic executable %q not found. Install Perl::Critic or set perlcritic.executable.", executable))
		return
	}
	s.showMessageOnce("lint:"+err.Error(), lsp.MessageWarning, "perld: "+err.Error())
}

func (s *Server) nextGeneration(uri string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[uri]++
	return s.generations[uri]
}

func (s *Server) isCurrent(uri string, generation uint64) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[uri] == generation
}

// publishDiagnostics sends diagnostics unless a newer lint was started or
// the document was closed since generation was taken.
func (s *Server) publishDiagnostics(uri string, generation uint64, diagnostics []lsp.Diagnostic) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[uri] != generation || s.state.ShutdownRequested() {
		slog.Debug("Dropping outdated diagnostics", "uri", uri)
		return
	}
	s.published[uri] = true
	s.writeResponse(lsp.NewDiagnosticNotification(uri, diagnostics))
}

func (s *Server) clearDocumentDiagnostics(uri string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[uri]++
	delete(s.published, uri)
	s.writeResponse(lsp.NewDiagnosticNotification(uri, nil))
}

// clearDiagnostics publishes empty diagnostics for every URI the server has
// published to and every open perl document, and discards the results of
// lints still running.
func (s *Server) clearDiagnostics() {
	uris := map[string]bool{}
	for _, document := range s.state.Documents() {
		if document.IsPerl() {
			uris[document.URI] = true
		}
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()
	maps.Copy(uris, s.published)
	for _, uri := range slices.Sorted(maps.Keys(uris)) {
		s.generations[uri]++
		s.writeResponse(lsp.NewDiagnosticNotification(uri, nil))
	}
	clear(s.published)
}
