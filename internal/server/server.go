package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/matkrin/perld/internal/lsp"
)

type queuedMessage struct {
	method   string
	contents []byte
}

type Option func(*Server)

// WithExit replaces os.Exit as the handler of the exit notification.
func WithExit(exit func(code int)) Option {
	return func(s *Server) {
		s.exit = exit
	}
}

type Server struct {
	name         string
	version      string
	state        *State
	writer       io.Writer
	messageQueue chan queuedMessage
	wg           sync.WaitGroup
	mu           sync.Mutex
	exit         func(code int)

	ctx    context.Context
	cancel context.CancelFunc

	// jobs tracks lint goroutines. No job is started once stopped is set.
	jobs    sync.WaitGroup
	lifeMu  sync.Mutex
	stopped bool

	// generations is bumped whenever a lint result for a URI becomes
	// outdated. published holds the URIs with diagnostics on the client.
	genMu       sync.Mutex
	generations map[string]uint64
	published   map[string]bool

	timerMu sync.Mutex
	timers  map[string]*time.Timer

	notifiedMu sync.Mutex
	notified   map[string]bool

	watcher *rcWatcher
}

func NewServer(name, version string, state *State, writer io.Writer, options ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		name:         name,
		version:      version,
		state:        state,
		writer:       writer,
		messageQueue: make(chan queuedMessage),
		exit:         os.Exit,
		ctx:          ctx,
		cancel:       cancel,
		generations:  make(map[string]uint64),
		published:    make(map[string]bool),
		timers:       make(map[string]*time.Timer),
		notified:     make(map[string]bool),
	}
	for _, option := range options {
		option(s)
	}

	s.wg.Add(1)
	go s.run()

	return s
}

func (s *Server) run() {
	defer s.wg.Done()
	for msg := range s.messageQueue {
		s.dispatchMessage(msg.method, msg.contents)
	}
}

func (s *Server) HandleMessage(method string, contents []byte) {
	s.messageQueue <- queuedMessage{method: method, contents: contents}
}

// Stop handles the queued messages, cancels running lints and releases
// the file watcher. HandleMessage must not be called afterwards.
func (s *Server) Stop() {
	close(s.messageQueue)
	s.wg.Wait()

	s.lifeMu.Lock()
	s.stopped = true
	s.lifeMu.Unlock()

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			slog.Warn("Could not close file watcher", "err", err)
		}
	}
	s.stopTimers()
	s.cancel()
	s.jobs.Wait()
}

// goJob runs f in the background unless the server is stopping.
func (s *Server) goJob(f func()) bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.stopped {
		return false
	}
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		f()
	}()
	return true
}

func (s *Server) dispatchMessage(method string, contents []byte) {
	slog.Info("Received message", "method", method)

	if method != "exit" && s.state.ShutdownRequested() {
		if id := requestID(contents); id != nil {
			s.writeResponse(lsp.NewErrorResponse(id, lsp.InvalidRequest, "Server is shutting down"))
		}
		return
	}

	switch method {
	case "initialize":
		var request lsp.InitializeRequest
		if !s.parse(method, contents, &request) {
			return
		}
		s.handleInitialize(&request)

	case "initialized":
		slog.Debug("Client initialized")

	case "shutdown":
		var request lsp.ShutdownRequest
		if !s.parse(method, contents, &request) {
			return
		}

		slog.Info("Received shutdown request")
		s.state.RequestShutdown()
		s.stopTimers()
		s.clearDiagnostics()
		s.writeResponse(lsp.NewShutdownResponse(request.ID))

	case "exit":
		slog.Info("Exiting")
		if s.state.ShutdownRequested() {
			s.exit(0)
		} else {
			slog.Warn("Exiting without preceding shutdown request")
			s.exit(1)
		}

	case "textDocument/didOpen":
		var request lsp.DidOpenTextDocumentNotification
		if !s.parse(method, contents, &request) {
			return
		}

		item := request.Params.TextDocument
		slog.Info("Opened document", "uri", item.URI, "languageId", item.LanguageID)
		s.state.SetDocument(Document{
			URI:        item.URI,
			LanguageID: item.LanguageID,
			Version:    item.Version,
			Text:       item.Text,
		})
		s.lintDocument(item.URI, false)

	case "textDocument/didChange":
		var request lsp.TextDocumentDidChangeNotification
		if !s.parse(method, contents, &request) {
			return
		}

		uri := request.Params.TextDocument.URI
		slog.Debug("Changed document", "uri", uri)
		changes := request.Params.ContentChanges
		if len(changes) == 0 {
			return
		}
		// Full sync: the last change holds the whole document.
		if _, ok := s.state.UpdateText(uri, request.Params.TextDocument.Version, changes[len(changes)-1].Text); !ok {
			slog.Warn("Change for unknown document", "uri", uri)
			return
		}

		cfg := s.state.Config()
		if cfg.Perlcritic.Enabled && cfg.Perlcritic.LintOnChange {
			s.debounceLint(uri, cfg.Perlcritic.Debounce.Duration)
		}

	case "textDocument/didSave":
		var request lsp.DidSaveTextDocumentNotification
		if !s.parse(method, contents, &request) {
			return
		}

		uri := request.Params.TextDocument.URI
		slog.Info("Saved document", "uri", uri)
		if request.Params.Text != nil {
			if document, ok := s.state.Document(uri); ok {
				s.state.UpdateText(uri, document.Version, *request.Params.Text)
			}
		}
		s.stopTimer(uri)
		s.lintDocument(uri, false)

	case "textDocument/didClose":
		var request lsp.DidCloseTextDocumentNotification
		if !s.parse(method, contents, &request) {
			return
		}

		uri := request.Params.TextDocument.URI
		slog.Info("Closed document", "uri", uri)
		s.stopTimer(uri)
		s.state.RemoveDocument(uri)
		s.clearDocumentDiagnostics(uri)

	case "textDocument/formatting":
		var request lsp.FormattingRequest
		if !s.parse(method, contents, &request) {
			return
		}
		s.writeResponse(s.handleFormatting(&request))

	case "textDocument/rangeFormatting":
		var request lsp.RangeFormattingRequest
		if !s.parse(method, contents, &request) {
			return
		}
		s.writeResponse(s.handleRangeFormatting(&request))

	case "textDocument/codeAction":
		var request lsp.CodeActionRequest
		if !s.parse(method, contents, &request) {
			return
		}
		s.writeResponse(s.handleCodeAction(&request))

	case "workspace/didChangeConfiguration":
		var request lsp.DidChangeConfigurationNotification
		if !s.parse(method, contents, &request) {
			return
		}
		s.handleDidChangeConfiguration(&request)

	default:
		if id := requestID(contents); id != nil {
			slog.Warn("Unsupported request", "method", method)
			s.writeResponse(lsp.NewErrorResponse(id, lsp.MethodNotFound, "Method not found: "+method))
			return
		}
		slog.Debug("Ignoring notification", "method", method)
	}
}

func (s *Server) handleInitialize(request *lsp.InitializeRequest) {
	if info := request.Params.ClientInfo; info != nil {
		slog.Info("Connected to client", "name", info.Name, "version", info.Version)
	}

	folders := request.Params.WorkspaceFolders
	if len(folders) == 0 && request.Params.RootURI != nil && *request.Params.RootURI != "" {
		folders = []lsp.WorkspaceFolder{{URI: *request.Params.RootURI, Name: "root"}}
	}
	s.state.SetWorkspaceFolders(folders)
	slog.Info("Workspace folders set", "workspaceFolders", folders)

	if _, err := s.state.ApplySettings(request.Params.InitializationOptions); err != nil {
		slog.Error("Invalid initializationOptions", "err", err)
		s.showMessage(lsp.MessageWarning, "perld: ignoring invalid initializationOptions: "+err.Error())
	}

	capabilities := lsp.ServerCapabilities{
		TextDocumentSync: lsp.TextDocumentSyncOptions{
			OpenClose: true,
			Change:    lsp.TextDocumentSyncFull,
			Save:      lsp.SaveOptions{IncludeText: true},
		},
		DocumentFormattingProvider:      true,
		DocumentRangeFormattingProvider: true,
		CodeActionProvider: lsp.CodeActionOptions{
			CodeActionKinds: []lsp.CodeActionKind{lsp.CodeActionQuickFix},
		},
	}
	info := lsp.ServerInfo{
		Name:    s.name,
		Version: s.version,
	}
	s.writeResponse(lsp.NewInitializeResponse(request.ID, &capabilities, &info))

	s.watchRcFiles()
	if s.state.Config().Workspace.LintOnStartup {
		s.lintWorkspace()
	}
}

func (s *Server) handleDidChangeConfiguration(request *lsp.DidChangeConfigurationNotification) {
	cfg, err := s.state.ApplySettings(request.Params.Settings)
	if err != nil {
		slog.Error("Invalid settings", "err", err)
		s.showMessage(lsp.MessageWarning, "perld: ignoring invalid settings: "+err.Error())
		return
	}
	slog.Info("Configuration changed",
		"perltidy", cfg.Perltidy.Enabled,
		"perlcritic", cfg.Perlcritic.Enabled,
		"lintOnChange", cfg.Perlcritic.LintOnChange,
	)

	if !cfg.Perlcritic.Enabled {
		s.stopTimers()
		s.clearDiagnostics()
		return
	}
	s.relintOpenDocuments()
}

// parse decodes a message. Requests that cannot be decoded are answered
// with InvalidParams.
func (s *Server) parse(method string, contents []byte, v any) bool {
	if err := json.Unmarshal(contents, v); err != nil {
		slog.Error("Could not parse request", "method", method, "err", err)
		if id := requestID(contents); id != nil {
			s.writeResponse(lsp.NewErrorResponse(id, lsp.InvalidParams, err.Error()))
		}
		return false
	}
	return true
}

func requestID(contents []byte) *int {
	var base lsp.BaseMessage
	if err := json.Unmarshal(contents, &base); err != nil {
		return nil
	}
	return base.ID
}

func (s *Server) showMessage(messageType lsp.MessageType, message string) {
	s.writeResponse(lsp.NewShowMessageNotification(messageType, message))
}

// showMessageOnce shows message only the first time it is called with key.
func (s *Server) showMessageOnce(key string, messageType lsp.MessageType, message string) {
	s.notifiedMu.Lock()
	if s.notified[key] {
		s.notifiedMu.Unlock()
		return
	}
	s.notified[key] = true
	s.notifiedMu.Unlock()

	s.showMessage(messageType, message)
}

func (s *Server) writeResponse(msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply := lsp.EncodeMessage(msg)
	if _, err := io.WriteString(s.writer, reply); err != nil {
		slog.Error("Could not write message", "err", err)
	}
}
