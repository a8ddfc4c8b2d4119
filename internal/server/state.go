package server

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/matkrin/perld/internal/config"
	"github.com/matkrin/perld/internal/lsp"
	"github.com/matkrin/perld/internal/utils"
)

const perlLanguageID = "perl"

type Document struct {
	URI        string
	LanguageID string
	Version    int
	Text       string
}

func (d *Document) IsPerl() bool {
	return d.LanguageID == perlLanguageID
}

// State is shared between the dispatcher and the lint goroutines.
type State struct {
	mu                sync.RWMutex
	documents         map[string]Document
	workspaceFolders  []lsp.WorkspaceFolder
	config            config.Config
	shutdownRequested bool
}

func NewState(cfg config.Config) *State {
	return &State{
		documents: make(map[string]Document),
		config:    cfg,
	}
}

func (s *State) SetDocument(document Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[document.URI] = document
}

// UpdateText replaces the text of an open document. Unknown documents are
// ignored.
func (s *State) UpdateText(uri string, version int, text string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	document, ok := s.documents[uri]
	if !ok {
		return Document{}, false
	}
	document.Version = version
	document.Text = text
	s.documents[uri] = document
	return document, true
}

func (s *State) Document(uri string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	document, ok := s.documents[uri]
	return document, ok
}

func (s *State) RemoveDocument(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, uri)
}

// Documents returns the open documents sorted by URI.
func (s *State) Documents() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	documents := make([]Document, 0, len(s.documents))
	for _, document := range s.documents {
		documents = append(documents, document)
	}
	slices.SortFunc(documents, func(a, b Document) int {
		if a.URI < b.URI {
			return -1
		}
		if a.URI > b.URI {
			return 1
		}
		return 0
	})
	return documents
}

func (s *State) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// ApplySettings overlays client settings on the current configuration.
// The configuration stays untouched if the settings cannot be decoded.
func (s *State) ApplySettings(settings json.RawMessage) (config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := config.ApplySettings(s.config, settings)
	if err != nil {
		return s.config, err
	}
	if err := cfg.Validate(); err != nil {
		slog.Warn("Invalid settings, unknown severities are treated as error", "err", err)
	}
	s.config = cfg
	return cfg, nil
}

func (s *State) SetWorkspaceFolders(folders []lsp.WorkspaceFolder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaceFolders = folders
}

// WorkspaceDirs returns the paths of the file:// workspace folders.
func (s *State) WorkspaceDirs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dirs := []string{}
	for _, folder := range s.workspaceFolders {
		dir, err := utils.UriToPath(folder.URI)
		if err != nil {
			slog.Warn("Ignoring workspace folder", "uri", folder.URI, "err", err)
			continue
		}
		dirs = append(dirs, dir)
	}
	return dirs
}

// WorkingDir is the directory the tools run in for a document: the
// innermost workspace folder containing it, else the first workspace
// folder, else "" to inherit the server's directory.
func (s *State) WorkingDir(uri string) string {
	dirs := s.WorkspaceDirs()
	if len(dirs) == 0 {
		return ""
	}

	path, err := utils.UriToPath(uri)
	if err != nil {
		return dirs[0]
	}

	best := ""
	for _, dir := range dirs {
		if utils.Contains(dir, path) && len(dir) > len(best) {
			best = dir
		}
	}
	if best != "" {
		return best
	}
	return dirs[0]
}

func (s *State) RequestShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownRequested = true
}

func (s *State) ShutdownRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdownRequested
}
