package server

import (
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	perlcriticRc = ".perlcriticrc"
	perltidyRc   = ".perltidyrc"
)

var rcFiles = []string{perlcriticRc, perltidyRc}

// rcWatcher calls onChange with the path of a tool rc file whenever one is
// written, created, removed or renamed in a watched directory.
type rcWatcher struct {
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

func newRcWatcher(dirs []string, onChange func(path string)) (*rcWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			slog.Warn("Could not watch directory", "dir", dir, "err", err)
		}
	}

	w := &rcWatcher{watcher: watcher}
	w.wg.Add(1)
	go w.run(onChange)
	return w, nil
}

func (w *rcWatcher) run(onChange func(path string)) {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !slices.Contains(rcFiles, filepath.Base(event.Name)) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			slog.Debug("rc file changed", "event", event.String())
			onChange(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", "err", err)
		}
	}
}

func (w *rcWatcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (s *Server) watchRcFiles() {
	dirs := s.state.WorkspaceDirs()
	if len(dirs) == 0 || s.watcher != nil {
		return
	}

	watcher, err := newRcWatcher(dirs, s.rcFileChanged)
	if err != nil {
		slog.Warn("Could not watch rc files", "err", err)
		return
	}
	s.watcher = watcher
}

func (s *Server) rcFileChanged(path string) {
	switch filepath.Base(path) {
	case perlcriticRc:
		slog.Info("perlcritic profile changed, linting open documents", "path", path)
		s.relintOpenDocuments()
	case perltidyRc:
		// perltidy reads its profile on every run.
		slog.Info("perltidy profile changed", "path", path)
	}
}
