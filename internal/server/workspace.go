package server

import (
	"bufio"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/matkrin/perld/internal/utils"
)

var perlExtensions = []string{".pl", ".pm", ".t", ".psgi"}

var perlShebangRe = regexp.MustCompile(`^#!.*\bperl[0-9.]*\b`)

// WorkspacePerlFiles walks dirs and returns the perl files in them.
// Directories named in excludeDirs are skipped.
func WorkspacePerlFiles(dirs []string, excludeDirs []string) []string {
	var perlFiles []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Debug("Skipping path", "path", path, "err", err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != dir && slices.Contains(excludeDirs, d.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && IsPerlFile(path) {
				perlFiles = append(perlFiles, path)
			}
			return nil
		})
		if err != nil {
			slog.Warn("Could not walk workspace folder", "dir", dir, "err", err)
		}
	}
	return perlFiles
}

// IsPerlFile reports whether path has a perl extension, or no extension
// and a perl shebang.
func IsPerlFile(path string) bool {
	ext := filepath.Ext(path)
	if slices.Contains(perlExtensions, ext) {
		return true
	}
	if ext != "" {
		return false
	}
	return hasPerlShebang(path)
}

func hasPerlShebang(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	reader := bufio.NewReaderSize(file, 256)
	line, err := reader.ReadSlice('\n')
	if err != nil && len(line) == 0 {
		return false
	}
	return perlShebangRe.Match(line)
}

// lintWorkspace lints every perl file of the workspace that is not open in
// the editor, running at most workspace.concurrency linters at once.
func (s *Server) lintWorkspace() {
	cfg := s.state.Config()
	if !cfg.Perlcritic.Enabled {
		return
	}
	dirs := s.state.WorkspaceDirs()

	s.goJob(func() {
		files := WorkspacePerlFiles(dirs, cfg.Workspace.ExcludeDirs)
		slog.Info("Linting workspace", "files", len(files))

		g, ctx := errgroup.WithContext(s.ctx)
		g.SetLimit(cfg.Workspace.Concurrency)
		for _, path := range files {
			uri := utils.PathToURI(path)
			if _, open := s.state.Document(uri); open {
				continue
			}
			content, err := os.ReadFile(path)
			if err != nil {
				slog.Warn("Could not read file", "path", path, "err", err)
				continue
			}

			request := lintRequest{
				uri:        uri,
				path:       path,
				text:       string(content),
				generation: s.nextGeneration(uri),
			}
			g.Go(func() error {
				s.lint(ctx, cfg, request)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			slog.Warn("Workspace lint failed", "err", err)
		}
	})
}
