package server

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/matkrin/perld/internal/config"
	"github.com/matkrin/perld/internal/lsp"
	"github.com/matkrin/perld/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkingDir(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "first")
	second := filepath.Join(root, "second")
	nested := filepath.Join(second, "nested")

	state := NewState(config.Default())
	assert.Equal(t, "", state.WorkingDir(utils.PathToURI(filepath.Join(first, "a.pl"))))

	state.SetWorkspaceFolders([]lsp.WorkspaceFolder{
		{URI: utils.PathToURI(first), Name: "first"},
		{URI: "https://example.com/remote", Name: "remote"},
		{URI: utils.PathToURI(second), Name: "second"},
		{URI: utils.PathToURI(nested), Name: "nested"},
	})

	testCases := []struct {
		name string
		uri  string
		want string
	}{
		{"in first folder", utils.PathToURI(filepath.Join(first, "lib", "A.pm")), first},
		{"in second folder", utils.PathToURI(filepath.Join(second, "b.pl")), second},
		{"innermost folder wins", utils.PathToURI(filepath.Join(nested, "c.pl")), nested},
		{"outside every folder", utils.PathToURI(filepath.Join(root, "d.pl")), first},
		{"not a file", "untitled:Untitled-1", first},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, state.WorkingDir(tt.uri))
		})
	}
}

func TestStateDocuments(t *testing.T) {
	state := NewState(config.Default())
	state.SetDocument(Document{URI: "file:///b.pl", LanguageID: "perl", Version: 1, Text: "1;"})
	state.SetDocument(Document{URI: "file:///a.pl", LanguageID: "perl", Version: 1, Text: "2;"})

	document, ok := state.UpdateText("file:///b.pl", 3, "3;")
	require.True(t, ok)
	assert.Equal(t, 3, document.Version)
	assert.True(t, document.IsPerl())

	_, ok = state.UpdateText("file:///missing.pl", 1, "")
	assert.False(t, ok)

	documents := state.Documents()
	require.Len(t, documents, 2)
	assert.Equal(t, "file:///a.pl", documents[0].URI)
	assert.Equal(t, "3;", documents[1].Text)

	state.RemoveDocument("file:///a.pl")
	_, ok = state.Document("file:///a.pl")
	assert.False(t, ok)
}

func TestStateApplySettings(t *testing.T) {
	state := NewState(config.Default())

	cfg, err := state.ApplySettings(json.RawMessage(`{"perlcritic": {"lintOnChange": true}}`))
	require.NoError(t, err)
	assert.True(t, cfg.Perlcritic.LintOnChange)
	assert.True(t, state.Config().Perlcritic.LintOnChange)

	_, err = state.ApplySettings(json.RawMessage(`{"perlcritic": {"lintOnChange": "yes"}}`))
	assert.Error(t, err)
	assert.True(t, state.Config().Perlcritic.LintOnChange)
}
