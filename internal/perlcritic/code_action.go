package perlcritic

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/matkrin/perld/internal/lsp"
	"github.com/matkrin/perld/internal/utils"
)

var noCriticRe = regexp.MustCompile(`##\s*no\s+critic\s*\(([^)]*)\)`)

// NoCriticCodeAction offers to silence the policy of a perlcritic diagnostic
// with a "## no critic" annotation on the offending line. An annotation that
// is already on the line gets the policy added to its list.
func NoCriticCodeAction(uri, documentText string, diagnostic lsp.Diagnostic) *lsp.CodeAction {
	if diagnostic.Source != Source || diagnostic.Code == nil || *diagnostic.Code == "" {
		return nil
	}
	policy := *diagnostic.Code
	line := diagnostic.Range.Start.Line
	lineText := utils.LineAt(documentText, line)

	var textEdit lsp.TextEdit
	if loc := noCriticRe.FindStringSubmatchIndex(lineText); loc != nil {
		listed := lineText[loc[2]:loc[3]]
		for name := range strings.SplitSeq(listed, ",") {
			if strings.TrimSpace(name) == policy {
				return nil
			}
		}
		separator := ", "
		if strings.TrimSpace(listed) == "" {
			separator = ""
		}
		insertAt := utils.UTF16Len(lineText[:loc[3]])
		textEdit = lsp.TextEdit{
			Range:   lsp.NewRange(line, insertAt, line, insertAt),
			NewText: separator + policy,
		}
	} else {
		end := utils.UTF16Len(lineText)
		textEdit = lsp.TextEdit{
			Range:   lsp.NewRange(line, end, line, end),
			NewText: fmt.Sprintf(" ## no critic (%s)", policy),
		}
	}

	return &lsp.CodeAction{
		Title:       fmt.Sprintf("Disable %s for this line", policy),
		Kind:        lsp.CodeActionQuickFix,
		Diagnostics: []lsp.Diagnostic{diagnostic},
		Edit: lsp.WorkspaceEdit{
			Changes: map[string][]lsp.TextEdit{
				uri: {textEdit},
			},
		},
	}
}
