package utils

import (
	"strings"
	"unicode/utf16"

	"github.com/matkrin/perld/internal/lsp"
)

// OffsetAt converts an LSP position into a byte offset of text.
// A character past the end of its line is clamped to the line end,
// a line past the last one is clamped to len(text).
func OffsetAt(text string, pos lsp.Position) int {
	start, end, ok := lineBounds(text, pos.Line)
	if !ok {
		return len(text)
	}

	units := uint(0)
	for i, r := range text[start:end] {
		if units >= pos.Character {
			return start + i
		}
		units += runeUnits(r)
	}
	return end
}

// LineLength returns the length of a line in UTF-16 code units, without
// its terminator. Lines past the end of text have length zero.
func LineLength(text string, line uint) uint {
	start, end, ok := lineBounds(text, line)
	if !ok {
		return 0
	}
	return UTF16Len(text[start:end])
}

func TextInRange(text string, r lsp.Range) string {
	start := OffsetAt(text, r.Start)
	end := OffsetAt(text, r.End)
	if end < start {
		return ""
	}
	return text[start:end]
}

// FullRange covers all of text, ending after the last character.
func FullRange(text string) lsp.Range {
	lastLine := uint(strings.Count(text, "\n"))
	return lsp.NewRange(0, 0, lastLine, LineLength(text, lastLine))
}

// LineAt returns the content of a line without its terminator.
func LineAt(text string, line uint) string {
	start, end, ok := lineBounds(text, line)
	if !ok {
		return ""
	}
	return text[start:end]
}

func lineBounds(text string, line uint) (int, int, bool) {
	start := 0
	for range line {
		i := strings.IndexByte(text[start:], '\n')
		if i < 0 {
			return 0, 0, false
		}
		start += i + 1
	}

	end := len(text)
	if i := strings.IndexByte(text[start:], '\n'); i >= 0 {
		end = start + i
	}
	if end > start && text[end-1] == '\r' {
		end--
	}
	return start, end, true
}

// UTF16Len counts the UTF-16 code units of s.
func UTF16Len(s string) uint {
	n := uint(0)
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) uint {
	if n := utf16.RuneLen(r); n > 0 {
		return uint(n)
	}
	return 1
}
