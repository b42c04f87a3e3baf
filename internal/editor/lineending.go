package editor

import (
	"regexp"
	"strings"
)

// LineEnding is a document's configured newline sequence.
type LineEnding int

const (
	LF LineEnding = iota
	CRLF
	CR
)

var lineEndingRegex = regexp.MustCompile(`\r\n|\r|\n`)

// String returns the newline sequence itself.
func (le LineEnding) String() string {
	switch le {
	case CRLF:
		return "\r\n"
	case CR:
		return "\r"
	default:
		return "\n"
	}
}

// Name returns a short human-readable name (lf, crlf, cr).
func (le LineEnding) Name() string {
	switch le {
	case CRLF:
		return "crlf"
	case CR:
		return "cr"
	default:
		return "lf"
	}
}

// Normalize rewrites every line break in s to le.
func (le LineEnding) Normalize(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return lineEndingRegex.ReplaceAllLiteralString(s, le.String())
}

// DetectLineEnding returns the ending of the first line break in text,
// or LF when text has none.
func DetectLineEnding(text string) LineEnding {
	loc := lineEndingRegex.FindStringIndex(text)
	if loc == nil {
		return LF
	}
	switch text[loc[0]:loc[1]] {
	case "\r\n":
		return CRLF
	case "\r":
		return CR
	default:
		return LF
	}
}
