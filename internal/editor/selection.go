// Package editor declares the text model shared by every host: ranges,
// selections, transactions and line endings, plus the narrow interfaces a
// host editor implements so the replace workflow can drive it.
package editor

import "fmt"

// Range is a span of a document in byte offsets. From <= To always holds;
// a range with From == To is a cursor with no selected text.
type Range struct {
	From int
	To   int
}

// Point returns an empty range at pos.
func Point(pos int) Range {
	return Range{From: pos, To: pos}
}

// IsEmpty reports whether the range selects no text.
func (r Range) IsEmpty() bool {
	return r.From == r.To
}

// Len returns the number of bytes spanned by the range.
func (r Range) Len() int {
	return r.To - r.From
}

// Fragment returns the text spanned by the range.
func (r Range) Fragment(text string) string {
	return text[r.From:r.To]
}

func (r Range) String() string {
	return fmt.Sprintf("%d..%d", r.From, r.To)
}

// RangeError reports a selection range that does not fit its document.
type RangeError struct {
	Index  int
	Range  Range
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid selection range #%d (%s): %s", e.Index, e.Range, e.Reason)
}

// Selection is an ordered list of disjoint ranges.
type Selection []Range

// Validate checks that every range lies inside a document of length n,
// is not inverted, and that ranges are sorted and do not overlap.
// Empty ranges may touch their neighbours.
func (s Selection) Validate(n int) error {
	prevEnd := 0
	for i, r := range s {
		switch {
		case r.From > r.To:
			return &RangeError{Index: i, Range: r, Reason: "inverted"}
		case r.From < 0 || r.To > n:
			return &RangeError{Index: i, Range: r, Reason: fmt.Sprintf("outside document of length %d", n)}
		case r.From < prevEnd:
			return &RangeError{Index: i, Range: r, Reason: "overlaps previous range"}
		}
		prevEnd = r.To
	}
	return nil
}

// Fragments returns the text of every range, in selection order.
// Empty ranges yield empty fragments.
func (s Selection) Fragments(text string) []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.Fragment(text)
	}
	return out
}

// NonEmpty returns how many ranges select at least one byte.
func (s Selection) NonEmpty() int {
	n := 0
	for _, r := range s {
		if !r.IsEmpty() {
			n++
		}
	}
	return n
}
