package editor

import (
	"fmt"
	"strings"
)

// Change replaces the span From..To with *Text. A nil Text is a null edit
// and leaves the span untouched.
type Change struct {
	From int
	To   int
	Text *string
}

// Replace builds a change that swaps r for text.
func Replace(r Range, text string) Change {
	return Change{From: r.From, To: r.To, Text: &text}
}

// Keep builds a null edit over r.
func Keep(r Range) Change {
	return Change{From: r.From, To: r.To}
}

// IsNull reports whether the change leaves the document untouched.
func (c Change) IsNull() bool {
	return c.Text == nil
}

// Transaction is an ordered set of non-overlapping changes applied to a
// document in one step.
type Transaction struct {
	changes []Change
}

// NewTransaction validates and wraps changes against a document of length n.
func NewTransaction(n int, changes []Change) (*Transaction, error) {
	prevEnd := 0
	for i, c := range changes {
		if c.From > c.To || c.From < 0 || c.To > n {
			return nil, &RangeError{Index: i, Range: Range{From: c.From, To: c.To}, Reason: fmt.Sprintf("change outside document of length %d", n)}
		}
		if c.From < prevEnd {
			return nil, &RangeError{Index: i, Range: Range{From: c.From, To: c.To}, Reason: "change overlaps previous change"}
		}
		prevEnd = c.To
	}
	return &Transaction{changes: changes}, nil
}

// ChangeBySelection builds a transaction by asking fn for one change per
// selection range, in order.
func ChangeBySelection(text string, sel Selection, fn func(Range) Change) (*Transaction, error) {
	if err := sel.Validate(len(text)); err != nil {
		return nil, err
	}
	changes := make([]Change, 0, len(sel))
	for _, r := range sel {
		changes = append(changes, fn(r))
	}
	return NewTransaction(len(text), changes)
}

// Changes returns the transaction's changes, null edits included.
func (t *Transaction) Changes() []Change {
	return t.changes
}

// IsEmpty reports whether applying the transaction is a no-op.
func (t *Transaction) IsEmpty() bool {
	for _, c := range t.changes {
		if !c.IsNull() {
			return false
		}
	}
	return true
}

// Apply returns text with every change applied.
func (t *Transaction) Apply(text string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(text))
	pos := 0
	for _, c := range t.changes {
		if c.To > len(text) {
			return "", fmt.Errorf("change %d..%d outside document of length %d", c.From, c.To, len(text))
		}
		if c.IsNull() {
			continue
		}
		sb.WriteString(text[pos:c.From])
		sb.WriteString(*c.Text)
		pos = c.To
	}
	sb.WriteString(text[pos:])
	return sb.String(), nil
}

// MapOffset maps a pre-transaction offset to its post-transaction position.
// Offsets inside a replaced span land at the end of the replacement.
func (t *Transaction) MapOffset(pos int) int {
	delta := 0
	for _, c := range t.changes {
		if c.IsNull() || c.From > pos {
			continue
		}
		if pos < c.To || (pos == c.To && c.From < c.To) {
			return c.From + delta + len(*c.Text)
		}
		delta += len(*c.Text) - (c.To - c.From)
	}
	return pos + delta
}

// MapRange maps a pre-transaction range. A non-empty range lying within a
// single replaced span becomes the span of the replacement text.
func (t *Transaction) MapRange(r Range) Range {
	if !r.IsEmpty() {
		delta := 0
		for _, c := range t.changes {
			if c.IsNull() {
				continue
			}
			if c.From > r.From {
				break
			}
			if c.From < c.To && r.To <= c.To {
				start := c.From + delta
				return Range{From: start, To: start + len(*c.Text)}
			}
			if c.To > r.From {
				break
			}
			delta += len(*c.Text) - (c.To - c.From)
		}
	}
	from := t.MapOffset(r.From)
	to := t.MapOffset(r.To)
	if to < from {
		to = from
	}
	return Range{From: from, To: to}
}
