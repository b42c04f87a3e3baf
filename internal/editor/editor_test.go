package editor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionValidate(t *testing.T) {
	tests := []struct {
		name    string
		sel     Selection
		n       int
		wantErr string
	}{
		{name: "ok", sel: Selection{{0, 3}, {5, 5}, {5, 8}}, n: 10},
		{name: "inverted", sel: Selection{{4, 2}}, n: 10, wantErr: "inverted"},
		{name: "out of bounds", sel: Selection{{0, 11}}, n: 10, wantErr: "outside document"},
		{name: "overlap", sel: Selection{{0, 5}, {4, 6}}, n: 10, wantErr: "overlaps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sel.Validate(tt.n)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var rerr *RangeError
			require.True(t, errors.As(err, &rerr), "expected *RangeError, got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSelectionFragments(t *testing.T) {
	text := "foo() bar()"
	sel := Selection{{0, 5}, {5, 5}, {6, 11}}
	assert.Equal(t, []string{"foo()", "", "bar()"}, sel.Fragments(text))
	assert.Equal(t, 2, sel.NonEmpty())
}

func TestChangeBySelectionReplacesAndKeeps(t *testing.T) {
	text := "foo() bar()"
	sel := Selection{{0, 5}, {5, 5}, {6, 11}}
	results := []string{"foo() -> None", "bar() -> None"}
	next := 0

	tx, err := ChangeBySelection(text, sel, func(r Range) Change {
		if r.IsEmpty() {
			return Keep(r)
		}
		c := Replace(r, results[next])
		next++
		return c
	})
	require.NoError(t, err)
	assert.Len(t, tx.Changes(), 3)
	assert.False(t, tx.IsEmpty())

	got, err := tx.Apply(text)
	require.NoError(t, err)
	assert.Equal(t, "foo() -> None bar() -> None", got)
}

func TestTransactionAllNullIsEmpty(t *testing.T) {
	text := "abc"
	tx, err := ChangeBySelection(text, Selection{Point(1)}, Keep)
	require.NoError(t, err)
	assert.True(t, tx.IsEmpty())

	got, err := tx.Apply(text)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestNewTransactionRejectsOverlap(t *testing.T) {
	_, err := NewTransaction(10, []Change{Replace(Range{0, 4}, "x"), Replace(Range{3, 6}, "y")})
	assert.Error(t, err)
}

func TestTransactionMapOffset(t *testing.T) {
	// "hello world" -> "hi world"
	tx, err := NewTransaction(11, []Change{Replace(Range{0, 5}, "hi")})
	require.NoError(t, err)

	assert.Equal(t, 2, tx.MapOffset(0), "start of replaced span maps to end of replacement")
	assert.Equal(t, 2, tx.MapOffset(3))
	assert.Equal(t, 2, tx.MapOffset(5))
	assert.Equal(t, 3, tx.MapOffset(6))
	assert.Equal(t, 8, tx.MapOffset(11))
}

func TestLineEndingNormalize(t *testing.T) {
	in := "a\nb\r\nc\rd"
	assert.Equal(t, "a\nb\nc\nd", LF.Normalize(in))
	assert.Equal(t, "a\r\nb\r\nc\r\nd", CRLF.Normalize(in))
	assert.Equal(t, "a\rb\rc\rd", CR.Normalize(in))
	assert.Equal(t, "plain", CRLF.Normalize("plain"))
}

func TestLineEndingName(t *testing.T) {
	assert.Equal(t, "lf", LF.Name())
	assert.Equal(t, "crlf", CRLF.Name())
	assert.Equal(t, "cr", CR.Name())
}

func TestDetectLineEnding(t *testing.T) {
	assert.Equal(t, LF, DetectLineEnding("no breaks"))
	assert.Equal(t, LF, DetectLineEnding("a\nb\r\n"))
	assert.Equal(t, CRLF, DetectLineEnding("a\r\nb\n"))
	assert.Equal(t, CR, DetectLineEnding("a\rb"))
}

func TestTransactionMapRange(t *testing.T) {
	text := "foo() bar()"
	sel := Selection{{0, 5}, {5, 5}, {6, 11}}
	tx, err := ChangeBySelection(text, sel, func(r Range) Change {
		switch r.From {
		case 0:
			return Replace(r, "foo() -> None")
		case 6:
			return Replace(r, "bar() -> None")
		}
		return Keep(r)
	})
	require.NoError(t, err)

	out, err := tx.Apply(text)
	require.NoError(t, err)

	first := tx.MapRange(sel[0])
	cursor := tx.MapRange(sel[1])
	last := tx.MapRange(sel[2])
	assert.Equal(t, "foo() -> None", first.Fragment(out))
	assert.True(t, cursor.IsEmpty())
	assert.Equal(t, 13, cursor.From)
	assert.Equal(t, "bar() -> None", last.Fragment(out))
}
