package nvim

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/neovim/go-client/nvim"

	"github.com/sokinpui/llmr/internal/editor"
)

// position is a zero-based row and byte column.
type position struct {
	row int
	col int
}

// markPosition converts a (1-based row, 0-based byte column) pair as
// returned by nvim_buf_get_mark or nvim_win_get_cursor.
func markPosition(p [2]int) position {
	return position{row: p[0] - 1, col: p[1]}
}

// lineIndex maps between byte offsets in the joined buffer text and
// buffer positions.
type lineIndex struct {
	lines   []string
	starts  []int
	eol     int
	tabstop int
}

func newLineIndex(lines []string, eol int) *lineIndex {
	if len(lines) == 0 {
		lines = []string{""}
	}
	starts := make([]int, len(lines))
	off := 0
	for i, l := range lines {
		starts[i] = off
		off += len(l) + eol
	}
	return &lineIndex{lines: lines, starts: starts, eol: eol, tabstop: defaultTabstop}
}

// Len returns the length of the joined text.
func (ix *lineIndex) Len() int {
	last := len(ix.lines) - 1
	return ix.starts[last] + len(ix.lines[last])
}

// Offset converts p to a byte offset, clamping out-of-range rows and
// columns. Vim reports MAXCOL for "to end of line" marks.
func (ix *lineIndex) Offset(p position) int {
	if p.row >= len(ix.lines) {
		return ix.Len()
	}
	row := max(p.row, 0)
	col := min(max(p.col, 0), len(ix.lines[row]))
	return ix.starts[row] + col
}

// Position converts a byte offset to a buffer position. Offsets inside a
// line ending land at the end of that line.
func (ix *lineIndex) Position(off int) position {
	row := sort.Search(len(ix.starts), func(i int) bool { return ix.starts[i] > off }) - 1
	row = max(row, 0)
	col := min(max(off-ix.starts[row], 0), len(ix.lines[row]))
	return position{row: row, col: col}
}

// lineEnd returns the offset just past row's line ending, or the end of
// the text for the last row.
func (ix *lineIndex) lineEnd(row int) int {
	if row+1 < len(ix.starts) {
		return ix.starts[row+1]
	}
	return ix.Len()
}

// charEnd returns the column just past the character starting at col.
func charEnd(line string, col int) int {
	if col >= len(line) {
		return len(line)
	}
	_, size := utf8.DecodeRuneInString(line[col:])
	return col + size
}

const defaultTabstop = 8

// cellSpan returns the display cells [start, end) covered by the character
// at byte col. Columns past the end of the line count one cell per byte,
// as they do for a block selected with virtualedit.
func (ix *lineIndex) cellSpan(line string, col int) (int, int) {
	cell := 0
	for i, r := range line {
		w := ix.runeWidth(r, cell)
		if i >= col {
			return cell, cell + max(w, 1)
		}
		cell += w
	}
	cell += col - len(line)
	return cell, cell + 1
}

func (ix *lineIndex) runeWidth(r rune, cell int) int {
	if r == '\t' {
		ts := ix.tabstop
		if ts <= 0 {
			ts = defaultTabstop
		}
		return ts - cell%ts
	}
	return runewidth.RuneWidth(r)
}

// blockColumns returns the byte columns of line covering the display cells
// [lo, hi). Characters partly inside the block are included whole, so a
// range never splits a rune. ok is false when the line ends before lo.
func (ix *lineIndex) blockColumns(line string, lo, hi int) (from, to int, ok bool) {
	cell := 0
	from = -1
	for i, r := range line {
		w := ix.runeWidth(r, cell)
		end := cell + max(w, 1)
		if cell >= hi {
			break
		}
		if end > lo {
			if from < 0 {
				from = i
			}
			_, size := utf8.DecodeRuneInString(line[i:])
			to = i + size
		}
		cell += w
	}
	if from < 0 {
		return len(line), len(line), false
	}
	return from, to, true
}

// visualSelection converts the '< and '> marks of the last visual
// selection into ranges. Marks are inclusive of the character under them.
func visualSelection(mode string, ix *lineIndex, start, end position) editor.Selection {
	if end.row < start.row || (end.row == start.row && end.col < start.col) {
		start, end = end, start
	}
	start.row = min(max(start.row, 0), len(ix.lines)-1)
	end.row = min(max(end.row, 0), len(ix.lines)-1)

	switch mode {
	case visualLinewise:
		return editor.Selection{{
			From: ix.starts[start.row],
			To:   ix.starts[end.row] + len(ix.lines[end.row]),
		}}

	case visualBlockwise:
		// Marks hold byte columns; the block is a rectangle of display
		// cells, mapped back to bytes on every row.
		s0, s1 := ix.cellSpan(ix.lines[start.row], start.col)
		e0, e1 := ix.cellSpan(ix.lines[end.row], end.col)
		lo, hi := min(s0, e0), max(s1, e1)
		sel := make(editor.Selection, 0, end.row-start.row+1)
		for row := start.row; row <= end.row; row++ {
			from, to, ok := ix.blockColumns(ix.lines[row], lo, hi)
			if !ok {
				sel = append(sel, editor.Point(ix.starts[row]+from))
				continue
			}
			sel = append(sel, editor.Range{From: ix.starts[row] + from, To: ix.starts[row] + to})
		}
		return sel

	default:
		from := ix.Offset(start)
		line := ix.lines[end.row]
		var to int
		if end.col >= len(line) {
			// Selected past the last character: the line break is included.
			to = ix.lineEnd(end.row)
		} else {
			to = ix.starts[end.row] + charEnd(line, end.col)
		}
		return editor.Selection{{From: from, To: max(to, from)}}
	}
}

// Document is a snapshot of a Neovim buffer. Offsets index the buffer's
// lines joined with the buffer's own line ending.
type Document struct {
	host  *Host
	buf   nvim.Buffer
	index *lineIndex
	text  string
	le    editor.LineEnding
	sel   editor.Selection
}

func newDocument(h *Host, buf nvim.Buffer, lines []string, le editor.LineEnding) *Document {
	ix := newLineIndex(lines, len(le.String()))
	return &Document{
		host:  h,
		buf:   buf,
		index: ix,
		text:  strings.Join(ix.lines, le.String()),
		le:    le,
	}
}

func (d *Document) Text() string { return d.text }

func (d *Document) Selection(editor.View) editor.Selection {
	return append(editor.Selection(nil), d.sel...)
}

func (d *Document) LineEnding() editor.LineEnding { return d.le }

// Apply sends every non-null change as nvim_buf_set_text in one atomic
// batch, last change first, joined into a single undo block.
func (d *Document) Apply(tx *editor.Transaction, _ editor.View) error {
	text, err := tx.Apply(d.text)
	if err != nil {
		return err
	}
	edits := bufferEdits(d.index, d.le, tx.Changes())
	if len(edits) == 0 {
		return nil
	}

	b := d.host.nvim.NewBatch()
	for i, e := range edits {
		if i > 0 {
			b.Command("silent! undojoin")
		}
		b.SetBufferText(d.buf, e.start.row, e.start.col, e.end.row, e.end.col, e.lines)
	}
	if err := b.Execute(); err != nil {
		return fmt.Errorf("failed to apply edits to buffer: %w", err)
	}

	mapped := make(editor.Selection, len(d.sel))
	for i, r := range d.sel {
		mapped[i] = tx.MapRange(r)
	}
	d.text = text
	ix := newLineIndex(strings.Split(text, d.le.String()), len(d.le.String()))
	ix.tabstop = d.index.tabstop
	d.index = ix
	d.sel = mapped
	return nil
}

// AppendToHistory closes the current undo block so the rewrite is undone
// as one step.
func (d *Document) AppendToHistory(editor.View) error {
	if err := d.host.nvim.Command("let &undolevels = &undolevels"); err != nil {
		return fmt.Errorf("failed to break undo sequence: %w", err)
	}
	return nil
}

type bufferEdit struct {
	start position
	end   position
	lines [][]byte
}

// bufferEdits converts changes into nvim_buf_set_text arguments, ordered
// back to front so earlier positions stay valid.
func bufferEdits(ix *lineIndex, le editor.LineEnding, changes []editor.Change) []bufferEdit {
	var edits []bufferEdit
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if c.IsNull() {
			continue
		}
		parts := strings.Split(*c.Text, le.String())
		lines := make([][]byte, len(parts))
		for j, p := range parts {
			lines[j] = []byte(p)
		}
		edits = append(edits, bufferEdit{
			start: ix.Position(c.From),
			end:   ix.Position(c.To),
			lines: lines,
		})
	}
	return edits
}

// View is a Neovim window.
type View struct {
	host *Host
	win  nvim.Window
}

// EnsureCursorInView moves the cursor onto the last character of the last
// selection range and opens any folds hiding it. Neovim applies its own
// 'scrolloff' when the cursor moves.
func (v *View) EnsureCursorInView(doc editor.Document, scrolloff int) error {
	d, ok := doc.(*Document)
	if !ok {
		return fmt.Errorf("document %T does not belong to neovim", doc)
	}
	if len(d.sel) == 0 {
		return nil
	}
	last := d.sel[len(d.sel)-1]
	off := last.To
	if !last.IsEmpty() {
		off--
	}
	p := d.index.Position(off)

	b := v.host.nvim.NewBatch()
	b.SetWindowCursor(v.win, [2]int{p.row + 1, p.col})
	b.Command("normal! zv")
	if err := b.Execute(); err != nil {
		return fmt.Errorf("failed to move cursor: %w", err)
	}
	v.host.log.Debug("cursor moved after replace", "row", p.row+1, "col", p.col, "scrolloff", scrolloff)
	return nil
}
