// Package buffer is an in-memory editor host: one document shown in one
// view, with an undo history and a recorded status line.
package buffer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sokinpui/llmr/internal/editor"
)

// DefaultHeight is the number of lines a view shows when none is given.
const DefaultHeight = 40

// Document is an in-memory text buffer.
type Document struct {
	mu         sync.Mutex
	text       string
	lineEnding editor.LineEnding
	selections map[*View]editor.Selection

	revisions []string
	current   int
}

// NewDocument creates a document holding text. Its line ending is detected
// from the text.
func NewDocument(text string) *Document {
	return &Document{
		text:       text,
		lineEnding: editor.DetectLineEnding(text),
		selections: make(map[*View]editor.Selection),
		revisions:  []string{text},
	}
}

// Text returns the current contents.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// SetText replaces the contents without recording history. Selections are
// clamped to the new length.
func (d *Document) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
	for v, sel := range d.selections {
		d.selections[v] = clamp(sel, len(text))
	}
}

// LineEnding returns the configured line ending.
func (d *Document) LineEnding() editor.LineEnding {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lineEnding
}

// SetLineEnding overrides the detected line ending.
func (d *Document) SetLineEnding(le editor.LineEnding) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lineEnding = le
}

// Selection returns the selection of v, or a cursor at the start of the
// document when v has none.
func (d *Document) Selection(v editor.View) editor.Selection {
	d.mu.Lock()
	defer d.mu.Unlock()
	view, ok := v.(*View)
	if !ok {
		return editor.Selection{editor.Point(0)}
	}
	sel, ok := d.selections[view]
	if !ok || len(sel) == 0 {
		return editor.Selection{editor.Point(0)}
	}
	out := make(editor.Selection, len(sel))
	copy(out, sel)
	return out
}

// SetSelection sets the selection shown in v.
func (d *Document) SetSelection(v *View, sel editor.Selection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := sel.Validate(len(d.text)); err != nil {
		return err
	}
	d.selections[v] = append(editor.Selection(nil), sel...)
	return nil
}

// Apply applies tx and maps every view's selection through it.
func (d *Document) Apply(tx *editor.Transaction, v editor.View) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, err := tx.Apply(d.text)
	if err != nil {
		return err
	}
	d.text = text
	for view, sel := range d.selections {
		mapped := make(editor.Selection, len(sel))
		for i, r := range sel {
			mapped[i] = tx.MapRange(r)
		}
		d.selections[view] = mapped
	}
	return nil
}

// AppendToHistory commits the current text as an undo step. Nothing is
// recorded when the text has not changed since the last commit.
func (d *Document) AppendToHistory(editor.View) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.revisions[d.current] == d.text {
		return nil
	}
	d.revisions = append(d.revisions[:d.current+1], d.text)
	d.current++
	return nil
}

// Revisions returns the number of committed undo steps.
func (d *Document) Revisions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Undo restores the previous committed revision.
func (d *Document) Undo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == 0 {
		return false
	}
	d.current--
	d.restore()
	return true
}

// Redo re-applies the next committed revision.
func (d *Document) Redo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current+1 >= len(d.revisions) {
		return false
	}
	d.current++
	d.restore()
	return true
}

func (d *Document) restore() {
	d.text = d.revisions[d.current]
	for v, sel := range d.selections {
		d.selections[v] = clamp(sel, len(d.text))
	}
}

func clamp(sel editor.Selection, n int) editor.Selection {
	out := make(editor.Selection, 0, len(sel))
	for _, r := range sel {
		r.From = min(r.From, n)
		r.To = min(r.To, n)
		if len(out) > 0 && r.From < out[len(out)-1].To {
			continue
		}
		out = append(out, r)
	}
	return out
}

// View is a window of Height lines starting at line Top.
type View struct {
	Top    int
	Height int
}

// NewView creates a view of the given height.
func NewView(height int) *View {
	if height <= 0 {
		height = DefaultHeight
	}
	return &View{Height: height}
}

// EnsureCursorInView scrolls so the line holding the primary cursor (the
// end of the last range) is at least scrolloff lines from either edge.
func (v *View) EnsureCursorInView(doc editor.Document, scrolloff int) error {
	sel := doc.Selection(v)
	if len(sel) == 0 {
		return nil
	}
	text := doc.Text()
	cursor := sel[len(sel)-1].To
	if cursor > len(text) {
		return fmt.Errorf("cursor %d outside document of length %d", cursor, len(text))
	}
	line := strings.Count(text[:cursor], doc.LineEnding().String())

	margin := min(max(scrolloff, 0), (v.Height-1)/2)
	if line < v.Top+margin {
		v.Top = max(line-margin, 0)
	} else if line > v.Top+v.Height-1-margin {
		v.Top = line - (v.Height - 1 - margin)
	}
	return nil
}

// Status is one status line message.
type Status struct {
	Message string
	Error   bool
}

// Editor is an editor.Editor over a single document and view.
type Editor struct {
	doc       *Document
	view      *View
	scrolloff int
	onStatus  func(Status)

	mu     sync.Mutex
	status []Status
}

// Option configures an Editor.
type Option func(*Editor)

// WithScrollOff sets the scroll margin reported to the workflow.
func WithScrollOff(n int) Option {
	return func(e *Editor) { e.scrolloff = n }
}

// WithStatusHandler forwards every status message to fn.
func WithStatusHandler(fn func(Status)) Option {
	return func(e *Editor) { e.onStatus = fn }
}

// New creates an editor showing doc in view.
func New(doc *Document, view *View, opts ...Option) *Editor {
	e := &Editor{doc: doc, view: view, scrolloff: 5}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Document returns the edited document.
func (e *Editor) Document() *Document { return e.doc }

// View returns the editor's only view.
func (e *Editor) View() *View { return e.view }

func (e *Editor) ScrollOff() int { return e.scrolloff }

func (e *Editor) Current() (editor.View, editor.Document, error) {
	return e.view, e.doc, nil
}

func (e *Editor) SetStatus(msg string) { e.record(Status{Message: msg}) }

func (e *Editor) SetError(msg string) { e.record(Status{Message: msg, Error: true}) }

func (e *Editor) record(s Status) {
	e.mu.Lock()
	e.status = append(e.status, s)
	fn := e.onStatus
	e.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// LastStatus returns the most recent status message.
func (e *Editor) LastStatus() (Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.status) == 0 {
		return Status{}, false
	}
	return e.status[len(e.status)-1], true
}
