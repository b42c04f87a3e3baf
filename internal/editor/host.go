package editor

// Editor is the host editor as seen by the replace workflow.
type Editor interface {
	// ScrollOff returns the configured scroll margin, in lines.
	ScrollOff() int
	// Current returns the focused view and the document shown in it.
	// Each call re-reads host state.
	Current() (View, Document, error)
	// SetStatus shows an informational message on the status line.
	SetStatus(msg string)
	// SetError shows an error message on the status line.
	SetError(msg string)
}

// Document is a text buffer owned by the host.
type Document interface {
	Text() string
	Selection(v View) Selection
	LineEnding() LineEnding
	// Apply applies tx to the document as displayed in v.
	Apply(tx *Transaction, v View) error
	// AppendToHistory commits pending changes as one undo step.
	AppendToHistory(v View) error
}

// View is a window onto a document.
type View interface {
	// EnsureCursorInView scrolls so the cursor stays at least scrolloff
	// lines away from the top and bottom edges.
	EnsureCursorInView(doc Document, scrolloff int) error
}
