package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/llmr/internal/fs"
	"github.com/sokinpui/llmr/internal/ui"
)

// ErrEmpty is returned when the chosen source holds only whitespace.
var ErrEmpty = errors.New("source is empty, nothing to rewrite")

// Origin is where pipe-mode content came from.
type Origin int

const (
	OriginStdin Origin = iota
	OriginClipboard
	OriginFile
)

func (o Origin) String() string {
	switch o {
	case OriginClipboard:
		return "clipboard"
	case OriginFile:
		return "file"
	default:
		return "stdin"
	}
}

// Clipboard is the system clipboard.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Content is text read for a pipe-mode run.
type Content struct {
	Text   string
	Origin Origin
	// Path is set when Origin is OriginFile.
	Path string
}

// SourceProvider determines and retrieves the source content.
type SourceProvider struct {
	stdin     io.Reader
	piped     bool
	clipboard Clipboard
}

// New creates a SourceProvider reading from the process stdin and the
// system clipboard.
func New() *SourceProvider {
	stat, err := os.Stdin.Stat()
	piped := err == nil && (stat.Mode()&os.ModeCharDevice) == 0
	return NewWith(os.Stdin, piped, systemClipboard{})
}

// NewWith creates a SourceProvider over the given stdin and clipboard.
func NewWith(stdin io.Reader, piped bool, cb Clipboard) *SourceProvider {
	return &SourceProvider{stdin: stdin, piped: piped, clipboard: cb}
}

// GetContent retrieves content from path when given, else stdin (if
// piped), else the clipboard. With ErrEmpty the blank content is still
// returned.
func (sp *SourceProvider) GetContent(path string) (*Content, error) {
	switch {
	case path != "":
		text, err := fs.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &Content{Text: text, Origin: OriginFile, Path: path}, nil

	case sp.piped:
		ui.Header("--- Reading from stdin ---")
		data, err := io.ReadAll(sp.stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return nonEmpty(&Content{Text: string(data), Origin: OriginStdin})

	default:
		ui.Header("--- Reading from clipboard ---")
		text, err := sp.clipboard.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read from clipboard: %w", err)
		}
		return nonEmpty(&Content{Text: text, Origin: OriginClipboard})
	}
}

func nonEmpty(c *Content) (*Content, error) {
	if strings.TrimSpace(c.Text) == "" {
		return c, ErrEmpty
	}
	return c, nil
}

// Destination is where a pipe-mode run writes its result.
type Destination struct {
	// Path, when set, is replaced atomically.
	Path      string
	Clipboard bool
	Stdout    io.Writer
}

// Name describes the destination for summaries.
func (d Destination) Name() string {
	switch {
	case d.Path != "":
		return d.Path
	case d.Clipboard:
		return "clipboard"
	default:
		return "stdout"
	}
}

// Write sends text to the destination.
func (sp *SourceProvider) Write(d Destination, text string) error {
	switch {
	case d.Path != "":
		return fs.WriteFileAtomic(d.Path, text)
	case d.Clipboard:
		if err := sp.clipboard.WriteAll(text); err != nil {
			return fmt.Errorf("failed to write to clipboard: %w", err)
		}
		return nil
	default:
		w := d.Stdout
		if w == nil {
			w = os.Stdout
		}
		if _, err := io.WriteString(w, text); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
}
