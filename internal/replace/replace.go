// Package replace implements the LLM replace command: a one-line prompt
// whose validated instruction rewrites every non-empty selection in the
// current document through a Completer, applied as a single transaction.
package replace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sokinpui/llmr/internal/editor"
)

// PromptLabel is shown in front of the instruction input.
const PromptLabel = "prompt:"

var (
	// ErrNotOpen is returned when an event arrives while no prompt is open.
	ErrNotOpen = errors.New("llm prompt is not open")
	// ErrAlreadyOpen is returned when Open is called on an open prompt.
	ErrAlreadyOpen = errors.New("llm prompt is already open")
	// ErrBusy is returned when a validation is already in flight.
	ErrBusy = errors.New("llm replace is already running")
)

// Completer rewrites one fragment according to an instruction.
type Completer interface {
	Complete(ctx context.Context, instruction, fragment string) (string, error)
}

// History records validated instructions per register.
type History interface {
	Entries(register string) []string
	Push(register, entry string) error
}

// State is the prompt's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StatePromptOpen
	StateValidating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePromptOpen:
		return "prompt-open"
	case StateValidating:
		return "validating"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is a prompt input event.
type Event int

const (
	// EventUpdate is a live edit of the prompt text.
	EventUpdate Event = iota
	// EventValidate confirms the instruction.
	EventValidate
	// EventAbort closes the prompt without running.
	EventAbort
)

func (e Event) String() string {
	switch e {
	case EventUpdate:
		return "update"
	case EventValidate:
		return "validate"
	case EventAbort:
		return "abort"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Options tunes a Workflow.
type Options struct {
	// Concurrency is the number of completions in flight at once.
	// Values below 2 run strictly sequentially.
	Concurrency int
	History     History
	// Progress, when set, is called after each completion with the number
	// finished so far and the number requested.
	Progress func(done, total int)
	Logger   *slog.Logger
}

// Result summarises one validated run.
type Result struct {
	Instruction string
	Replaced    int
	Skipped     int
}

// Workflow drives the replace prompt for one editor.
type Workflow struct {
	editor      editor.Editor
	completer   Completer
	history     History
	concurrency int
	progress    func(done, total int)
	log         *slog.Logger

	mu       sync.Mutex
	state    State
	register string
}

// New creates a workflow bound to ed and c.
func New(ed editor.Editor, c Completer, opts Options) *Workflow {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Workflow{
		editor:      ed,
		completer:   c,
		history:     opts.History,
		concurrency: concurrency,
		progress:    opts.Progress,
		log:         logger,
	}
}

// State returns the current prompt state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Open shows the prompt, bound to an optional history register. It returns
// the register's previous instructions, oldest first.
func (w *Workflow) Open(register string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateIdle {
		return nil, ErrAlreadyOpen
	}
	w.state = StatePromptOpen
	w.register = register
	if w.history == nil || register == "" {
		return nil, nil
	}
	return w.history.Entries(register), nil
}

// Handle feeds one prompt event. Only EventValidate does any work; update
// events leave the prompt open and abort closes it. Failures of the
// replacement itself are reported on the status line and returned.
func (w *Workflow) Handle(ctx context.Context, input string, ev Event) (*Result, error) {
	w.mu.Lock()
	switch w.state {
	case StateIdle:
		w.mu.Unlock()
		return nil, ErrNotOpen
	case StateValidating:
		w.mu.Unlock()
		return nil, ErrBusy
	}

	switch ev {
	case EventUpdate:
		w.mu.Unlock()
		return nil, nil
	case EventAbort:
		w.state = StateIdle
		w.mu.Unlock()
		return nil, nil
	case EventValidate:
		w.state = StateValidating
		register := w.register
		w.mu.Unlock()

		defer func() {
			w.mu.Lock()
			w.state = StateIdle
			w.mu.Unlock()
		}()
		w.remember(register, input)
		return w.Replace(ctx, input)
	default:
		w.mu.Unlock()
		return nil, fmt.Errorf("unknown prompt event %v", ev)
	}
}

func (w *Workflow) remember(register, input string) {
	if w.history == nil || register == "" {
		return
	}
	if err := w.history.Push(register, input); err != nil {
		w.log.Warn("failed to record prompt history", "register", register, "error", err)
	}
}

// Replace rewrites every non-empty selection in the current document with
// instruction. Either all selections are replaced or, on the first failed
// completion, none are.
func (w *Workflow) Replace(ctx context.Context, instruction string) (*Result, error) {
	scrolloff := w.editor.ScrollOff()
	view, doc, err := w.editor.Current()
	if err != nil {
		return nil, w.fail(err)
	}
	text := doc.Text()
	sel := doc.Selection(view)
	if err := sel.Validate(len(text)); err != nil {
		return nil, w.fail(err)
	}

	w.log.Debug("llm replace", "instruction", instruction, "ranges", len(sel), "non_empty", sel.NonEmpty())

	values, err := w.complete(ctx, instruction, text, sel)
	if err != nil {
		return nil, w.fail(err)
	}

	// The document may have changed while completions were in flight.
	view, doc, err = w.editor.Current()
	if err != nil {
		return nil, w.fail(err)
	}
	text = doc.Text()
	sel = doc.Selection(view)
	lineEnding := doc.LineEnding()

	res := &Result{Instruction: instruction}
	next := 0
	tx, err := editor.ChangeBySelection(text, sel, func(r editor.Range) editor.Change {
		if r.IsEmpty() || next >= len(values) {
			res.Skipped++
			return editor.Keep(r)
		}
		v := lineEnding.Normalize(values[next])
		next++
		res.Replaced++
		return editor.Replace(r, v)
	})
	if err != nil {
		return nil, w.fail(err)
	}

	if err := doc.Apply(tx, view); err != nil {
		return nil, w.fail(err)
	}
	if err := doc.AppendToHistory(view); err != nil {
		w.log.Warn("failed to commit undo history", "error", err)
	}
	if err := view.EnsureCursorInView(doc, scrolloff); err != nil {
		w.log.Debug("failed to scroll cursor into view", "error", err)
	}

	w.editor.SetStatus(fmt.Sprintf("text replaced using llm prompt \"%s\"", instruction))
	return res, nil
}

func (w *Workflow) fail(err error) error {
	w.editor.SetError(fmt.Sprintf("llm invocation failed: %v", err))
	return err
}

// complete returns one rewrite per non-empty range, in range order.
func (w *Workflow) complete(ctx context.Context, instruction, text string, sel editor.Selection) ([]string, error) {
	fragments := make([]string, 0, len(sel))
	for _, r := range sel {
		if !r.IsEmpty() {
			fragments = append(fragments, r.Fragment(text))
		}
	}
	w.report(0, len(fragments))
	if w.concurrency < 2 || len(fragments) < 2 {
		return w.completeSequential(ctx, instruction, fragments)
	}
	return w.completeConcurrent(ctx, instruction, fragments)
}

func (w *Workflow) completeSequential(ctx context.Context, instruction string, fragments []string) ([]string, error) {
	values := make([]string, 0, len(fragments))
	for i, fragment := range fragments {
		v, err := w.completer.Complete(ctx, instruction, fragment)
		if err != nil {
			w.log.Debug("completion failed", "index", i, "error", err)
			return nil, err
		}
		values = append(values, v)
		w.report(i+1, len(fragments))
	}
	return values, nil
}

func (w *Workflow) report(done, total int) {
	if w.progress != nil && total > 0 {
		w.progress(done, total)
	}
}

// completeConcurrent runs up to w.concurrency completions at once. Results
// land at their fragment's index; the first error cancels the rest and is
// returned once every call has finished.
func (w *Workflow) completeConcurrent(ctx context.Context, instruction string, fragments []string) ([]string, error) {
	values := make([]string, len(fragments))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, fragment := range fragments {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			v, err := w.completer.Complete(gctx, instruction, fragment)
			if err != nil {
				return fmt.Errorf("selection %d: %w", i+1, err)
			}
			values[i] = v
			mu.Lock()
			done++
			w.report(done, len(fragments))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
