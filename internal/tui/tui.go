package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/llmr/internal/app"
	"github.com/sokinpui/llmr/internal/replace"
	"github.com/sokinpui/llmr/model"
)

// --- Styles ---
var (
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// Session is an open replace prompt.
type Session interface {
	History() []string
	Handle(ctx context.Context, input string, ev replace.Event) (model.Summary, error)
}

// --- Messages ---

// ProgressMsg reports finished completions while a validation runs.
type ProgressMsg struct {
	Current int
	Total   int
}

type resultMsg struct {
	summary model.Summary
	err     error
}

// --- Model ---
type Model struct {
	ctx     context.Context
	session Session
	model   string

	input       textinput.Model
	spinner     spinner.Model
	noAnimation bool
	state       state
	progress    ProgressMsg
	summary     model.Summary
	err         error

	history       []string
	historyIndex  int // -1 when not browsing
	historyPrefix string
}

type state int

const (
	statePrompting state = iota
	stateProcessing
	stateSummary
	stateError
	stateAborted
)

// Options tunes the prompt.
type Options struct {
	// Model is shown while a validation runs.
	Model       string
	NoAnimation bool
}

// New creates the prompt for session.
func New(ctx context.Context, session Session, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = replace.PromptLabel + " "
	ti.PromptStyle = promptStyle
	ti.ShowSuggestions = false
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		ctx:          ctx,
		session:      session,
		model:        opts.Model,
		input:        ti,
		spinner:      s,
		noAnimation:  opts.NoAnimation,
		state:        statePrompting,
		history:      session.History(),
		historyIndex: -1,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case ProgressMsg:
		m.progress = msg
		return m, nil

	case resultMsg:
		m.summary = msg.summary
		if msg.err != nil {
			m.state = stateError
			m.err = msg.err
		} else {
			m.state = stateSummary
		}
		return m, tea.Quit

	case spinner.TickMsg:
		if m.state != stateProcessing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	default:
		if m.state != statePrompting {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == stateProcessing {
		// A running validation cannot be cancelled; only quitting the
		// program stops waiting for it.
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.state != statePrompting {
		return m, tea.Quit
	}

	switch msg.Type {
	case tea.KeyEnter:
		value := m.input.Value()
		m.state = stateProcessing
		m.input.Blur()
		if m.noAnimation {
			return m, m.validate(value)
		}
		return m, tea.Batch(m.spinner.Tick, m.validate(value))

	case tea.KeyEsc, tea.KeyCtrlC:
		if _, err := m.session.Handle(m.ctx, m.input.Value(), replace.EventAbort); err != nil {
			m.state = stateError
			m.err = err
			return m, tea.Quit
		}
		m.state = stateAborted
		return m, tea.Quit

	case tea.KeyUp:
		m.historyUp()
		return m, nil

	case tea.KeyDown:
		m.historyDown()
		return m, nil
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.historyIndex = -1
		if _, err := m.session.Handle(m.ctx, m.input.Value(), replace.EventUpdate); err != nil {
			m.state = stateError
			m.err = err
			return m, tea.Quit
		}
	}
	return m, cmd
}

func (m Model) validate(input string) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		summary, err := session.Handle(ctx, input, replace.EventValidate)
		var detailed *app.DetailedError
		if errors.As(err, &detailed) {
			// The TUI will exit, so we can print to stderr here for the stack trace.
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		return resultMsg{summary: summary, err: err}
	}
}

// historyUp moves to the previous instruction starting with what was typed
// before browsing began.
func (m *Model) historyUp() {
	if len(m.history) == 0 {
		return
	}
	if m.historyIndex == -1 {
		m.historyPrefix = m.input.Value()
		m.historyIndex = len(m.history)
	}
	for i := m.historyIndex - 1; i >= 0; i-- {
		if strings.HasPrefix(m.history[i], m.historyPrefix) {
			m.historyIndex = i
			m.input.SetValue(m.history[i])
			m.input.CursorEnd()
			return
		}
	}
}

// historyDown moves to the next matching instruction, restoring the typed
// prefix past the newest one.
func (m *Model) historyDown() {
	if m.historyIndex == -1 {
		return
	}
	for i := m.historyIndex + 1; i < len(m.history); i++ {
		if strings.HasPrefix(m.history[i], m.historyPrefix) {
			m.historyIndex = i
			m.input.SetValue(m.history[i])
			m.input.CursorEnd()
			return
		}
	}
	m.historyIndex = -1
	m.input.SetValue(m.historyPrefix)
	m.input.CursorEnd()
}

func (m Model) View() string {
	switch m.state {
	case statePrompting:
		return m.input.View() + "\n" + faintStyle.Render("enter: rewrite • esc: cancel • ↑/↓: history") + "\n"
	case stateProcessing:
		return m.renderProcessing()
	case stateError:
		return m.renderError()
	case stateSummary:
		return m.renderSummary()
	case stateAborted:
		return faintStyle.Render("Cancelled.") + "\n"
	default:
		return ""
	}
}

func (m Model) renderProcessing() string {
	var b strings.Builder
	if !m.noAnimation {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
	}
	b.WriteString("Rewriting")
	if m.model != "" {
		b.WriteString(" with ")
		b.WriteString(m.model)
	}
	b.WriteString("...")
	if m.progress.Total > 1 {
		b.WriteString(faintStyle.Render(fmt.Sprintf(" [%d/%d]", m.progress.Current, m.progress.Total)))
	}
	return b.String() + "\n"
}

func (m Model) renderError() string {
	msg := m.summary.Message
	if msg == "" && m.err != nil {
		msg = "Error: " + m.err.Error()
	}
	return errorStyle.Render(msg) + "\n"
}

func (m Model) renderSummary() string {
	var b strings.Builder
	b.WriteString(successStyle.Render(m.summary.Message))
	b.WriteString("\n")
	if m.summary.Empty() {
		b.WriteString(faintStyle.Render("Nothing to do."))
	} else {
		b.WriteString(faintStyle.Render(fmt.Sprintf("%d selection(s) rewritten in %s (%s)",
			m.summary.Replaced, m.summary.Target, m.summary.Elapsed.Round(time.Millisecond))))
	}
	b.WriteString("\n")
	return b.String()
}

// Result returns the outcome once the program has quit. aborted is true
// when the prompt was closed without validating.
func (m Model) Result() (summary model.Summary, aborted bool, err error) {
	return m.summary, m.state == stateAborted, m.err
}
