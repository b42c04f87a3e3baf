package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/llmr/internal/replace"
	"github.com/sokinpui/llmr/model"
)

type call struct {
	input string
	ev    replace.Event
}

type fakeSession struct {
	history []string
	calls   []call
	summary model.Summary
	err     error
}

func (s *fakeSession) History() []string { return s.history }

func (s *fakeSession) Handle(_ context.Context, input string, ev replace.Event) (model.Summary, error) {
	s.calls = append(s.calls, call{input: input, ev: ev})
	if ev == replace.EventValidate {
		return s.summary, s.err
	}
	return model.Summary{}, nil
}

func newModel(s *fakeSession) Model {
	return New(context.Background(), s, Options{Model: "test-model", NoAnimation: true})
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(Model)
	}
	return m, cmd
}

func typeText(text string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)}
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	up    = tea.KeyMsg{Type: tea.KeyUp}
	down  = tea.KeyMsg{Type: tea.KeyDown}
)

func TestPromptShowsLabel(t *testing.T) {
	m := newModel(&fakeSession{})
	assert.Contains(t, m.View(), "prompt: ")
}

func TestTypingSendsUpdates(t *testing.T) {
	s := &fakeSession{}
	m, _ := press(t, newModel(s), typeText("a"), typeText("b"))

	assert.Equal(t, "ab", m.input.Value())
	assert.Equal(t, []call{{"a", replace.EventUpdate}, {"ab", replace.EventUpdate}}, s.calls)
	assert.Equal(t, statePrompting, m.state)
}

func TestEnterValidates(t *testing.T) {
	s := &fakeSession{summary: model.Summary{
		Message:  `text replaced using llm prompt "add type hints"`,
		Replaced: 2,
		Target:   "neovim",
		Elapsed:  time.Second,
	}}
	m, _ := press(t, newModel(s), typeText("add type hints"))
	m, cmd := press(t, m, enter)
	require.NotNil(t, cmd)
	assert.Equal(t, stateProcessing, m.state)
	assert.Contains(t, m.View(), "Rewriting with test-model...")

	msg := cmd()
	next, cmd := m.Update(msg)
	m = next.(Model)
	require.NotNil(t, cmd)

	assert.Equal(t, stateSummary, m.state)
	assert.Equal(t, call{"add type hints", replace.EventValidate}, s.calls[len(s.calls)-1])
	assert.Contains(t, m.View(), `text replaced using llm prompt "add type hints"`)
	assert.Contains(t, m.View(), "2 selection(s) rewritten in neovim")

	summary, aborted, err := m.Result()
	assert.NoError(t, err)
	assert.False(t, aborted)
	assert.Equal(t, 2, summary.Replaced)
}

func TestValidationFailureShowsStatus(t *testing.T) {
	s := &fakeSession{
		summary: model.Summary{Failed: true, Message: "llm invocation failed: offline"},
		err:     errors.New("offline"),
	}
	m, cmd := press(t, newModel(s), typeText("x"), enter)
	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.Equal(t, stateError, m.state)
	assert.Contains(t, m.View(), "llm invocation failed: offline")
	_, _, err := m.Result()
	assert.EqualError(t, err, "offline")
}

func TestEscAborts(t *testing.T) {
	s := &fakeSession{}
	m, cmd := press(t, newModel(s), typeText("half"), esc)
	require.NotNil(t, cmd)

	assert.Equal(t, stateAborted, m.state)
	assert.Equal(t, call{"half", replace.EventAbort}, s.calls[len(s.calls)-1])
	for _, c := range s.calls {
		assert.NotEqual(t, replace.EventValidate, c.ev)
	}
	_, aborted, err := m.Result()
	assert.True(t, aborted)
	assert.NoError(t, err)
}

func TestKeysIgnoredWhileProcessing(t *testing.T) {
	s := &fakeSession{}
	m, _ := press(t, newModel(s), typeText("x"), enter)
	calls := len(s.calls)

	m, cmd := press(t, m, esc, typeText("y"))
	assert.Nil(t, cmd)
	assert.Equal(t, stateProcessing, m.state)
	assert.Len(t, s.calls, calls)
}

func TestHistoryNavigationFiltersByPrefix(t *testing.T) {
	s := &fakeSession{history: []string{"fix typo", "add docs", "fix lint"}}
	m, _ := press(t, newModel(s), typeText("fix"))

	m, _ = press(t, m, up)
	assert.Equal(t, "fix lint", m.input.Value())
	m, _ = press(t, m, up)
	assert.Equal(t, "fix typo", m.input.Value())
	m, _ = press(t, m, up)
	assert.Equal(t, "fix typo", m.input.Value(), "stays on the oldest match")

	m, _ = press(t, m, down)
	assert.Equal(t, "fix lint", m.input.Value())
	m, _ = press(t, m, down)
	assert.Equal(t, "fix", m.input.Value(), "typed prefix is restored")
}

func TestHistoryWithoutPrefix(t *testing.T) {
	s := &fakeSession{history: []string{"one", "two"}}
	m, _ := press(t, newModel(s), up)
	assert.Equal(t, "two", m.input.Value())

	_, cmd := press(t, m, enter)
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, call{"two", replace.EventValidate}, s.calls[len(s.calls)-1])
}

func TestProgressIsRendered(t *testing.T) {
	m, _ := press(t, newModel(&fakeSession{}), typeText("x"), enter)
	next, _ := m.Update(ProgressMsg{Current: 1, Total: 3})
	m = next.(Model)
	assert.Contains(t, m.View(), "[1/3]")
}
