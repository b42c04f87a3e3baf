package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/llmr/cli"
	"github.com/sokinpui/llmr/internal/replace"
	"github.com/sokinpui/llmr/internal/source"
	"github.com/sokinpui/llmr/internal/ui"
)

type completerFunc func(ctx context.Context, instruction, fragment string) (string, error)

func (f completerFunc) Complete(ctx context.Context, instruction, fragment string) (string, error) {
	return f(ctx, instruction, fragment)
}

func upper(_ context.Context, _, fragment string) (string, error) {
	return strings.ToUpper(fragment), nil
}

type nopClipboard struct{}

func (nopClipboard) ReadAll() (string, error) { return "", nil }
func (nopClipboard) WriteAll(string) error    { return nil }

func TestMain(m *testing.M) {
	ui.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("LLMR_CONFIG_DIR", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_MODEL", "")
}

func newApp(t *testing.T, flags *cli.Config, stdin string, c replace.Completer, stdout io.Writer) *App {
	t.Helper()
	isolate(t)
	sp := source.NewWith(strings.NewReader(stdin), true, nopClipboard{})
	a, err := New(flags,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSourceProvider(sp),
		WithStdout(stdout),
		WithCompleter(c),
	)
	require.NoError(t, err)
	return a
}

func TestExecutePipeStdinToStdout(t *testing.T) {
	var out bytes.Buffer
	a := newApp(t, &cli.Config{Pipe: true}, "foo()\n", completerFunc(upper), &out)

	summary, err := a.Execute(context.Background(), "shout")
	require.NoError(t, err)

	assert.Equal(t, "FOO()\n", out.String())
	assert.Equal(t, 1, summary.Replaced)
	assert.Equal(t, "stdout", summary.Target)
	assert.Equal(t, "claude-3-5-sonnet-20241022", summary.Model)
	assert.Equal(t, `text replaced using llm prompt "shout"`, summary.Message)
	assert.False(t, summary.Failed)
}

func TestExecutePipeBlocksInFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	orig := "# Notes\n\n```go\nfunc a() {}\n```\n\ntext\n\n```\nb\n```\n"
	require.NoError(t, os.WriteFile(path, []byte(orig), 0o644))

	var out bytes.Buffer
	a := newApp(t, &cli.Config{Pipe: true, Blocks: true, File: path}, "", completerFunc(upper), &out)

	summary, err := a.Execute(context.Background(), "shout")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Replaced)
	assert.Equal(t, path, summary.Target)
	assert.Empty(t, out.String())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n\n```go\nFUNC A() {}\n```\n\ntext\n\n```\nB\n```\n", string(got))
}

func TestExecuteFailureEchoesStdin(t *testing.T) {
	var out bytes.Buffer
	fail := completerFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("offline")
	})
	a := newApp(t, &cli.Config{Pipe: true}, "keep me", fail, &out)

	summary, err := a.Execute(context.Background(), "shout")
	require.Error(t, err)
	assert.True(t, summary.Failed)
	assert.Equal(t, "llm invocation failed: offline", summary.Message)
	assert.Equal(t, "keep me", out.String())
}

func TestExecuteFailureLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o644))
	fail := completerFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("offline")
	})
	a := newApp(t, &cli.Config{Pipe: true, File: path}, "", fail, io.Discard)

	_, err := a.Execute(context.Background(), "shout")
	require.Error(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got))
}

func TestExecuteMissingCredential(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	a, err := New(&cli.Config{Pipe: true},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSourceProvider(source.NewWith(strings.NewReader("x"), true, nopClipboard{})),
		WithStdout(&out),
	)
	require.NoError(t, err)

	summary, err := a.Execute(context.Background(), "shout")
	require.Error(t, err)
	assert.Contains(t, summary.Message, "not authenticated")
}

func TestSessionRecordsHistory(t *testing.T) {
	a := newApp(t, &cli.Config{Pipe: true, Register: "a"}, "x", completerFunc(upper), io.Discard)
	ctx := context.Background()

	s, err := a.Start(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.History())
	_, err = s.Handle(ctx, "first", replace.EventValidate)
	require.NoError(t, err)
	s.Close()

	a.sourceProvider = source.NewWith(strings.NewReader("y"), true, nopClipboard{})
	s, err = a.Start(ctx)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"first"}, s.History())
}

func TestClearHistory(t *testing.T) {
	a := newApp(t, &cli.Config{Pipe: true, Register: "a"}, "x", completerFunc(upper), io.Discard)
	ctx := context.Background()

	_, err := a.Execute(ctx, "first")
	require.NoError(t, err)
	require.NoError(t, a.ClearHistory("a"))

	a.sourceProvider = source.NewWith(strings.NewReader("y"), true, nopClipboard{})
	s, err := a.Start(ctx)
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.History())
}

func TestSessionAbortEchoesInput(t *testing.T) {
	var out bytes.Buffer
	called := false
	c := completerFunc(func(context.Context, string, string) (string, error) {
		called = true
		return "", nil
	})
	a := newApp(t, &cli.Config{Pipe: true}, "x", c, &out)
	ctx := context.Background()

	s, err := a.Start(ctx)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Handle(ctx, "typing", replace.EventUpdate)
	require.NoError(t, err)
	_, err = s.Handle(ctx, "typing", replace.EventAbort)
	require.NoError(t, err)

	assert.Equal(t, "x", out.String(), "an aborted filter hands its input back")

	_, err = s.Handle(ctx, "late", replace.EventValidate)
	assert.ErrorIs(t, err, replace.ErrNotOpen)
	assert.False(t, called)
	s.Close()
	assert.Equal(t, "x", out.String(), "the input is written once")
}

func TestSessionAbortLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o644))
	var out bytes.Buffer
	a := newApp(t, &cli.Config{Pipe: true, File: path}, "", completerFunc(upper), &out)
	ctx := context.Background()

	s, err := a.Start(ctx)
	require.NoError(t, err)
	_, err = s.Handle(ctx, "", replace.EventAbort)
	require.NoError(t, err)
	s.Close()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got))
	assert.Empty(t, out.String())
}

func TestSessionClosedWithoutValidatingEchoesInput(t *testing.T) {
	var out bytes.Buffer
	a := newApp(t, &cli.Config{Pipe: true}, "selected\n", completerFunc(upper), &out)

	s, err := a.Start(context.Background())
	require.NoError(t, err)
	s.Close()
	s.Close()
	assert.Equal(t, "selected\n", out.String())
}

func TestBlankStdinIsEchoed(t *testing.T) {
	var out bytes.Buffer
	a := newApp(t, &cli.Config{Pipe: true}, "  \n\n", completerFunc(upper), &out)

	_, err := a.Execute(context.Background(), "shout")
	assert.ErrorIs(t, err, source.ErrEmpty)
	assert.Equal(t, "  \n\n", out.String())
}

func TestExecuteRecoversPanic(t *testing.T) {
	boom := completerFunc(func(context.Context, string, string) (string, error) {
		panic("boom")
	})
	a := newApp(t, &cli.Config{Pipe: true}, "x", boom, io.Discard)

	_, err := a.Execute(context.Background(), "shout")
	var detailed *DetailedError
	require.True(t, errors.As(err, &detailed))
	assert.Contains(t, detailed.Error(), "internal panic: boom")
	assert.NotEmpty(t, detailed.Stack)
}

func TestExecuteReportsProgress(t *testing.T) {
	a := newApp(t, &cli.Config{Pipe: true}, "x", completerFunc(upper), io.Discard)
	var calls [][2]int
	a.SetProgressCallback(func(current, total int) {
		calls = append(calls, [2]int{current, total})
	})

	_, err := a.Execute(context.Background(), "shout")
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 1}, {1, 1}}, calls)
}

func TestModelFlagOverridesEnv(t *testing.T) {
	isolate(t)
	t.Setenv("ANTHROPIC_MODEL", "from-env")
	a, err := New(&cli.Config{Model: "from-flag"}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	assert.Equal(t, "from-flag", a.Model())

	a, err = New(&cli.Config{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	assert.Equal(t, "from-env", a.Model())
}

func TestNewLogger(t *testing.T) {
	logger, cleanup, err := NewLogger(&cli.Config{}, true)
	require.NoError(t, err)
	cleanup()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))

	path := filepath.Join(t.TempDir(), "llmr.log")
	logger, cleanup, err = NewLogger(&cli.Config{Verbose: true, LogFile: path}, true)
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello k=v")
}
