package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sokinpui/llmr/cli"
	"github.com/sokinpui/llmr/internal/buffer"
	"github.com/sokinpui/llmr/internal/completion"
	"github.com/sokinpui/llmr/internal/config"
	"github.com/sokinpui/llmr/internal/editor"
	"github.com/sokinpui/llmr/internal/fs"
	"github.com/sokinpui/llmr/internal/history"
	"github.com/sokinpui/llmr/internal/nvim"
	"github.com/sokinpui/llmr/internal/parser"
	"github.com/sokinpui/llmr/internal/replace"
	"github.com/sokinpui/llmr/internal/source"
	"github.com/sokinpui/llmr/internal/ui"
	"github.com/sokinpui/llmr/model"
)

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// App orchestrates the entire application logic.
type App struct {
	flags            *cli.Config
	cfg              *config.Config
	completer        replace.Completer
	model            string
	history          *history.Store
	sourceProvider   *source.SourceProvider
	pathResolver     *fs.PathResolver
	stdout           io.Writer
	log              *slog.Logger
	progressCallback ProgressUpdate
}

// Option customizes an App.
type Option func(*App)

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithSourceProvider replaces the stdin/clipboard provider used in pipe mode.
func WithSourceProvider(sp *source.SourceProvider) Option {
	return func(a *App) { a.sourceProvider = sp }
}

// WithStdout sets where pipe mode prints its result.
func WithStdout(w io.Writer) Option {
	return func(a *App) { a.stdout = w }
}

// WithCompleter bypasses the Anthropic client.
func WithCompleter(c replace.Completer) Option {
	return func(a *App) { a.completer = c }
}

// New creates a new App instance. It loads .env and config.toml and builds
// the completion client and history store.
func New(flags *cli.Config, opts ...Option) (*App, error) {
	a := &App{flags: flags, stdout: os.Stdout, log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	if err := config.LoadEnv(); err != nil {
		a.log.Warn("failed to load .env", "error", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	for _, w := range config.Validate(cfg) {
		a.log.Warn(w)
	}
	a.cfg = cfg

	modelName := flags.Model
	if modelName == "" {
		modelName = config.ResolveModel(cfg)
	}
	if a.completer == nil {
		client := completion.New(completion.Config{
			APIKey:      config.ResolveAPIKey(cfg),
			Model:       modelName,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: &cfg.Temperature,
			Timeout:     max(cfg.Timeout, 0),
			Logger:      a.log,
		})
		a.completer = client
		modelName = client.Model()
	}
	a.model = modelName

	historyPath := cfg.HistoryFile
	if historyPath == "" {
		historyPath = history.DefaultPath()
	}
	if store, err := history.Open(historyPath, cfg.HistoryLimit); err != nil {
		a.log.Warn("prompt history unavailable", "path", historyPath, "error", err)
	} else {
		a.log.Debug("prompt history", "path", store.Path())
		a.history = store
	}

	if a.sourceProvider == nil {
		a.sourceProvider = source.New()
	}
	a.pathResolver = fs.NewPathResolver(nil)
	return a, nil
}

// ClearHistory forgets every instruction recorded in register.
func (a *App) ClearHistory(register string) error {
	if a.history == nil {
		return errors.New("prompt history is unavailable")
	}
	if err := a.history.Clear(register); err != nil {
		return fmt.Errorf("failed to clear history register %q: %w", register, err)
	}
	return nil
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// Model returns the model name sent with every request.
func (a *App) Model() string { return a.model }

// Execute runs one non-interactive replace with instruction.
func (a *App) Execute(ctx context.Context, instruction string) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	s, err := a.Start(ctx)
	if err != nil {
		return model.Summary{}, err
	}
	defer s.Close()
	return s.Handle(ctx, instruction, replace.EventValidate)
}

// Session is one open prompt bound to a host.
type Session struct {
	app      *App
	workflow *replace.Workflow
	host     *statusRecorder
	history  []string
	target   string
	finish   func(ok bool) error
	close    func()

	settleOnce sync.Once
	closeOnce  sync.Once
}

// Start connects the host and opens the prompt.
func (a *App) Start(ctx context.Context) (*Session, error) {
	var (
		s   *Session
		err error
	)
	if a.flags.Pipe {
		s, err = a.startPipe()
	} else {
		s, err = a.startNvim()
	}
	if err != nil {
		return nil, err
	}

	var hist replace.History
	if a.history != nil {
		hist = a.history
	}
	concurrency := a.cfg.Concurrency
	if a.flags.Jobs > 0 {
		concurrency = a.flags.Jobs
	}
	var progress func(done, total int)
	if a.progressCallback != nil {
		progress = func(done, total int) { a.progressCallback(done, total) }
	}
	s.workflow = replace.New(s.host, a.completer, replace.Options{
		Concurrency: concurrency,
		History:     hist,
		Progress:    progress,
		Logger:      a.log,
	})

	entries, err := s.workflow.Open(a.flags.Register)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.history = entries
	return s, nil
}

func (a *App) startPipe() (*Session, error) {
	dest := source.Destination{Path: a.flags.File, Clipboard: a.flags.Clipboard, Stdout: a.stdout}
	content, err := a.sourceProvider.GetContent(a.flags.File)
	if errors.Is(err, source.ErrEmpty) && content != nil && dest.Name() == "stdout" {
		// Blank filter input goes back out unchanged.
		if werr := a.sourceProvider.Write(dest, content.Text); werr != nil {
			a.log.Warn("failed to write unchanged input", "error", werr)
		}
	}
	if err != nil {
		return nil, err
	}
	text := content.Text

	sel := editor.Selection{{From: 0, To: len(text)}}
	if a.flags.Blocks {
		blocks, err := parser.ExtractCodeBlocks([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("failed to parse code blocks: %w", err)
		}
		for _, b := range blocks {
			a.log.Debug("code block", "lang", b.Lang, "hint", b.Hint,
				"from", b.Body.From, "to", b.Body.To, "rewritable", b.Rewritable())
		}
		sel = parser.Selection(blocks)
		if len(sel) == 0 {
			ui.Warning("No fenced code blocks found. Nothing to rewrite.")
			sel = editor.Selection{editor.Point(0)}
		}
	}

	doc := buffer.NewDocument(text)
	view := buffer.NewView(0)
	if err := doc.SetSelection(view, sel); err != nil {
		return nil, err
	}
	host := buffer.New(doc, view, buffer.WithStatusHandler(func(st buffer.Status) {
		a.log.Debug("status", "message", st.Message, "error", st.Error)
	}))

	return &Session{
		app:    a,
		host:   &statusRecorder{Editor: host},
		target: dest.Name(),
		finish: func(ok bool) error {
			// A failed or cancelled filter run still echoes its input so
			// `:'<,'>!llmr` does not wipe the selection.
			if !ok && (dest.Path != "" || dest.Clipboard) {
				return nil
			}
			return a.sourceProvider.Write(dest, doc.Text())
		},
		close: func() {},
	}, nil
}

func (a *App) startNvim() (*Session, error) {
	file := a.flags.File
	host, err := nvim.Connect(nvim.Options{
		Server:      a.flags.Server,
		Headless:    file != "",
		WholeBuffer: file != "",
		Logger:      a.log,
	})
	if err != nil {
		return nil, err
	}

	target := "neovim"
	if file != "" {
		path := a.pathResolver.ResolveExisting(file)
		if path == "" {
			host.Close()
			return nil, fmt.Errorf("file not found: %s", file)
		}
		if err := host.Edit(path); err != nil {
			host.Close()
			return nil, err
		}
		target = file
	}

	return &Session{
		app:    a,
		host:   &statusRecorder{Editor: host},
		target: target,
		finish: func(ok bool) error {
			if !ok || file == "" {
				return nil
			}
			return host.SaveAll()
		},
		close: host.Close,
	}, nil
}

// History returns the register's earlier instructions, oldest first.
func (s *Session) History() []string { return s.history }

// Handle forwards a prompt event. A validation runs the replace, then
// writes or saves the result.
func (s *Session) Handle(ctx context.Context, input string, ev replace.Event) (summary model.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	if ev != replace.EventValidate {
		_, err := s.workflow.Handle(ctx, input, ev)
		if err == nil && ev == replace.EventAbort {
			if ferr := s.settle(false); ferr != nil {
				s.app.log.Warn("failed to write unchanged input", "error", ferr)
			}
		}
		return model.Summary{}, err
	}

	start := time.Now()
	res, err := s.workflow.Handle(ctx, input, ev)
	if errors.Is(err, replace.ErrBusy) || errors.Is(err, replace.ErrNotOpen) {
		return model.Summary{}, err
	}

	summary = model.Summary{
		Instruction: input,
		Model:       s.app.model,
		Target:      s.target,
		Elapsed:     time.Since(start),
	}
	summary.Message, _ = s.host.Last()

	if err != nil {
		summary.Failed = true
		if ferr := s.settle(false); ferr != nil {
			s.app.log.Warn("failed to write unchanged input", "error", ferr)
		}
		return summary, err
	}

	summary.Replaced = res.Replaced
	summary.Skipped = res.Skipped
	if err := s.settle(true); err != nil {
		summary.Failed = true
		summary.Message = err.Error()
		return summary, err
	}
	return summary, nil
}

// settle writes or saves the outcome once. Later calls are ignored, so a
// validation finishing after Close writes nothing more.
func (s *Session) settle(ok bool) (err error) {
	s.settleOnce.Do(func() { err = s.finish(ok) })
	return err
}

// Close releases the host. A session closed before any validation settles
// as failed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.settle(false); err != nil {
			s.app.log.Warn("failed to write unchanged input", "error", err)
		}
		s.close()
	})
}

// statusRecorder remembers the last status message a host was given.
type statusRecorder struct {
	editor.Editor

	mu      sync.Mutex
	message string
	isError bool
}

func (r *statusRecorder) SetStatus(msg string) {
	r.record(msg, false)
	r.Editor.SetStatus(msg)
}

func (r *statusRecorder) SetError(msg string) {
	r.record(msg, true)
	r.Editor.SetError(msg)
}

func (r *statusRecorder) record(msg string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.message, r.isError = msg, isError
}

// Last returns the most recent message and whether it was an error.
func (r *statusRecorder) Last() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message, r.isError
}
