// Package rewrite rewrites text with a language model following a
// natural-language instruction. It runs the same replace workflow as the
// llmr command on an in-memory buffer.
package rewrite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sokinpui/llmr/internal/buffer"
	"github.com/sokinpui/llmr/internal/completion"
	"github.com/sokinpui/llmr/internal/config"
	"github.com/sokinpui/llmr/internal/editor"
	"github.com/sokinpui/llmr/internal/parser"
	"github.com/sokinpui/llmr/internal/replace"
)

// Errors returned when a completion fails. Match them with errors.Is.
var (
	ErrMissingCredential = completion.ErrMissingCredential
	ErrNetwork           = completion.ErrNetwork
	ErrAuth              = completion.ErrAuth
	ErrRemote            = completion.ErrRemote
	ErrMalformedResponse = completion.ErrMalformedResponse
)

// Completer rewrites one fragment. Set Config.Completer to use something
// other than the Anthropic API.
type Completer interface {
	Complete(ctx context.Context, instruction, fragment string) (string, error)
}

// Config for using llmr as a library. Empty fields fall back to the
// environment and config.toml, as for the command.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// Blocks rewrites every fenced code block body instead of the whole text.
	Blocks bool
	// Concurrency is the number of blocks rewritten at once.
	Concurrency int
	Completer   Completer
	Logger      *slog.Logger
}

// Rewrite returns content rewritten according to instruction. On failure
// the error is returned and nothing is rewritten.
func Rewrite(ctx context.Context, instruction, content string, cfg Config) (string, error) {
	completer, err := cfg.completer()
	if err != nil {
		return "", err
	}

	sel := editor.Selection{{From: 0, To: len(content)}}
	if cfg.Blocks {
		sel, err = parser.CodeBlockSelection([]byte(content))
		if err != nil {
			return "", fmt.Errorf("failed to parse code blocks: %w", err)
		}
		if len(sel) == 0 {
			return content, nil
		}
	}

	doc := buffer.NewDocument(content)
	view := buffer.NewView(0)
	if err := doc.SetSelection(view, sel); err != nil {
		return "", err
	}
	host := buffer.New(doc, view)

	w := replace.New(host, completer, replace.Options{
		Concurrency: cfg.Concurrency,
		Logger:      cfg.Logger,
	})
	if _, err := w.Open(""); err != nil {
		return "", err
	}
	if _, err := w.Handle(ctx, instruction, replace.EventValidate); err != nil {
		return "", err
	}
	return doc.Text(), nil
}

func (cfg Config) completer() (Completer, error) {
	if cfg.Completer != nil {
		return cfg.Completer, nil
	}
	fileCfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = config.ResolveAPIKey(fileCfg)
	}
	if cfg.Model == "" {
		cfg.Model = config.ResolveModel(fileCfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fileCfg.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = max(fileCfg.Timeout, 0)
	}
	return completion.New(completion.Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   fileCfg.MaxTokens,
		Temperature: &fileCfg.Temperature,
		Timeout:     cfg.Timeout,
		Logger:      cfg.Logger,
	}), nil
}
