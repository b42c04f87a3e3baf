package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sokinpui/llmr/cli"
)

// NewLogger builds the process logger: warnings and errors by default,
// everything with --verbose. The interactive prompt owns the terminal, so
// without --log-file its logs are dropped.
func NewLogger(flags *cli.Config, interactive bool) (*slog.Logger, func(), error) {
	level := slog.LevelWarn
	if flags.Verbose {
		level = slog.LevelDebug
	}

	var (
		w       io.Writer = os.Stderr
		cleanup           = func() {}
	)
	switch {
	case flags.LogFile != "":
		f, err := os.OpenFile(flags.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		cleanup = func() { f.Close() }
	case interactive:
		w = io.Discard
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), cleanup, nil
}
