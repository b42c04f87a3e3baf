package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sokinpui/llmr/cli"
	"github.com/sokinpui/llmr/internal/app"
	"github.com/sokinpui/llmr/internal/config"
	"github.com/sokinpui/llmr/internal/tui"
	"github.com/sokinpui/llmr/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.ParseFlags()
	if err != nil {
		// pflag already prints the error message.
		return 2
	}
	if cfg.Version {
		fmt.Println("llmr", version)
		return 0
	}
	if cfg.DefaultConfig {
		fmt.Print(config.DefaultTOML())
		return 0
	}

	logger, closeLog, err := app.NewLogger(cfg, cfg.Interactive())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()

	application, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}

	if cfg.ClearHistory {
		if err := application.ClearHistory(cfg.Register); err != nil {
			ui.Error("Error: %v", err)
			return 1
		}
		ui.Success("Cleared history register %q.", cfg.Register)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Interactive() {
		return execute(ctx, application, cfg)
	}
	return interactive(ctx, application, cfg)
}

func execute(ctx context.Context, application *app.App, cfg *cli.Config) int {
	if !cfg.NoAnimation {
		bar := ui.NewProgressBar(0, "Rewriting")
		application.SetProgressCallback(func(current, total int) {
			if total > 1 {
				bar.Set(current, total)
				if current == total {
					bar.Finish()
				}
			}
		})
	}

	summary, err := application.Execute(ctx, cfg.Prompt)
	ui.PrintReplaceSummary(summary)
	if err != nil {
		var detailed *app.DetailedError
		if errors.As(err, &detailed) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		if summary.Message == "" {
			ui.Error("Error: %v", err)
		}
		return 1
	}
	return 0
}

func interactive(ctx context.Context, application *app.App, cfg *cli.Config) int {
	var p *tea.Program
	if !cfg.NoAnimation {
		// Progress only arrives while p.Run is waiting on a validation.
		application.SetProgressCallback(func(current, total int) {
			p.Send(tui.ProgressMsg{Current: current, Total: total})
		})
	}

	session, err := application.Start(ctx)
	if err != nil {
		ui.Error("Error: %v", err)
		return 1
	}
	defer session.Close()

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.Pipe {
		// stdin and stdout carry the text being rewritten.
		opts = append(opts, tea.WithInputTTY(), tea.WithOutput(os.Stderr))
	}
	model := tui.New(ctx, session, tui.Options{Model: application.Model(), NoAnimation: cfg.NoAnimation})
	p = tea.NewProgram(model, opts...)

	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		return 1
	}
	if _, _, err := final.(tui.Model).Result(); err != nil {
		return 1
	}
	return 0
}
