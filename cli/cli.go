package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Config holds all the command-line flag values.
type Config struct {
	Prompt      string
	Register    string
	Server      string
	Pipe        bool
	Blocks      bool
	File        string
	Clipboard   bool
	Model       string
	Jobs        int
	Verbose     bool
	LogFile     string
	NoAnimation bool
	Version     bool

	ClearHistory  bool
	DefaultConfig bool
}

// Interactive reports whether the instruction will be typed into the prompt.
func (c *Config) Interactive() bool {
	return strings.TrimSpace(c.Prompt) == ""
}

// ParseFlags parses the process arguments. pflag prints usage and the
// error on failure.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:])
}

// Parse defines and parses command-line flags using pflag.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := pflag.NewFlagSet("llmr", pflag.ContinueOnError)

	fs.StringVarP(&cfg.Prompt, "prompt", "p", "", "Instruction to apply. Without it an interactive prompt is shown.")
	fs.StringVarP(&cfg.Register, "register", "R", "", "History register the instruction is recorded in and recalled from.")
	fs.StringVar(&cfg.Server, "server", "", "Neovim listen address (default: $NVIM, then $NVIM_LISTEN_ADDRESS).")
	fs.BoolVar(&cfg.Pipe, "pipe", false, "Rewrite text read from --file, stdin or the clipboard instead of a Neovim selection.")
	fs.BoolVar(&cfg.Blocks, "blocks", false, "With --pipe, rewrite each fenced code block body instead of the whole text.")
	fs.StringVarP(&cfg.File, "file", "f", "", "File to rewrite. Without --pipe it is opened in Neovim and saved afterwards.")
	fs.BoolVar(&cfg.Clipboard, "clipboard", false, "With --pipe, write the result to the clipboard instead of stdout.")
	fs.StringVarP(&cfg.Model, "model", "m", "", "Model name (overrides $ANTHROPIC_MODEL and config.toml).")
	fs.IntVarP(&cfg.Jobs, "jobs", "j", 0, "Number of selections rewritten concurrently (default: concurrency in config.toml).")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging.")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Write logs to this file instead of stderr.")
	fs.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable loading spinner and progress updates.")
	fs.BoolVar(&cfg.Version, "version", false, "Print version and exit.")
	fs.BoolVar(&cfg.ClearHistory, "clear-history", false, "Forget the instructions recorded in --register and exit.")
	fs.BoolVar(&cfg.DefaultConfig, "default-config", false, "Print the default config.toml and exit.")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: llmr [flags]")
		fmt.Fprintln(os.Stderr, "\nRewrite the selected text with a language model, following a natural-language instruction.")
		fmt.Fprintln(os.Stderr, "\nExamples:")
		fmt.Fprintln(os.Stderr, "  llmr --server $NVIM                       # prompt, then rewrite the visual selection")
		fmt.Fprintln(os.Stderr, "  git diff | llmr --pipe -p \"summarize\"     # rewrite stdin to stdout")
		fmt.Fprintln(os.Stderr, "  llmr --pipe --blocks -f README.md -p \"use tabs\"")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.Pipe {
		if c.Blocks {
			return errors.New("error: --blocks requires --pipe")
		}
		if c.Clipboard {
			return errors.New("error: --clipboard requires --pipe")
		}
	}
	if c.ClearHistory && c.Register == "" {
		return errors.New("error: --clear-history requires --register")
	}
	if c.Jobs < 0 {
		return fmt.Errorf("error: --jobs must not be negative, got %d", c.Jobs)
	}
	return nil
}
