// Package nvim implements the editor host on top of a Neovim instance
// reached over msgpack-RPC.
package nvim

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"

	"github.com/sokinpui/llmr/internal/editor"
)

const (
	undoDir = "~/.local/state/nvim/undo/"

	// visualCharwise, visualLinewise and visualBlockwise are the values
	// returned by visualmode().
	visualCharwise  = "v"
	visualLinewise  = "V"
	visualBlockwise = "\x16"
)

// ErrNoServer is returned by Connect when no address is known and starting
// a headless instance was not allowed.
var ErrNoServer = errors.New("no neovim server: pass --server or run inside neovim")

// Options configures how the host reaches Neovim.
type Options struct {
	// Server is an explicit listen address. It takes precedence over $NVIM
	// and $NVIM_LISTEN_ADDRESS.
	Server string
	// Headless allows starting a private `nvim --headless` when no server
	// is reachable.
	Headless bool
	// WholeBuffer makes the selection the entire current buffer instead of
	// the last visual selection.
	WholeBuffer bool
	Logger      *slog.Logger
}

// Host is an editor.Editor backed by Neovim.
type Host struct {
	nvim          *nvim.Nvim
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
	wholeBuffer   bool
	log           *slog.Logger
}

// ServerAddress returns the address to dial: explicit first, then $NVIM,
// then $NVIM_LISTEN_ADDRESS.
func ServerAddress(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if addr := os.Getenv("NVIM"); addr != "" {
		return addr
	}
	return os.Getenv("NVIM_LISTEN_ADDRESS")
}

// Connect dials a running Neovim, or starts a temporary headless one when
// opts.Headless is set.
func Connect(opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if addr := ServerAddress(opts.Server); addr != "" {
		v, err := nvim.Dial(addr)
		if err == nil {
			logger.Debug("connected to neovim", "address", addr)
			return &Host{nvim: v, wholeBuffer: opts.WholeBuffer, log: logger}, nil
		}
		if !opts.Headless {
			return nil, fmt.Errorf("failed to connect to neovim at %s: %w", addr, err)
		}
		logger.Warn("failed to connect to neovim, starting headless instance", "address", addr, "error", err)
	}
	if !opts.Headless {
		return nil, ErrNoServer
	}

	tmpDir, err := os.MkdirTemp("", "llmr-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	// Wait for the socket file to appear.
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}

	h := &Host{
		nvim:          v,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
		wholeBuffer:   opts.WholeBuffer,
		log:           logger,
	}
	h.configureTempInstance()
	return h, nil
}

// configureTempInstance enables a persistent undofile so a rewrite made
// headlessly can still be undone from a later editing session.
func (h *Host) configureTempInstance() {
	home, _ := os.UserHomeDir()
	expandedUndoDir := strings.Replace(undoDir, "~", home, 1)
	if err := os.MkdirAll(expandedUndoDir, 0o755); err != nil {
		h.log.Warn("failed to create undo dir", "dir", expandedUndoDir, "error", err)
	}

	b := h.nvim.NewBatch()
	b.Command("set undofile")
	b.Command(fmt.Sprintf("set undodir=%s", expandedUndoDir))
	b.Command("set noswapfile")
	if err := b.Execute(); err != nil {
		h.log.Warn("failed to configure headless nvim", "error", err)
	}
}

// Close disconnects from Neovim and cleans up if it was self-started.
func (h *Host) Close() {
	if h.nvim != nil {
		h.nvim.Close()
	}
	if h.isSelfStarted && h.cmd != nil && h.cmd.Process != nil {
		if err := h.cmd.Process.Kill(); err == nil {
			h.cmd.Wait()
			os.RemoveAll(filepath.Dir(h.socketPath))
		}
	}
}

// Edit opens path in the current window.
func (h *Host) Edit(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := h.nvim.Command("edit " + escapePath(absPath)); err != nil {
		return fmt.Errorf("failed to open %s in nvim: %w", path, err)
	}
	return nil
}

// SaveAll writes all modified buffers to disk.
func (h *Host) SaveAll() error {
	if err := h.nvim.Command("wa!"); err != nil {
		return fmt.Errorf("failed to write buffers: %w", err)
	}
	return nil
}

// ScrollOff returns the effective 'scrolloff' of the current window.
func (h *Host) ScrollOff() int {
	var n int
	if err := h.nvim.Eval("&scrolloff", &n); err != nil {
		h.log.Debug("failed to read scrolloff", "error", err)
		return 0
	}
	return n
}

// Current snapshots the current buffer, its line ending and the selection
// in the current window.
func (h *Host) Current() (editor.View, editor.Document, error) {
	buf, err := h.nvim.CurrentBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get current buffer: %w", err)
	}
	win, err := h.nvim.CurrentWindow()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get current window: %w", err)
	}
	raw, err := h.nvim.BufferLines(buf, 0, -1, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read buffer lines: %w", err)
	}
	var fileformat string
	if err := h.nvim.Eval("&fileformat", &fileformat); err != nil {
		return nil, nil, fmt.Errorf("failed to read fileformat: %w", err)
	}

	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(l)
	}
	le := lineEndingFor(fileformat)
	h.log.Debug("buffer snapshot", "lines", len(lines), "line_ending", le.Name())
	doc := newDocument(h, buf, lines, le)
	var tabstop int
	if err := h.nvim.Eval("&tabstop", &tabstop); err != nil {
		h.log.Debug("failed to read tabstop", "error", err)
	} else {
		doc.index.tabstop = tabstop
	}

	view := &View{host: h, win: win}
	sel, err := h.selection(buf, win, doc.index)
	if err != nil {
		return nil, nil, err
	}
	doc.sel = sel
	return view, doc, nil
}

func (h *Host) selection(buf nvim.Buffer, win nvim.Window, ix *lineIndex) (editor.Selection, error) {
	if h.wholeBuffer {
		return editor.Selection{{From: 0, To: ix.Len()}}, nil
	}

	var mode string
	if err := h.nvim.Call("visualmode", &mode); err != nil {
		return nil, fmt.Errorf("failed to read visual mode: %w", err)
	}
	start, err := h.nvim.BufferMark(buf, "<")
	if err != nil {
		return nil, fmt.Errorf("failed to read '< mark: %w", err)
	}
	end, err := h.nvim.BufferMark(buf, ">")
	if err != nil {
		return nil, fmt.Errorf("failed to read '> mark: %w", err)
	}
	if mode == "" || start[0] == 0 || end[0] == 0 {
		cursor, err := h.nvim.WindowCursor(win)
		if err != nil {
			return nil, fmt.Errorf("failed to read cursor: %w", err)
		}
		return editor.Selection{editor.Point(ix.Offset(markPosition(cursor)))}, nil
	}
	return visualSelection(mode, ix, markPosition(start), markPosition(end)), nil
}

// SetStatus echoes msg on the message line and keeps it in :messages.
func (h *Host) SetStatus(msg string) { h.echo(msg, "") }

// SetError echoes msg highlighted as an error.
func (h *Host) SetError(msg string) { h.echo(msg, "ErrorMsg") }

func (h *Host) echo(msg, hl string) {
	chunk := []string{msg}
	if hl != "" {
		chunk = append(chunk, hl)
	}
	if err := h.nvim.Request("nvim_echo", nil, [][]string{chunk}, true, map[string]interface{}{}); err != nil {
		h.log.Warn("failed to echo status", "message", msg, "error", err)
	}
}

func lineEndingFor(fileformat string) editor.LineEnding {
	switch fileformat {
	case "dos":
		return editor.CRLF
	case "mac":
		return editor.CR
	default:
		return editor.LF
	}
}

func escapePath(path string) string {
	return strings.NewReplacer(" ", `\ `, "%", `\%`, "#", `\#`, "|", `\|`).Replace(path)
}
