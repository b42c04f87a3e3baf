package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/sokinpui/llmr/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
)

var (
	mu  sync.Mutex
	out io.Writer = os.Stderr
)

// SetOutput redirects all messages. Pass io.Discard to silence them.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func printf(c *color.Color, format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	c.Fprintf(out, format+"\n", a...)
}

func Header(format string, a ...interface{}) {
	printf(HeaderColor, format, a...)
}

func Info(format string, a ...interface{}) {
	printf(InfoColor, format, a...)
}

func Success(format string, a ...interface{}) {
	printf(SuccessColor, format, a...)
}

func Warning(format string, a ...interface{}) {
	printf(WarningColor, format, a...)
}

func Error(format string, a ...interface{}) {
	printf(ErrorColor, format, a...)
}

func Path(format string, a ...interface{}) {
	printf(PathColor, "  "+format, a...)
}

// --- Summaries ---

func PrintReplaceSummary(s model.Summary) {
	Header("\n--- Replace Summary ---")
	if s.Failed {
		Error("%s", s.Message)
		return
	}
	if s.Empty() {
		Info("No selection to rewrite.")
		return
	}
	Success("Rewrote %d selection(s) with %s in %s:", s.Replaced, s.Model, s.Elapsed.Round(time.Millisecond))
	Path("- %s", s.Target)
	if s.Skipped > 0 {
		Info("Left %d empty selection(s) untouched.", s.Skipped)
	}
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to current.
func (p *ProgressBar) Set(current, total int) {
	p.current, p.total = current, total
	p.draw()
}

func (p *ProgressBar) Increment() {
	p.current++
	p.draw()
}

func (p *ProgressBar) Finish() {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(out)
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}
