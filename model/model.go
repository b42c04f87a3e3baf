package model

import "time"

// Summary holds the results of a replace run for display.
type Summary struct {
	Instruction string
	Model       string
	// Target names where the rewritten text went: a buffer, a file path,
	// "stdout" or "clipboard".
	Target   string
	Replaced int
	Skipped  int
	Elapsed  time.Duration
	// Message is the status line text reported by the host.
	Message string
	Failed  bool
}

// Empty reports whether the run left the text untouched.
func (s Summary) Empty() bool {
	return s.Replaced == 0
}
