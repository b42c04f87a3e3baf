// Package history persists prompt instructions in named registers so a
// prompt can offer previously used instructions.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

const (
	stateDirName  = "llmr"
	stateFileName = "history.json"

	// DefaultLimit is the number of entries kept per register.
	DefaultLimit = 100
)

// State represents the entire history file.
type State struct {
	Registers map[string][]string `json:"registers"`
}

// Store manages the history file. Each mutation re-reads the file under a
// lock so concurrent sessions merge instead of clobbering each other.
type Store struct {
	path  string
	limit int

	mu    sync.Mutex
	state *State
}

// DefaultPath returns the history file location.
// Resolution order: $XDG_STATE_HOME/llmr > ~/.local/state/llmr
func DefaultPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, stateDirName, stateFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), stateDirName, stateFileName)
	}
	return filepath.Join(home, ".local", "state", stateDirName, stateFileName)
}

// Open creates a store backed by path and loads its contents. A limit of
// zero uses DefaultLimit; a negative limit disables recording.
func Open(path string, limit int) (*Store, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create history directory: %w", err)
	}
	s := &Store{path: path, limit: limit}
	if err := s.withLock(func() error { return s.load() }); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Entries returns the instructions recorded in register, oldest first.
func (s *Store) Entries(register string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.state.Registers[register]
	out := make([]string, len(entries))
	copy(out, entries)
	return out
}

// Push appends entry to register. Empty registers and entries are ignored,
// as is an entry equal to the register's most recent one.
func (s *Store) Push(register, entry string) error {
	if register == "" || entry == "" || s.limit < 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withLock(func() error {
		if err := s.load(); err != nil {
			return err
		}
		entries := s.state.Registers[register]
		if n := len(entries); n > 0 && entries[n-1] == entry {
			return nil
		}
		entries = append(entries, entry)
		if len(entries) > s.limit {
			entries = entries[len(entries)-s.limit:]
		}
		s.state.Registers[register] = entries
		return s.save()
	})
}

// Clear removes every entry in register.
func (s *Store) Clear(register string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withLock(func() error {
		if err := s.load(); err != nil {
			return err
		}
		delete(s.state.Registers, register)
		return s.save()
	})
}

func (s *Store) withLock(fn func() error) error {
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("could not lock history file: %w", err)
	}
	defer lock.Unlock()
	return fn()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.state = &State{Registers: map[string][]string{}}
			return nil
		}
		return err
	}

	var st State
	if len(data) > 0 {
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("invalid history file %s: %w", s.path, err)
		}
	}
	if st.Registers == nil {
		st.Registers = map[string][]string{}
	}
	s.state = &st
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("could not write history file: %w", err)
	}
	return os.Rename(tmp, s.path)
}
