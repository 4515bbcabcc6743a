package results

import (
	"strings"
	"sync"
	"time"
)

// Result captures the outcome of one completed leaf attempt.
type Result struct {
	ID       string        `json:"id,omitempty" yaml:"id,omitempty"`
	Command  string        `json:"command" yaml:"command"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	Stdout   string        `json:"stdout" yaml:"stdout"`
	Stderr   string        `json:"stderr" yaml:"stderr"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Attempt  int           `json:"attempt" yaml:"attempt"`
}

// Succeeded reports whether the attempt exited cleanly.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0
}

// View is the read-only side of the store handed to conditions.
type View interface {
	Result(id string) (Result, bool)
	Stdout(id string) (string, bool)
	Stderr(id string) (string, bool)
	ExitCode(id string) (int, bool)
	Has(id string) bool
}

// Store maps step ids to their most recent result. It tolerates concurrent
// writers; sibling steps inside a group only ever write their own id.
type Store struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewStore returns an empty store for a single run.
func NewStore() *Store {
	return &Store{results: make(map[string]Result)}
}

// Record stores result under id, replacing any earlier entry. Empty ids are
// ignored because anonymous steps are never addressable.
func (s *Store) Record(id string, result Result) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	result.ID = id
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = result
}

// Result returns the full result recorded for id.
func (s *Store) Result(id string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	return result, ok
}

// Stdout returns the trimmed standard output recorded for id.
func (s *Store) Stdout(id string) (string, bool) {
	result, ok := s.Result(id)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(result.Stdout), true
}

// Stderr returns the raw standard error recorded for id.
func (s *Store) Stderr(id string) (string, bool) {
	result, ok := s.Result(id)
	if !ok {
		return "", false
	}
	return result.Stderr, true
}

// ExitCode returns the exit code recorded for id.
func (s *Store) ExitCode(id string) (int, bool) {
	result, ok := s.Result(id)
	if !ok {
		return 0, false
	}
	return result.ExitCode, true
}

// Has reports whether id has a recorded result.
func (s *Store) Has(id string) bool {
	_, ok := s.Result(id)
	return ok
}

// Missing returns the subset of ids without a recorded result, preserving
// the order they were given in.
func (s *Store) Missing(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []string
	for _, id := range ids {
		if _, ok := s.results[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Len returns the number of recorded ids.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Snapshot returns a copy of every recorded result.
func (s *Store) Snapshot() map[string]Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Result, len(s.results))
	for id, result := range s.results {
		out[id] = result
	}
	return out
}
