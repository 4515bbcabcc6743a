package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kingrea/stepwise/internal/config"
)

// FileName is the diagnostics log inside .stepwise/logs.
const FileName = "stepwise.log"

// File appends diagnostics to .stepwise/logs/stepwise.log so failures can be
// inspected after the terminal output is gone.
type File struct {
	file *os.File
}

// OpenFile creates (or reuses) the log file for the given project directory.
func OpenFile(projectDir string) (*File, error) {
	logDir := filepath.Join(projectDir, config.Dir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &File{file: f}, nil
}

// Path returns the log file location.
func (l *File) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Write appends p to the log file.
func (l *File) Write(p []byte) (int, error) {
	if l == nil || l.file == nil {
		return len(p), nil
	}
	return l.file.Write(p)
}

// Close releases the file handle.
func (l *File) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
