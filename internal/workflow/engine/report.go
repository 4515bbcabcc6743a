package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteReport stores a run report as indented JSON.
func WriteReport(path string, report Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("workflow engine: ensure report dir: %w", err)
	}
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("workflow engine: encode report: %w", err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("workflow engine: write report: %w", err)
	}
	return nil
}
