// Package journal appends finished turns to a plain-text response log.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Entry is one finished turn
type Entry struct {
	Input    string
	Response string
}

// Journal appends entries to a file
type Journal struct {
	mu   sync.Mutex
	path string
}

// New returns a journal writing to path. The file is created on first Append.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the log file path
func (j *Journal) Path() string {
	return j.path
}

// Append writes e as an "Input Transcript / Response Text" block
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	if _, err := fmt.Fprintf(f, "Input Transcript: %s\nResponse Text: %s\n\n", e.Input, e.Response); err != nil {
		f.Close()
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return f.Close()
}
