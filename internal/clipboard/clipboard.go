package clipboard

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-vgo/robotgo"
)

// ErrEmpty is returned when there is nothing to copy
var ErrEmpty = errors.New("clipboard: nothing to copy")

// Manager copies response text to the system clipboard
type Manager struct {
	mu        sync.Mutex
	maxLength int
	last      string

	write func(string) error
	read  func() (string, error)
}

// Config holds clipboard manager configuration
type Config struct {
	MaxLength int // Maximum characters placed on the clipboard (default: 4000)
}

// DefaultConfig returns the default clipboard configuration
func DefaultConfig() Config {
	return Config{
		MaxLength: 4000,
	}
}

// NewManager creates a new clipboard manager
func NewManager(config Config) *Manager {
	if config.MaxLength <= 0 {
		config.MaxLength = DefaultConfig().MaxLength
	}
	return &Manager{
		maxLength: config.MaxLength,
		write:     robotgo.WriteAll,
		read:      robotgo.ReadAll,
	}
}

// Copy places text on the clipboard, cut at a sentence boundary when it
// exceeds the configured length
func (m *Manager) Copy(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmpty
	}

	chunks := splitText(text, m.maxLength)
	if err := m.write(chunks[0]); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}

	m.mu.Lock()
	m.last = text
	m.mu.Unlock()
	return nil
}

// CopyLast copies the most recent response again
func (m *Manager) CopyLast() error {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()
	return m.Copy(last)
}

// Last returns the most recently copied text, untruncated
func (m *Manager) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Content returns the current clipboard content
func (m *Manager) Content() (string, error) {
	return m.read()
}

// splitText splits text into chunks of at most size characters.
// It prefers to split at sentence boundaries (。、. ,) near the limit.
func splitText(text string, size int) []string {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	start := 0

	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			// Look for sentence boundaries in the last 50 characters
			searchStart := end - 50
			if searchStart < start {
				searchStart = start
			}

			for i := end - 1; i >= searchStart; i-- {
				ch := runes[i]
				if ch == '。' || ch == '、' || ch == '.' || ch == ',' || ch == '\n' {
					end = i + 1
					break
				}
			}
		}

		chunks = append(chunks, string(runes[start:end]))
		start = end
	}

	return chunks
}
