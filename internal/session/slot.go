package session

import (
	"os"
	"path/filepath"
	"strings"
)

// Slot is the durable key/value pair that lets a restarted client resume
// its session. Absence of a stored value is never an error; it resolves to
// the anonymous sentinel upstream.
type Slot interface {
	Read() (value string, ok bool)
	Write(value string) error
	Clear() error
}

// FileSlot stores the token in a single file, the terminal-client analog
// of the browser cookie the backend was designed around.
type FileSlot struct {
	path string
}

// NewFileSlot creates a slot backed by the file at path.
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

// DefaultSlotPath places the token under the user config directory.
func DefaultSlotPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "retrogpt", "session_token"), nil
}

func (s *FileSlot) Read() (string, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", false
	}
	return value, true
}

func (s *FileSlot) Write(value string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(value+"\n"), 0o600)
}

func (s *FileSlot) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
