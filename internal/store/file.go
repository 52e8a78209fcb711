package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// fileDocument is the stable on-disk shape of the durable approval file.
// Existing files must keep loading across versions, so fields are only ever
// added here, never renamed.
type fileDocument struct {
	UpdatedAt time.Time `json:"updated_at"`
	Approvals []string  `json:"approvals"`
}

// FileBackend persists the persistent-scoped approval patterns to a single
// JSON file. The read-modify-write cycle is not protected by file locking:
// two processes writing the same path race, and the last writer wins.
type FileBackend struct {
	path string
}

// NewFileBackend creates a backend over the given path. The file does not
// need to exist yet.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the backing file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Load reads the approval file. A missing file yields no records and no
// error; any other read or parse failure is reported to the caller.
func (b *FileBackend) Load() ([]string, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading approval file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing approval file %s: %w", b.path, err)
	}
	return doc.Approvals, nil
}

// Save rewrites the approval file with the given patterns.
func (b *FileBackend) Save(patterns []string) error {
	if patterns == nil {
		patterns = []string{}
	}
	doc := fileDocument{
		UpdatedAt: time.Now().UTC(),
		Approvals: patterns,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding approval file: %w", err)
	}

	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating approval dir: %w", err)
		}
	}
	if err := os.WriteFile(b.path, data, 0o600); err != nil {
		return fmt.Errorf("writing approval file: %w", err)
	}
	return nil
}

// NewFile creates a store whose persistent-scoped approvals are durable in a
// JSON file at path. A corrupt or unreadable file degrades to an empty store.
func NewFile(path string) *Store {
	return NewWithBackend(NewFileBackend(path))
}
