package reconcile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentx-labs/unitcore/internal/platform"
)

// Store reads and writes the record files of one status folder.
type Store struct {
	dir    string
	tokens *tokenSet
	logger *slog.Logger
}

// NewStore returns a store over dir, creating it if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, platform.DirPerm); err != nil {
		return nil, fmt.Errorf("creating status folder %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{dir: dir, tokens: newTokenSet(), logger: logger}, nil
}

// Dir returns the status folder.
func (s *Store) Dir() string { return s.dir }

// Path returns the record file path for a unit id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, FileName(id))
}

// IsRecordPath reports whether path names a record file in the folder,
// as opposed to a temporary or unrelated file.
func (s *Store) IsRecordPath(path string) bool {
	base := filepath.Base(path)
	return filepath.Dir(path) == filepath.Clean(s.dir) &&
		!strings.HasPrefix(base, ".") && filepath.Ext(base) == ".yaml"
}

// List returns the record file paths in lexical order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing status folder %s: %w", s.dir, err)
	}
	var out []string
	for _, e := range entries {
		p := filepath.Join(s.dir, e.Name())
		if !e.IsDir() && s.IsRecordPath(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Read parses the record at path. Failures are *RecordError; a missing file
// wraps fs.ErrNotExist.
func (s *Store) Read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &RecordError{Path: path, Err: err}
	}
	rec, err := ParseRecord(data)
	if err != nil {
		return nil, &RecordError{Path: path, Err: err}
	}
	return rec, nil
}

// Write replaces the record file of rec.Name atomically.
func (s *Store) Write(rec *Record) error {
	data, err := rec.Marshal()
	if err != nil {
		return err
	}
	path := s.Path(rec.Name)

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := platform.Chmod(tmp.Name(), platform.FilePerm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	// Register before the rename so the notification finds the token.
	id := s.tokens.wrote(path, data)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	s.logger.Debug("status record written", "unit", rec.Name, "token", id)
	return nil
}

// Delete removes the record file of a unit. A missing file is not an error.
func (s *Store) Delete(id string) error {
	path := s.Path(id)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	tok := s.tokens.deleted(path)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	s.logger.Debug("status record deleted", "unit", id, "token", tok)
	return nil
}

// Own reports whether the current state of path is the result of this
// store's latest write or delete.
func (s *Store) Own(path string) bool {
	data, err := os.ReadFile(path)
	exists := true
	switch {
	case errors.Is(err, fs.ErrNotExist):
		exists = false
	case err != nil:
		return false
	}
	_, ok := s.tokens.match(path, data, exists)
	return ok
}
