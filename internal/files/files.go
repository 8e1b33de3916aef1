// Package files implements the per-entity upload directory, filename
// sanitization, atomic write, and diff-based deletion for file fields.
package files

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode"

	"github.com/allankoechke/mantis/internal/mlog"
)

// Store manages uploaded files under <dataDir>/files/<entity>/<file>.
type Store struct {
	DataDir string
	log     mlog.Logger
}

// NewStore builds a Store rooted at dataDir.
func NewStore(dataDir string, log mlog.Logger) *Store {
	return &Store{DataDir: dataDir, log: log}
}

// EntityDir returns the upload directory for entity, creating it if
// absent.
func (s *Store) EntityDir(entity string) (string, error) {
	dir := filepath.Join(s.DataDir, "files", entity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// SanitizeFilename replaces every whitespace rune (spaces, tabs, newlines)
// with an underscore and strips commas entirely.
func SanitizeFilename(name string) string {
	rr := make([]rune, 0, len(name))

	for _, r := range name {
		switch {
		case r == ',':
			continue
		case unicode.IsSpace(r):
			rr = append(rr, '_')
		default:
			rr = append(rr, r)
		}
	}

	return string(rr)
}

// Fingerprint computes a content-hash fingerprint from the part's
// identifying metadata.
func Fingerprint(fieldName, filename, contentType string, length int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", fieldName, filename, contentType, length)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Write atomically persists content under <entityDir>/<sanitized filename>:
// it writes to a temp file in the same directory then renames it into
// place, so a crash mid-write never leaves a partial file visible under
// the final name.
func (s *Store) Write(entity, filename string, content io.Reader) (string, error) {
	dir, err := s.EntityDir(entity)
	if err != nil {
		return "", err
	}

	sanitized := SanitizeFilename(filename)
	finalPath := filepath.Join(dir, sanitized)

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	return sanitized, nil
}

// Remove deletes <entityDir>/<filename>, ignoring a not-exist error (files
// may have already been removed, or never existed) and logging any other
// failure at WARN rather than returning it.
func (s *Store) Remove(entity, filename string) {
	if filename == "" {
		return
	}

	path := filepath.Join(s.DataDir, "files", entity, filename)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warnf("failed to remove file %s for entity %s: %v", filename, entity, err)
	}
}

// RemoveAll removes every successfully-written file in names, used to roll
// back partial writes when a create/update fails after some files were
// already persisted.
func (s *Store) RemoveAll(entity string, names []string) {
	for _, n := range names {
		s.Remove(entity, n)
	}
}

// Diff computes which filenames in oldValue are absent from newValue, i.e.
// the files that should be scheduled for deletion after commit. A
// nil/empty newValue means "delete all".
func Diff(oldValue, newValue []string) []string {
	if len(newValue) == 0 {
		return oldValue
	}

	keep := make(map[string]bool, len(newValue))
	for _, n := range newValue {
		keep[n] = true
	}

	var toDelete []string
	for _, n := range oldValue {
		if !keep[n] {
			toDelete = append(toDelete, n)
		}
	}

	return toDelete
}
