// pkg/journal/store.go - journal files keyed by package id under the state
// directory of the resolved scope.

package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store locates journals, backups, and session locks for packages.
type Store struct {
	dir string
}

// NewStore roots a store at the scope's state directory.
func NewStore(stateDir string) *Store {
	return &Store{dir: filepath.Join(stateDir, "journals")}
}

// Path returns the journal file path for a package id.
func (s *Store) Path(packageID string) string {
	return filepath.Join(s.dir, sanitizeID(packageID)+".jsonl")
}

// BackupDir returns the directory holding overwritten-file backups for a
// package's install session.
func (s *Store) BackupDir(packageID string) string {
	return filepath.Join(s.dir, sanitizeID(packageID)+".backups")
}

// LockPath returns the session lock file path for a package id.
func (s *Store) LockPath(packageID string) string {
	return filepath.Join(s.dir, sanitizeID(packageID)+".lock")
}

// Create opens a fresh journal writer for the package, replacing any previous
// journal file.
func (s *Store) Create(packageID string, header Header) (*Writer, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	return NewWriter(s.Path(packageID), header)
}

// Load reads the persisted journal for a package id.
func (s *Store) Load(packageID string) (*Journal, error) {
	return Load(s.Path(packageID))
}

// Exists reports whether a journal exists for the package id.
func (s *Store) Exists(packageID string) bool {
	_, err := os.Stat(s.Path(packageID))
	return err == nil
}

// Remove deletes the journal and backup area for a package id, normally after
// a completed uninstall.
func (s *Store) Remove(packageID string) error {
	if err := os.Remove(s.Path(packageID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.RemoveAll(s.BackupDir(packageID)); err != nil {
		return err
	}
	return nil
}

// sanitizeID makes a package id safe to use as a file name.
func sanitizeID(packageID string) string {
	r := strings.NewReplacer(`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return r.Replace(packageID)
}
