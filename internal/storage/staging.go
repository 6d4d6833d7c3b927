package storage

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid"
)

// A Staging is a local directory holding files that are not yet visible in a Backend:
// received chunks before their promotion and assembled files during a merge.
type Staging struct {
	dir string
}

// NewStaging returns a new Staging using dir.
func NewStaging(dir string) *Staging {
	return &Staging{
		dir: dir,
	}
}

// Path returns the local path of the staged file name.
func (s *Staging) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Name returns a new unique staging file name.
func (s *Staging) Name() string {
	return uuid.Must(uuid.NewV4()).String()
}

// Write stores the content of r into a new staged file and returns its name.
func (s *Staging) Write(r io.Reader) (string, int64, error) {
	name := s.Name()

	n, err := s.Append(name, r)
	if err != nil {
		s.Remove(name)
		return "", n, err
	}
	return name, n, nil
}

// Append appends the content of r to the staged file name, creating it if absent.
func (s *Staging) Append(name string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return 0, wrap("append", name, err)
	}

	f, err := os.OpenFile(s.Path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, wrap("append", name, err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, wrap("append", name, err)
	}

	if err = f.Sync(); err != nil {
		f.Close()
		return n, wrap("append", name, err)
	}

	return n, wrap("append", name, f.Close())
}

// Remove deletes the staged file name. Removing an absent file is not an error.
func (s *Staging) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return wrap("delete", name, err)
	}
	return nil
}

// Cleanup removes the staged files not modified since olderThan.
// They are leftovers of cancelled requests.
func (s *Staging) Cleanup(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, wrap("cleanup", s.dir, err)
	}

	deadline := time.Now().Add(-olderThan)
	var count int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue // removed concurrently
		}

		if info.ModTime().After(deadline) {
			continue
		}

		if err = s.Remove(entry.Name()); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}
