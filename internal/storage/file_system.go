package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type fs struct {
	workspace string
}

// NewFileSystem returns a new File System backend rooted at workspace.
// Promote relies on rename(2) so staged files must live on the same file system.
func NewFileSystem(workspace string) Backend {
	return &fs{
		workspace: workspace,
	}
}

func (b *fs) Name() string {
	return "file_system"
}

func (b *fs) Exist(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(b.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, wrap("stat", key, err)
}

func (b *fs) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(b.workspace)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrap("list", prefix, err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if strings.HasPrefix(entry.Name(), prefix) {
			keys = append(keys, entry.Name())
		}
	}

	return keys, nil
}

func (b *fs) Reader(_ context.Context, key string) (io.ReadCloser, error) {
	rc, err := os.Open(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notfound(key)
		}
		return nil, wrap("open", key, err)
	}
	return rc, nil
}

func (b *fs) Promote(_ context.Context, filename, key string) error {
	if err := os.MkdirAll(b.workspace, 0755); err != nil {
		return wrap("promote", key, err)
	}

	err := os.Rename(filename, b.path(key))
	return wrap("promote", key, err)
}

func (b *fs) Remove(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !os.IsNotExist(err) {
		return wrap("delete", key, err)
	}
	return nil
}

func (b *fs) path(key string) string {
	return filepath.Join(b.workspace, key)
}
