package medium

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/logger"
	"github.com/snapdoc/snapdoc/internal/value"
)

// File stores the snapshot in a single local file. The version token is
// the domain-separated content hash of the blob, and writes go through a
// temp-file-plus-rename so readers observe either the old or the new
// snapshot atomically, never a partial one.
type File struct {
	path string
	log  *logger.Logger
}

// NewFile creates a file medium at path.
func NewFile(path string, log *logger.Logger) *File {
	if log == nil {
		log = logger.Discard()
	}
	return &File{path: path, log: log}
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

func (f *File) Init() error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &errs.StorageError{Op: "init", Err: err}
	}
	return nil
}

func (f *File) ReadCurrent(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", &errs.StorageError{Op: "read", Err: err}
	}
	if len(data) == 0 {
		return nil, "", nil
	}
	return data, value.HashWithDomain(value.DomainBlob, data), nil
}

// WriteNew replaces the data file after verifying the caller's expected
// token against the current content hash. The message and author are
// accepted for interface symmetry; a plain file keeps no version log to
// record them in.
func (f *File) WriteNew(ctx context.Context, blob []byte, message string, author Author, expectedToken string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	current, currentToken, err := f.ReadCurrent(ctx)
	if err != nil {
		return "", err
	}
	if currentToken != expectedToken {
		return "", fmt.Errorf("file %s: expected %.12s, have %.12s: %w",
			f.path, expectedToken, currentToken, errs.ErrVersionConflict)
	}
	if bytes.Equal(current, blob) {
		// Identical content; nothing to replace.
		return currentToken, nil
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return "", &errs.StorageError{Op: "write tmp", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return "", &errs.StorageError{Op: "write tmp", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", &errs.StorageError{Op: "sync tmp", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &errs.StorageError{Op: "close tmp", Err: err}
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return "", &errs.StorageError{Op: "rename", Err: err}
	}

	return value.HashWithDomain(value.DomainBlob, blob), nil
}

func (f *File) Close() error { return nil }

// Watch reports external modifications of the data file. Rename-based
// replacement (our own write path, and most editors) shows up as Create
// events on the watched directory.
func (f *File) Watch(onChange func()) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &errs.StorageError{Op: "watch", Err: err}
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return nil, &errs.StorageError{Op: "watch", Err: err}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != f.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					onChange()
				}
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.log.Warn("file watcher: %v", watchErr)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
