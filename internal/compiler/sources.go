package compiler

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// sourceTracker is the file accessor handed to the compiler. It remembers
// every file it served and every file it failed to open for a reason other
// than absence.
type sourceTracker struct {
	mu       sync.Mutex
	contents map[string][]byte
	failures map[string]error
}

func newSourceTracker() *sourceTracker {
	return &sourceTracker{
		contents: make(map[string][]byte),
		failures: make(map[string]error),
	}
}

func (t *sourceTracker) open(path string) (io.ReadCloser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			t.mu.Lock()
			t.failures[path] = err
			t.mu.Unlock()
		}
		return nil, err
	}

	t.mu.Lock()
	t.contents[path] = data
	t.mu.Unlock()
	return io.NopCloser(bytes.NewReader(data)), nil
}

type openError struct {
	path string
	err  error
}

// failureList returns the recorded open failures sorted by path.
func (t *sourceTracker) failureList() []openError {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]openError, 0, len(t.failures))
	for p, err := range t.failures {
		out = append(out, openError{path: p, err: err})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// sources maps each name to the content served for it, searching includes in
// order.
func (t *sourceTracker) sources(names []string, includes []string) map[string][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string][]byte)
	for _, name := range names {
		for _, inc := range includes {
			if data, ok := t.contents[filepath.Join(inc, filepath.FromSlash(name))]; ok {
				out[name] = data
				break
			}
		}
	}
	return out
}

// paths returns the absolute path of every file served, sorted.
func (t *sourceTracker) paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.contents))
	for p := range t.contents {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// locate maps a requested file to its name relative to an include path. A file
// below an include directory is named relative to it; a relative file that
// exists under an include is taken as already relative. ok is false when
// neither applies.
func locate(file string, includes []string) (name string, ok bool) {
	absFile, err := filepath.Abs(file)
	if err == nil {
		for _, inc := range includes {
			absInc, err := filepath.Abs(inc)
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(absInc, absFile)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				continue
			}
			if _, err := os.Stat(absFile); errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return filepath.ToSlash(rel), true
		}
	}

	if !filepath.IsAbs(file) {
		for _, inc := range includes {
			if _, err := os.Stat(filepath.Join(inc, file)); err == nil {
				return filepath.ToSlash(filepath.Clean(file)), true
			}
		}
	}
	return "", false
}
