// Package testing provides an in-memory stand-in for a remote server: a
// virtual filesystem plus a Session that interprets the handful of shell
// commands sshman sends (mv, cp, chown, chmod, rm, mkdir, test, cat, echo,
// uname) plus a trailing "> file" redirect.
package testing

import (
	"errors"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

// ErrNotExist is returned for missing paths.
var ErrNotExist = errors.New("no such file or directory")

// MockFile is one file in the virtual filesystem.
type MockFile struct {
	Content []byte
	Mode    os.FileMode
	Owner   string
}

// MockFS simulates a remote filesystem.
type MockFS struct {
	mu    sync.RWMutex
	files map[string]*MockFile
	dirs  map[string]struct{}
}

// NewMockFS creates an empty filesystem containing only /.
func NewMockFS() *MockFS {
	return &MockFS{
		files: make(map[string]*MockFile),
		dirs:  map[string]struct{}{"/": {}},
	}
}

func clean(p string) string {
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

func (fs *MockFS) mkdirAllLocked(dir string) {
	for dir != "/" && dir != "." {
		fs.dirs[dir] = struct{}{}
		dir = path.Dir(dir)
	}
}

// MkdirAll creates a directory and its parents, like mkdir -p.
func (fs *MockFS) MkdirAll(p string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mkdirAllLocked(clean(p))
}

// Mkdir creates a single directory and fails if p already exists, like
// mkdir without -p.
func (fs *MockFS) Mkdir(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p = clean(p)
	if _, ok := fs.dirs[p]; ok {
		return os.ErrExist
	}
	if _, ok := fs.files[p]; ok {
		return os.ErrExist
	}
	fs.mkdirAllLocked(p)
	return nil
}

// WriteFile writes content, creating parent directories. Mode and owner of
// an existing file are kept.
func (fs *MockFS) WriteFile(p string, content []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p = clean(p)
	fs.mkdirAllLocked(path.Dir(p))
	if f, ok := fs.files[p]; ok {
		f.Content = append([]byte(nil), content...)
		return
	}
	fs.files[p] = &MockFile{Content: append([]byte(nil), content...), Mode: 0o644}
}

// ReadFile returns a file's content.
func (fs *MockFS) ReadFile(p string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	f, ok := fs.files[clean(p)]
	if !ok {
		return nil, ErrNotExist
	}
	return append([]byte(nil), f.Content...), nil
}

// Stat returns a copy of the file at p.
func (fs *MockFS) Stat(p string) (MockFile, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	f, ok := fs.files[clean(p)]
	if !ok {
		return MockFile{}, false
	}
	return *f, true
}

// Rename moves a file, replacing any file at dst. The parent of dst must exist.
func (fs *MockFS) Rename(src, dst string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	src, dst = clean(src), clean(dst)
	f, ok := fs.files[src]
	if !ok {
		return ErrNotExist
	}
	if _, ok := fs.dirs[path.Dir(dst)]; !ok {
		return ErrNotExist
	}
	delete(fs.files, src)
	fs.files[dst] = f
	return nil
}

// Copy duplicates a file including mode and owner.
func (fs *MockFS) Copy(src, dst string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	src, dst = clean(src), clean(dst)
	f, ok := fs.files[src]
	if !ok {
		return ErrNotExist
	}
	cp := *f
	cp.Content = append([]byte(nil), f.Content...)
	fs.files[dst] = &cp
	return nil
}

// Chmod sets a file's mode.
func (fs *MockFS) Chmod(p string, mode os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, ok := fs.files[clean(p)]
	if !ok {
		return ErrNotExist
	}
	f.Mode = mode
	return nil
}

// Chown sets a file's owner string (user or user:group).
func (fs *MockFS) Chown(p, owner string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, ok := fs.files[clean(p)]
	if !ok {
		return ErrNotExist
	}
	f.Owner = owner
	return nil
}

// Remove deletes a file or a directory tree, like rm -rf.
func (fs *MockFS) Remove(p string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p = clean(p)
	delete(fs.files, p)
	delete(fs.dirs, p)

	prefix := p + "/"
	for f := range fs.files {
		if strings.HasPrefix(f, prefix) {
			delete(fs.files, f)
		}
	}
	for d := range fs.dirs {
		if strings.HasPrefix(d, prefix) {
			delete(fs.dirs, d)
		}
	}
}

// Exists reports whether p is a file or directory.
func (fs *MockFS) Exists(p string) bool {
	return fs.IsFile(p) || fs.IsDir(p)
}

// IsDir reports whether p is a directory.
func (fs *MockFS) IsDir(p string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.dirs[clean(p)]
	return ok
}

// IsFile reports whether p is a file.
func (fs *MockFS) IsFile(p string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.files[clean(p)]
	return ok
}

// Files lists every file path under prefix, sorted.
func (fs *MockFS) Files(prefix string) []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var out []string
	for f := range fs.files {
		if strings.HasPrefix(f, prefix) {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
