// Package store persists the small overlay files sshman keeps in its state
// home (server aliases, command aliases, hook customizations).
//
// Reads take a shared lock and mutations take an exclusive one, so a
// read-modify-write through Update never loses a concurrent update made in
// the same process. Writes go to a temp file that is renamed into place.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// File is a YAML document on disk.
type File struct {
	path string
	mu   sync.RWMutex
}

var (
	filesMu sync.Mutex
	files   = make(map[string]*File)
)

// Open returns the File for path. Every caller opening the same path in this
// process shares one lock.
func Open(path string) *File {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	filesMu.Lock()
	defer filesMu.Unlock()

	if f, ok := files[abs]; ok {
		return f
	}
	f := &File{path: abs}
	files[abs] = f
	return f
}

// Path returns the absolute path of the file.
func (f *File) Path() string {
	return f.path
}

// Exists reports whether the file is present on disk.
func (f *File) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Load decodes the file into v. A missing or empty file leaves v untouched.
func (f *File) Load(v any) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.read(v)
}

// Save replaces the file contents with v.
func (f *File) Save(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(v)
}

// Update loads the document into a fresh T, applies fn and writes the result
// back, all under the exclusive lock. If fn returns an error nothing is written.
func Update[T any](f *File, fn func(doc *T) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var doc T
	if err := f.read(&doc); err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return f.write(&doc)
}

func (f *File) read(v any) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return nil
}

func (f *File) write(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return nil
}
