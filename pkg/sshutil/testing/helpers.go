package testing

// WithFiles pre-populates the session's filesystem. Keys are paths, values
// are file contents.
func WithFiles(s *MockSession, files map[string]string) {
	for p, content := range files {
		s.FS().WriteFile(p, []byte(content))
	}
}

// WithDirs pre-populates the session's filesystem with directories.
func WithDirs(s *MockSession, dirs ...string) {
	for _, d := range dirs {
		s.FS().MkdirAll(d)
	}
}
