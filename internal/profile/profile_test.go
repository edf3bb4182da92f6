package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(config.Paths{Home: t.TempDir()}, logger.NewBufferLogger())
	s.getenv = func(string) string { return "" }
	return s
}

func TestLoad_Builtins(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"default", "frappe", "docker", "nodejs", "minimal"} {
		t.Run(name, func(t *testing.T) {
			p := s.Load(name)
			assert.Equal(t, name, p.Name)
			assert.NotEmpty(t, p.Description)
			assert.NotNil(t, p.CommandAliases)
			assert.NotNil(t, p.Hooks)
			for hookName, h := range p.Hooks {
				for _, a := range h.Actions {
					assert.NotEmpty(t, a.Command, "hook %s", hookName)
				}
			}
		})
	}
}

func TestLoad_Frappe(t *testing.T) {
	p := newTestStore(t).Load("frappe")
	assert.Contains(t, p.CommandAliases, "bench-update")
	assert.Contains(t, p.Hooks, "pre-bench-update")
}

func TestLoad_UnknownFallsBackToDefault(t *testing.T) {
	p := newTestStore(t).Load("non-existent-profile")
	assert.Equal(t, DefaultName, p.Name)
}

func TestLoad_UserProfileShadowsBuiltin(t *testing.T) {
	s := newTestStore(t)
	dir := s.paths.ProfilesDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker.yaml"), []byte(`
description: my docker
command_aliases:
  up: docker compose up -d
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "team.json"), []byte(`{
  "name": "team",
  "description": "team tools",
  "commandAliases": {"hi": "echo hi"},
  "hooks": {"on-error": {"enabled": true, "actions": [{"type": "notification", "command": "true"}]}}
}`), 0o600))

	docker := s.Load("docker")
	assert.Equal(t, "docker", docker.Name)
	assert.Equal(t, "my docker", docker.Description)
	assert.Equal(t, map[string]string{"up": "docker compose up -d"}, docker.CommandAliases)

	team := s.Load("team")
	assert.Equal(t, "echo hi", team.CommandAliases["hi"])
	assert.True(t, team.Hooks["on-error"].Enabled)

	var names []string
	builtIn := map[string]bool{}
	for _, sum := range s.List() {
		names = append(names, sum.Name)
		builtIn[sum.Name] = sum.BuiltIn
	}
	assert.Equal(t, []string{"default", "docker", "frappe", "minimal", "nodejs", "team"}, names)
	assert.False(t, builtIn["docker"])
	assert.True(t, builtIn["frappe"])
	assert.False(t, builtIn["team"])
}

func TestActiveName(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, DefaultName, s.ActiveName())

	require.NoError(t, s.SetActive("docker"))
	assert.Equal(t, "docker", s.ActiveName())
	assert.Equal(t, "docker", s.Active().Name)

	s.getenv = func(key string) string {
		if key == ActiveEnv {
			return "frappe"
		}
		return ""
	}
	assert.Equal(t, "frappe", s.ActiveName(), "environment overrides the file")
}

func TestSetActive_Unknown(t *testing.T) {
	s := newTestStore(t)
	err := s.SetActive("nope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "doesn't exist")
	assert.Equal(t, DefaultName, s.ActiveName())
}

func TestList_MarksActive(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetActive("nodejs"))

	var active []string
	for _, sum := range s.List() {
		if sum.Active {
			active = append(active, sum.Name)
		}
	}
	assert.Equal(t, []string{"nodejs"}, active)
}

func TestList_UnknownActiveShowsDefault(t *testing.T) {
	s := newTestStore(t)
	s.getenv = func(string) string { return "gone" }

	for _, sum := range s.List() {
		assert.Equal(t, sum.Name == DefaultName, sum.Active, sum.Name)
	}
	assert.Equal(t, DefaultName, s.Active().Name)
}
