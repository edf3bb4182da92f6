package tools

import (
	"testing"

	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManageServerAlias(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.ManageServerAlias("list", "", "")
	require.NoError(t, err)
	assert.Equal(t, "No server aliases configured", res.Message)

	res, err = h.svc.ManageServerAlias("add", "Live", "PROD")
	require.NoError(t, err)
	assert.Equal(t, "Alias 'live' now points to 'prod'", res.Message)

	_, err = h.svc.ManageServerAlias("add", "qa", "staging")
	require.NoError(t, err)

	res, err = h.svc.ManageServerAlias("list", "", "")
	require.NoError(t, err)
	require.Len(t, res.Aliases, 2)
	assert.Equal(t, "live", res.Aliases[0].Alias)
	assert.Equal(t, "qa", res.Aliases[1].Alias)

	_, err = h.svc.ManageServerAlias("remove", "live", "")
	require.NoError(t, err)
	_, err = h.svc.ManageServerAlias("remove", "live", "")
	require.NoError(t, err, "remove is idempotent")

	res, err = h.svc.ManageServerAlias("list", "", "")
	require.NoError(t, err)
	require.Len(t, res.Aliases, 1)
}

func TestManageServerAlias_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ManageServerAlias("add", "x", "ghost")
	assert.True(t, errors.IsCode(err, errors.ErrAliasTarget))

	_, err = h.svc.ManageServerAlias("add", "staging", "prod")
	assert.True(t, errors.IsCode(err, errors.ErrAliasTarget), "alias may not shadow a server")

	_, err = h.svc.ManageServerAlias("add", "", "prod")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, errors.OneLine(err), "needs: alias")

	_, err = h.svc.ManageServerAlias("rename", "a", "b")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, errors.OneLine(err), "Unknown action 'rename'")
}

func TestManageCommandAlias(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.ManageCommandAlias("list", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, res.Aliases)
	for _, a := range res.Aliases {
		assert.True(t, a.IsFromProfile)
		assert.False(t, a.IsCustom)
	}

	_, err = h.svc.ManageCommandAlias("add", "disk", "df -h /")
	require.NoError(t, err)
	_, err = h.svc.ManageCommandAlias("add", "tail-app", "tail -n 50 /var/log/app.log")
	require.NoError(t, err)

	res, err = h.svc.ManageCommandAlias("suggest", "", "df")
	require.NoError(t, err)
	require.Len(t, res.Aliases, 1)
	assert.Equal(t, "disk", res.Aliases[0].Alias)
	assert.Equal(t, "df -h /", res.Aliases[0].Command)
	assert.True(t, res.Aliases[0].IsFromProfile)
	assert.True(t, res.Aliases[0].IsCustom)

	_, err = h.svc.ManageCommandAlias("remove", "disk", "")
	require.NoError(t, err)
	res, err = h.svc.ManageCommandAlias("suggest", "", "df")
	require.NoError(t, err)
	require.Len(t, res.Aliases, 1)
	assert.Equal(t, "df -h", res.Aliases[0].Command, "removing a profile alias restores the profile text")

	res, err = h.svc.ManageCommandAlias("suggest", "", "nothing-matches")
	require.NoError(t, err)
	assert.Empty(t, res.Aliases)
	assert.Contains(t, res.Message, "No command aliases match")
}

func TestManageCommandAlias_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ManageCommandAlias("add", "x", "")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	_, err = h.svc.ManageCommandAlias("suggest", "", "")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	_, err = h.svc.ManageCommandAlias("purge", "", "")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestManageHooks(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.ManageHooks("list", "")
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, s := range res.Hooks {
		names[s.Name] = s.Enabled
	}
	assert.Equal(t, map[string]bool{"pre-deploy": false, "post-deploy": false, "on-error": true}, names)

	res, err = h.svc.ManageHooks("enable", "pre-deploy")
	require.NoError(t, err)
	assert.Equal(t, "Hook 'pre-deploy' enabled", res.Message)

	res, err = h.svc.ManageHooks("status", "pre-deploy")
	require.NoError(t, err)
	require.NotNil(t, res.Hook)
	assert.Equal(t, "pre-deploy", res.Hook.Name)
	assert.True(t, res.Hook.Enabled)
	assert.Len(t, res.Hook.Actions, 1)

	res, err = h.svc.ManageHooks("disable", "on-error")
	require.NoError(t, err)
	assert.Equal(t, "Hook 'on-error' disabled", res.Message)
}

func TestManageHooks_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ManageHooks("enable", "no-such-hook")
	assert.True(t, errors.IsCode(err, errors.ErrHookConfig))

	_, err = h.svc.ManageHooks("status", "no-such-hook")
	assert.True(t, errors.IsCode(err, errors.ErrHookConfig))

	_, err = h.svc.ManageHooks("status", "")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	_, err = h.svc.ManageHooks("run", "on-error")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestManageProfile(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.ManageProfile("current", "")
	require.NoError(t, err)
	assert.Equal(t, "default", res.Active)
	require.NotNil(t, res.Profile)
	assert.Equal(t, "default", res.Profile.Name)

	res, err = h.svc.ManageProfile("list", "")
	require.NoError(t, err)
	var names []string
	for _, p := range res.Profiles {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"default", "docker", "frappe", "minimal", "nodejs"}, names)

	res, err = h.svc.ManageProfile("switch", "docker")
	require.NoError(t, err)
	assert.Equal(t, "docker", res.Active)
	assert.Equal(t, "Switched to profile 'docker'", res.Message)

	_, err = h.svc.ManageProfile("switch", "nope")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, errors.OneLine(err), "doesn't exist")

	_, err = h.svc.ManageProfile("delete", "docker")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestManageProfile_SwitchChangesAliasesWithoutRestart(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.ManageCommandAlias("suggest", "", "bench")
	require.NoError(t, err)
	assert.Empty(t, res.Aliases)

	_, err = h.svc.ManageProfile("switch", "frappe")
	require.NoError(t, err)

	res, err = h.svc.ManageCommandAlias("suggest", "", "bench")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Aliases)
}
