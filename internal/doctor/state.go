package doctor

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/hooks"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/internal/profile"
)

// HomeCheck verifies the state home is a writable directory.
type HomeCheck struct {
	Paths config.Paths
}

func (c *HomeCheck) Name() string     { return "home" }
func (c *HomeCheck) Category() string { return "STATE" }

func (c *HomeCheck) Run(context.Context) CheckResult {
	home := c.Paths.Home
	info, err := os.Stat(home)
	if os.IsNotExist(err) {
		return CheckResult{
			Status:     StatusWarn,
			Message:    fmt.Sprintf("State home %s doesn't exist yet", home),
			Suggestion: "Run 'sshman hooks init' to create it",
		}
	}
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s is not a directory", home),
			Suggestion: "Point --home or SSHMAN_HOME at a directory",
		}
	}

	f, err := os.CreateTemp(home, ".doctor-*")
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("State home %s is not writable", home),
			Suggestion: "Fix the permissions; aliases, hooks and the active profile are saved here",
		}
	}
	f.Close()
	os.Remove(f.Name())

	return CheckResult{Status: StatusPass, Message: "State home: " + home}
}

// SettingsCheck verifies settings.yaml parses and validates.
type SettingsCheck struct {
	Paths config.Paths
}

func (c *SettingsCheck) Name() string     { return "settings" }
func (c *SettingsCheck) Category() string { return "STATE" }

func (c *SettingsCheck) Run(context.Context) CheckResult {
	s, err := config.LoadSettings(c.Paths)
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    errors.OneLine(err),
			Suggestion: suggestionOf(err),
		}
	}

	source := "defaults"
	if _, err := os.Stat(c.Paths.Settings()); err == nil {
		source = "settings.yaml"
	}
	return CheckResult{
		Status: StatusPass,
		Message: fmt.Sprintf("Settings (%s): connect %s, command %s, hooks %s",
			source, s.ConnectTimeout, s.CommandTimeout, s.HookTimeout),
	}
}

// ServersCheck loads the server records and reports records that were
// skipped as invalid.
type ServersCheck struct {
	Paths   config.Paths
	Environ func() []string
}

func (c *ServersCheck) Name() string     { return "servers" }
func (c *ServersCheck) Category() string { return "SERVERS" }

func (c *ServersCheck) Run(context.Context) CheckResult {
	buf := logger.NewBufferLogger()
	loader := config.NewLoader(c.Paths, buf)
	if c.Environ != nil {
		loader.Environ = c.Environ
	}

	servers, err := loader.Load()
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    errors.OneLine(err),
			Suggestion: suggestionOf(err),
		}
	}

	var skipped []string
	for _, m := range buf.Snapshot() {
		if m.Level == "warn" && strings.HasPrefix(m.Message, "skipping server") {
			skipped = append(skipped, m.Message)
		}
	}

	switch {
	case len(skipped) > 0:
		return CheckResult{
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%d server(s) loaded, %d skipped: %s", len(servers), len(skipped), strings.Join(skipped, "; ")),
			Suggestion: "Fix or remove the broken entries in " + c.Paths.Servers(),
		}
	case len(servers) == 0:
		return CheckResult{
			Status:     StatusFail,
			Message:    "No servers configured",
			Suggestion: fmt.Sprintf("Add servers to %s or set SSH_SERVER_<NAME>_HOST and SSH_SERVER_<NAME>_USER", c.Paths.Servers()),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d server(s): %s", len(servers), strings.Join(servers.Names(), ", ")),
	}
}

// ProfileCheck verifies the active profile resolves.
type ProfileCheck struct {
	Store *profile.Store
}

func (c *ProfileCheck) Name() string     { return "profile" }
func (c *ProfileCheck) Category() string { return "STATE" }

func (c *ProfileCheck) Run(context.Context) CheckResult {
	name := c.Store.ActiveName()
	if !c.Store.Exists(name) {
		return CheckResult{
			Status:     StatusWarn,
			Message:    fmt.Sprintf("Active profile '%s' doesn't exist, using '%s'", name, profile.DefaultName),
			Suggestion: "Run 'sshman profile list' and switch to one of them",
		}
	}

	p := c.Store.Load(name)
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("Profile '%s': %d command aliases, %d hooks", p.Name, len(p.CommandAliases), len(p.Hooks)),
	}
}

// HooksCheck verifies hooks.yaml parses.
type HooksCheck struct {
	Engine *hooks.Engine
}

func (c *HooksCheck) Name() string     { return "hooks" }
func (c *HooksCheck) Category() string { return "STATE" }

func (c *HooksCheck) Run(context.Context) CheckResult {
	list, err := c.Engine.List()
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    errors.OneLine(err),
			Suggestion: suggestionOf(err),
		}
	}

	enabled := 0
	for _, h := range list {
		if h.Enabled {
			enabled++
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d hooks, %d enabled", len(list), enabled),
	}
}

func suggestionOf(err error) string {
	var smErr *errors.Error
	if stderrors.As(err, &smErr) {
		return smErr.Suggestion
	}
	return ""
}
