// Package hooks runs named lists of local shell actions around remote
// operations. Hook definitions come from the active profile and can be
// overridden, added to, and toggled through hooks.yaml.
package hooks

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/exec"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/internal/profile"
	"github.com/rileyhilliard/sshman/internal/store"
	"github.com/rileyhilliard/sshman/internal/util"
)

// Well-known hook names.
const (
	PreDeploy   = "pre-deploy"
	PostDeploy  = "post-deploy"
	OnError     = "on-error"
	PreConnect  = "pre-connect"
	PostConnect = "post-connect"
)

// DefaultTimeout bounds a single action when the engine has no timeout set.
const DefaultTimeout = 30 * time.Second

// Definition is a hook as stored in profiles and hooks.yaml.
type Definition = profile.Hook

// Action is one step of a hook.
type Action = profile.Action

// ActionResult is the outcome of one action.
type ActionResult struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Success  bool          `json:"success"`
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of Execute. Success is true only if every action
// succeeded; a hook that didn't run (unknown or disabled) is a successful skip.
type Result struct {
	Hook    string         `json:"hook"`
	Success bool           `json:"success"`
	Skipped bool           `json:"skipped"`
	Results []ActionResult `json:"results,omitempty"`
}

// Summary describes a hook for listings.
type Summary struct {
	Name          string `json:"name"`
	Enabled       bool   `json:"enabled"`
	Description   string `json:"description"`
	ActionCount   int    `json:"actionCount"`
	IsFromProfile bool   `json:"isFromProfile"`
	IsCustom      bool   `json:"isCustom"`
}

type overlayDoc struct {
	Hooks map[string]Definition `yaml:"hooks"`
}

// RunFunc runs a shell command locally.
type RunFunc func(ctx context.Context, cmd, workDir string, env []string) (exec.LocalResult, error)

// Engine executes and edits hooks.
type Engine struct {
	paths   config.Paths
	file    *store.File
	base    func() map[string]Definition
	timeout time.Duration
	log     logger.Logger
	run     RunFunc
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewEngine returns an Engine. base supplies the active profile's hooks and
// is consulted on every call.
func NewEngine(paths config.Paths, base func() map[string]Definition, timeout time.Duration, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Noop()
	}
	if base == nil {
		base = func() map[string]Definition { return nil }
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		paths:   paths,
		file:    store.Open(paths.Hooks()),
		base:    base,
		timeout: timeout,
		log:     log,
		run:     exec.RunLocal,
	}
}

// WithRunner replaces the local command runner.
func (e *Engine) WithRunner(run RunFunc) *Engine {
	e.run = run
	return e
}

// Execute runs hook name with hctx substituted into each action. Every action
// runs even if an earlier one fails.
func (e *Engine) Execute(ctx context.Context, name string, hctx map[string]any) Result {
	res := Result{Hook: name, Success: true}

	def, ok, err := e.Get(name)
	if err != nil {
		e.log.Warn("hook %s: %s", name, errors.OneLine(err))
		res.Skipped = true
		return res
	}
	if !ok || !def.Enabled {
		e.log.Debug("hook %s skipped", name)
		res.Skipped = true
		return res
	}

	lookup := func(key string) (string, bool) {
		v, ok := hctx[key]
		if !ok {
			return "", false
		}
		return util.Stringify(v), true
	}

	workDir := ""
	if info, err := os.Stat(e.paths.HooksDir()); err == nil && info.IsDir() {
		workDir = e.paths.HooksDir()
	}
	env := []string{"SSHMAN_HOOK=" + name}

	for i, action := range def.Actions {
		cmd := util.ExpandTemplate(action.Command, lookup)

		actionName := action.Name
		if actionName == "" {
			actionName = fmt.Sprintf("action-%d", i+1)
		}
		ar := ActionResult{Name: actionName, Type: action.Type}

		actx, cancel := context.WithTimeout(ctx, e.timeout)
		out, err := e.run(actx, cmd, workDir, env)
		cancel()

		ar.ExitCode = out.ExitCode
		ar.Stdout = strings.TrimSpace(out.Stdout)
		ar.Stderr = strings.TrimSpace(out.Stderr)
		ar.Duration = out.Duration
		if err != nil {
			ar.Error = errors.OneLine(err)
		}
		ar.Success = err == nil && out.ExitCode == 0

		if !ar.Success {
			res.Success = false
			e.log.Warn("hook %s action %s failed (exit %d): %s", name, actionName, out.ExitCode,
				util.JoinOrDefault(nonEmpty(ar.Error, ar.Stderr), "no output"))
		} else {
			e.log.Debug("hook %s action %s ok", name, actionName)
		}
		res.Results = append(res.Results, ar)
	}

	return res
}

// Initialize creates the hooks directory and seeds hooks.yaml with an
// enabled on-error hook if the file doesn't exist yet.
func (e *Engine) Initialize() error {
	if err := os.MkdirAll(e.paths.HooksDir(), 0o755); err != nil {
		return errors.WrapWithCode(err, errors.ErrHookConfig,
			"Couldn't create "+e.paths.HooksDir(),
			"Check permissions on "+e.paths.Home)
	}
	if e.file.Exists() {
		return nil
	}

	seed := overlayDoc{Hooks: map[string]Definition{
		OnError: {
			Enabled:     true,
			Description: "Report failures from remote operations",
			Actions: []Action{{
				Type:    "notification",
				Name:    "report",
				Command: `echo "sshman error on {server}: {error}" >&2`,
			}},
		},
	}}
	if err := e.file.Save(seed); err != nil {
		return errors.WrapWithCode(err, errors.ErrHookConfig,
			"Couldn't write "+e.file.Path(),
			"Check permissions on "+e.paths.Home)
	}
	return nil
}

// Add stores def under name in the overlay.
func (e *Engine) Add(name string, def Definition) error {
	name = strings.TrimSpace(name)
	if err := Validate(name, def); err != nil {
		return err
	}
	return e.update(func(doc *overlayDoc) error {
		doc.Hooks[name] = def
		return nil
	})
}

// Remove drops name from the overlay. If the profile defines the hook, the
// overlay is reset to the profile's definition. Idempotent.
func (e *Engine) Remove(name string) error {
	base := e.base()
	return e.update(func(doc *overlayDoc) error {
		if def, ok := base[name]; ok {
			doc.Hooks[name] = def
			return nil
		}
		delete(doc.Hooks, name)
		return nil
	})
}

// Toggle enables or disables name. Profile hooks are copied into the overlay
// with the new flag.
func (e *Engine) Toggle(name string, enabled bool) error {
	base := e.base()
	return e.update(func(doc *overlayDoc) error {
		def, ok := doc.Hooks[name]
		if !ok {
			def, ok = base[name]
		}
		if !ok {
			return errors.New(errors.ErrHookConfig,
				fmt.Sprintf("Hook '%s' doesn't exist", name),
				"Run 'sshman hooks list' to see available hooks")
		}
		def.Enabled = enabled
		doc.Hooks[name] = def
		return nil
	})
}

// Get returns the effective definition of name.
func (e *Engine) Get(name string) (Definition, bool, error) {
	overlay, err := e.overlay()
	if err != nil {
		return Definition{}, false, err
	}
	if def, ok := overlay[name]; ok {
		return def, true, nil
	}
	def, ok := e.base()[name]
	return def, ok, nil
}

// List summarizes every effective hook, sorted by name.
func (e *Engine) List() ([]Summary, error) {
	overlay, err := e.overlay()
	if err != nil {
		return nil, err
	}
	base := e.base()

	effective := make(map[string]Definition, len(base)+len(overlay))
	for name, def := range base {
		effective[name] = def
	}
	for name, def := range overlay {
		effective[name] = def
	}

	out := make([]Summary, 0, len(effective))
	for _, name := range util.SortedKeys(effective) {
		def := effective[name]
		_, fromProfile := base[name]
		_, custom := overlay[name]
		out = append(out, Summary{
			Name:          name,
			Enabled:       def.Enabled,
			Description:   def.Description,
			ActionCount:   len(def.Actions),
			IsFromProfile: fromProfile,
			IsCustom:      custom,
		})
	}
	return out, nil
}

// Validate checks a hook definition: the name is required and every action
// needs a command.
func Validate(name string, def Definition) error {
	if err := validate.Var(name, "required,excludesall= \t\n"); err != nil {
		return errors.New(errors.ErrHookConfig,
			fmt.Sprintf("Invalid hook name %q", name),
			"Hook names are single words like 'pre-deploy'")
	}
	if err := validate.Struct(def); err != nil {
		var verrs validator.ValidationErrors
		msg := err.Error()
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			msg = fmt.Sprintf("%s is %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return errors.New(errors.ErrHookConfig,
			fmt.Sprintf("Hook '%s' is invalid: %s", name, msg),
			"Every action needs a command")
	}
	return nil
}

// MatchCommand maps a remote command onto a hook suffix, so "bench update"
// fires pre-bench-update and post-bench-update.
func MatchCommand(command string) (string, bool) {
	normalized := strings.Join(strings.Fields(command), " ")
	for _, p := range commandPatterns {
		if strings.Contains(normalized, p.pattern) {
			return p.hook, true
		}
	}
	return "", false
}

var commandPatterns = []struct {
	pattern string
	hook    string
}{
	{"bench update", "bench-update"},
	{"bench migrate", "bench-migrate"},
}

func (e *Engine) overlay() (map[string]Definition, error) {
	var doc overlayDoc
	if err := e.file.Load(&doc); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrHookConfig,
			"Couldn't read hooks",
			"Fix or delete "+e.file.Path())
	}
	return doc.Hooks, nil
}

func (e *Engine) update(fn func(doc *overlayDoc) error) error {
	err := store.Update(e.file, func(doc *overlayDoc) error {
		if doc.Hooks == nil {
			doc.Hooks = make(map[string]Definition)
		}
		return fn(doc)
	})
	if err == nil {
		return nil
	}
	if errors.CodeOf(err) != "" {
		return err
	}
	return errors.WrapWithCode(err, errors.ErrHookConfig,
		"Couldn't save hooks",
		"Check permissions on "+e.file.Path())
}

func nonEmpty(items ...string) []string {
	var out []string
	for _, s := range items {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
