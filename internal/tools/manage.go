package tools

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/sshman/internal/alias"
	"github.com/rileyhilliard/sshman/internal/cmdalias"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/hooks"
	"github.com/rileyhilliard/sshman/internal/profile"
)

// AliasResult is the response of ManageServerAlias.
type AliasResult struct {
	Action  string              `json:"action"`
	Message string              `json:"message,omitempty"`
	Aliases []alias.ServerAlias `json:"aliases,omitempty"`
}

// ManageServerAlias adds, removes or lists server aliases.
func (s *Service) ManageServerAlias(action, name, server string) (AliasResult, error) {
	res := AliasResult{Action: action}
	switch action {
	case "add":
		if err := requireArgs(action, map[string]string{"alias": name, "server": server}); err != nil {
			return res, err
		}
		servers, err := s.loader.Load()
		if err != nil {
			return res, err
		}
		if err := s.aliases.Add(name, server, servers); err != nil {
			return res, err
		}
		res.Message = fmt.Sprintf("Alias '%s' now points to '%s'",
			strings.ToLower(strings.TrimSpace(name)), strings.ToLower(strings.TrimSpace(server)))
	case "remove":
		if err := requireArgs(action, map[string]string{"alias": name}); err != nil {
			return res, err
		}
		if err := s.aliases.Remove(name); err != nil {
			return res, err
		}
		res.Message = fmt.Sprintf("Alias '%s' removed", strings.ToLower(strings.TrimSpace(name)))
	case "list":
		list, err := s.aliases.List()
		if err != nil {
			return res, err
		}
		res.Aliases = list
		if len(list) == 0 {
			res.Message = "No server aliases configured"
		}
	default:
		return res, unknownAction(action, "add", "remove", "list")
	}
	return res, nil
}

// CommandAliasResult is the response of ManageCommandAlias.
type CommandAliasResult struct {
	Action  string                  `json:"action"`
	Message string                  `json:"message,omitempty"`
	Aliases []cmdalias.CommandAlias `json:"aliases,omitempty"`
}

// ManageCommandAlias adds, removes, lists or searches command aliases. For
// suggest, command holds the search term.
func (s *Service) ManageCommandAlias(action, name, command string) (CommandAliasResult, error) {
	res := CommandAliasResult{Action: action}
	switch action {
	case "add":
		if err := requireArgs(action, map[string]string{"alias": name, "command": command}); err != nil {
			return res, err
		}
		if err := s.commands.Add(name, command); err != nil {
			return res, err
		}
		res.Message = fmt.Sprintf("Command alias '%s' set to: %s", strings.TrimSpace(name), command)
	case "remove":
		if err := requireArgs(action, map[string]string{"alias": name}); err != nil {
			return res, err
		}
		if err := s.commands.Remove(name); err != nil {
			return res, err
		}
		res.Message = fmt.Sprintf("Command alias '%s' removed", strings.TrimSpace(name))
	case "list":
		list, err := s.commands.List()
		if err != nil {
			return res, err
		}
		res.Aliases = list
	case "suggest":
		term := firstNonEmpty(command, name)
		if err := requireArgs(action, map[string]string{"command": term}); err != nil {
			return res, err
		}
		list, err := s.commands.Suggest(term)
		if err != nil {
			return res, err
		}
		res.Aliases = list
		if len(list) == 0 {
			res.Message = fmt.Sprintf("No command aliases match %q", term)
		}
	default:
		return res, unknownAction(action, "add", "remove", "list", "suggest")
	}
	return res, nil
}

// HookDetail is a single hook as reported by the status action.
type HookDetail struct {
	Name string `json:"name"`
	hooks.Definition
}

// HooksResult is the response of ManageHooks.
type HooksResult struct {
	Action  string          `json:"action"`
	Message string          `json:"message,omitempty"`
	Hooks   []hooks.Summary `json:"hooks,omitempty"`
	Hook    *HookDetail     `json:"hook,omitempty"`
}

// ManageHooks lists hooks, toggles one, or reports one hook's definition.
func (s *Service) ManageHooks(action, name string) (HooksResult, error) {
	res := HooksResult{Action: action}
	switch action {
	case "list":
		list, err := s.hooks.List()
		if err != nil {
			return res, err
		}
		res.Hooks = list
	case "enable", "disable":
		if err := requireArgs(action, map[string]string{"hook": name}); err != nil {
			return res, err
		}
		if err := s.hooks.Toggle(name, action == "enable"); err != nil {
			return res, err
		}
		res.Message = fmt.Sprintf("Hook '%s' %sd", name, action)
	case "status":
		if err := requireArgs(action, map[string]string{"hook": name}); err != nil {
			return res, err
		}
		def, ok, err := s.hooks.Get(name)
		if err != nil {
			return res, err
		}
		if !ok {
			return res, errors.New(errors.ErrHookConfig,
				fmt.Sprintf("Hook '%s' doesn't exist", name),
				"Run ssh_hooks with action list to see available hooks")
		}
		res.Hook = &HookDetail{Name: name, Definition: def}
	default:
		return res, unknownAction(action, "list", "enable", "disable", "status")
	}
	return res, nil
}

// ProfileResult is the response of ManageProfile.
type ProfileResult struct {
	Action   string            `json:"action"`
	Message  string            `json:"message,omitempty"`
	Active   string            `json:"active"`
	Profiles []profile.Summary `json:"profiles,omitempty"`
	Profile  *profile.Profile  `json:"profile,omitempty"`
}

// ManageProfile lists profiles, switches the active one, or shows the
// current one. A switch takes effect on the next call; nothing is cached.
func (s *Service) ManageProfile(action, name string) (ProfileResult, error) {
	res := ProfileResult{Action: action}
	switch action {
	case "list":
		res.Profiles = s.profiles.List()
	case "switch":
		if err := requireArgs(action, map[string]string{"profile": name}); err != nil {
			return res, err
		}
		if err := s.profiles.SetActive(name); err != nil {
			return res, err
		}
		res.Message = fmt.Sprintf("Switched to profile '%s'", strings.TrimSpace(name))
	case "current":
		p := s.profiles.Active()
		res.Profile = &p
	default:
		return res, unknownAction(action, "list", "switch", "current")
	}
	res.Active = s.profiles.Active().Name
	return res, nil
}

// Profiles returns the available profiles.
func (s *Service) Profiles() []profile.Summary {
	return s.profiles.List()
}

func requireArgs(action string, args map[string]string) error {
	var missing []string
	for _, key := range []string{"alias", "server", "command", "hook", "profile"} {
		if v, ok := args[key]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.New(errors.ErrConfig,
		fmt.Sprintf("Action '%s' needs: %s", action, strings.Join(missing, ", ")), "")
}

func unknownAction(action string, valid ...string) error {
	return errors.New(errors.ErrConfig,
		fmt.Sprintf("Unknown action '%s'", action),
		"Valid actions: "+strings.Join(valid, ", "))
}
