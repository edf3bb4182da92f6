// Package deploy turns a destination path and options into an ordered plan
// of remote steps and runs that plan for a batch of files.
package deploy

import (
	"path"
	"strings"
)

// Needs is what a destination path suggests about ownership, permissions
// and privilege. Empty fields mean no suggestion.
type Needs struct {
	SuggestedOwner string
	SuggestedPerms string
	NeedsSudo      bool
}

type pathRule struct {
	prefix string
	owner  string
	perms  string
	sudo   bool
}

// First match wins, so more specific prefixes come first.
var pathRules = []pathRule{
	{prefix: "/var/www/", owner: "www-data:www-data", perms: "644", sudo: true},
	{prefix: "/etc/nginx/", owner: "root:root", perms: "644", sudo: true},
	{prefix: "/etc/apache2/", owner: "root:root", perms: "644", sudo: true},
	{prefix: "/etc/systemd/", owner: "root:root", perms: "644", sudo: true},
	{prefix: "/etc/", owner: "root:root", perms: "644", sudo: true},
	{prefix: "/usr/local/bin/", owner: "root:root", perms: "755", sudo: true},
	{prefix: "/opt/", sudo: true},
}

// DetectDeploymentNeeds inspects remotePath against well-known locations.
func DetectDeploymentNeeds(remotePath string) Needs {
	p := path.Clean(remotePath)

	var needs Needs
	for _, rule := range pathRules {
		if strings.HasPrefix(p, rule.prefix) {
			needs = Needs{SuggestedOwner: rule.owner, SuggestedPerms: rule.perms, NeedsSudo: rule.sudo}
			break
		}
	}

	if needs.SuggestedOwner == "" {
		if user := homeOwner(p); user != "" {
			needs.SuggestedOwner = user + ":" + user
		}
	}

	if needs.SuggestedPerms == "" && strings.HasSuffix(p, ".sh") {
		needs.SuggestedPerms = "755"
	}

	return needs
}

// homeOwner returns <u> for paths below /home/<u>/.
func homeOwner(p string) string {
	rest, ok := strings.CutPrefix(p, "/home/")
	if !ok {
		return ""
	}
	user, _, ok := strings.Cut(rest, "/")
	if !ok || user == "" {
		return ""
	}
	return user
}
