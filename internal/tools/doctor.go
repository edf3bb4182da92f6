package tools

import (
	"github.com/rileyhilliard/sshman/internal/doctor"
)

// StateChecks returns the checks over the state home and configuration.
func (s *Service) StateChecks() []doctor.Check {
	return []doctor.Check{
		&doctor.HomeCheck{Paths: s.paths},
		&doctor.SettingsCheck{Paths: s.paths},
		&doctor.ServersCheck{Paths: s.paths, Environ: s.loader.Environ},
		&doctor.ProfileCheck{Store: s.profiles},
		&doctor.HooksCheck{Engine: s.hooks},
	}
}

// HostChecks returns one reachability check per configured server.
func (s *Service) HostChecks() ([]doctor.Check, error) {
	servers, err := s.loader.Load()
	if err != nil {
		return nil, err
	}
	checks := make([]doctor.Check, 0, len(servers))
	for _, name := range servers.Names() {
		checks = append(checks, &doctor.HostCheck{Record: servers[name], Timeout: s.settings.ConnectTimeout})
	}
	return checks, nil
}
