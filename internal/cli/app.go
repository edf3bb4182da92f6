package cli

import (
	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/pkg/sshutil"
)

// serviceOptions lets tests swap the dialer and hook runner.
var serviceOptions func(*tools.Options)

// openService builds a Service from the global flags and settings.yaml.
// Callers must Close it.
func openService() (*tools.Service, logger.Logger, error) {
	paths, err := config.ResolveHome(homeFlag)
	if err != nil {
		return nil, nil, err
	}

	settings, err := config.LoadSettings(paths)
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(logger.Options{
		Component: "sshman",
		Debug:     verboseFlag || settings.LogLevel == "debug",
	})
	logger.SetDefault(log)
	sshutil.StrictHostKeyChecking = settings.StrictHostKeyChecking

	opts := tools.Options{Settings: settings, Log: log}
	if serviceOptions != nil {
		serviceOptions(&opts)
	}
	return tools.New(paths, opts), log, nil
}
