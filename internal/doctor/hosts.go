package doctor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/host"
	"github.com/rileyhilliard/sshman/pkg/sshutil"
)

// HostCheck probes a server's SSH port. It does no handshake, so it never
// prompts for host keys or burns login attempts.
type HostCheck struct {
	Record  config.ServerRecord
	Timeout time.Duration
}

func (c *HostCheck) Name() string     { return "host_" + c.Record.Name }
func (c *HostCheck) Category() string { return "HOSTS" }

func (c *HostCheck) Run(ctx context.Context) CheckResult {
	address := sshutil.ResolveAddress(host.TargetFor(c.Record))
	latency, err := host.ProbeTCP(ctx, address, c.Timeout)
	if err == nil {
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s: reachable at %s (%dms)", c.Record.Name, address, latency.Milliseconds()),
		}
	}

	reason := host.Categorize(err)
	var probeErr *host.ProbeError
	if stderrors.As(err, &probeErr) {
		reason = probeErr.Reason
	}
	return CheckResult{
		Status:     StatusFail,
		Message:    fmt.Sprintf("%s: %s at %s", c.Record.Name, reason, address),
		Suggestion: hostSuggestion(c.Record.Name, reason),
	}
}

func hostSuggestion(name string, reason host.FailReason) string {
	switch reason {
	case host.FailRefused:
		return "The SSH server may not be running, or the port is wrong"
	case host.FailTimeout:
		return fmt.Sprintf("%s may be offline or firewalled", name)
	case host.FailUnreachable:
		return "Check the hostname resolves and the network route"
	default:
		return "Run 'sshman test " + name + "' for details"
	}
}
