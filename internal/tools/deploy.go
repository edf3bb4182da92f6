package tools

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/deploy"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/host"
	"github.com/rileyhilliard/sshman/internal/lock"
	"github.com/rileyhilliard/sshman/pkg/sshutil"
)

// DeployResult is a deployment report plus its human-readable lines.
type DeployResult struct {
	deploy.Report
	Lines []string `json:"lines"`
}

// Deploy puts files in place on server. The server's sudo_password is used
// when a step needs sudo and no password was passed.
func (s *Service) Deploy(ctx context.Context, server string, files []deploy.FilePair, opts deploy.Options) (DeployResult, error) {
	rec, err := s.resolve(server)
	if err != nil {
		return DeployResult{}, err
	}
	if opts.FallbackSudoPassword == "" {
		opts.FallbackSudoPassword = rec.SudoPassword
	}

	pairs := make([]deploy.FilePair, len(files))
	for i, f := range files {
		pairs[i] = deploy.FilePair{Local: config.ExpandTilde(f.Local), Remote: f.Remote}
	}

	session, err := s.connect(ctx, rec)
	if err != nil {
		return DeployResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.settings.CommandTimeout)
	defer cancel()

	held, err := lock.Acquire(ctx, session, rec.Name, s.lockConfig(), lock.NewInfo("deploy"))
	if err != nil {
		s.fireError(ctx, rec.Name, "deploy", err)
		return DeployResult{}, err
	}
	defer s.release(ctx, held)

	report, err := s.deployer.Deploy(ctx, session, rec.Name, pairs, opts)
	return DeployResult{Report: report, Lines: report.Lines()}, err
}

func (s *Service) lockConfig() lock.Config {
	return lock.Config{Timeout: s.settings.LockTimeout, Stale: s.settings.LockStale}
}

// release drops a deploy lock even when ctx is already done.
func (s *Service) release(ctx context.Context, held *lock.Lock) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.ConnectTimeout)
	defer cancel()
	if err := held.Release(ctx); err != nil {
		s.log.Warn("couldn't release %s: %s", held.Dir, errors.OneLine(err))
	}
}

// UnlockResult is the response of Unlock.
type UnlockResult struct {
	Server  string `json:"server"`
	Holder  string `json:"holder,omitempty"`
	Message string `json:"message"`
}

// Unlock removes a deploy lock left behind on server by a process that died.
func (s *Service) Unlock(ctx context.Context, server string) (UnlockResult, error) {
	rec, err := s.resolve(server)
	if err != nil {
		return UnlockResult{}, err
	}
	session, err := s.connect(ctx, rec)
	if err != nil {
		return UnlockResult{}, err
	}

	res := UnlockResult{Server: rec.Name}
	res.Holder, err = lock.ForceRelease(ctx, session, rec.Name, "")
	if err != nil {
		return res, err
	}
	if res.Holder == "" {
		res.Message = fmt.Sprintf("No deploy lock held on '%s'", rec.Name)
	} else {
		res.Message = fmt.Sprintf("Released deploy lock on '%s' held by %s", rec.Name, res.Holder)
	}
	return res, nil
}

// Plan returns the strategies Deploy would run, without connecting.
func (s *Service) Plan(files []deploy.FilePair, opts deploy.Options) ([]deploy.Strategy, error) {
	plans := make([]deploy.Strategy, 0, len(files))
	for _, f := range files {
		strategy, err := deploy.BuildStrategy(f.Remote, opts)
		if err != nil {
			return nil, err
		}
		plans = append(plans, strategy)
	}
	return plans, nil
}

// ParseFilePair splits "local:remote". The last colon separates the two, so
// Windows-style local paths keep their drive letter.
func ParseFilePair(arg string) (deploy.FilePair, error) {
	i := strings.LastIndex(arg, ":")
	if i <= 0 || i == len(arg)-1 {
		return deploy.FilePair{}, errors.New(errors.ErrDeploy,
			fmt.Sprintf("Invalid file pair %q", arg),
			"Use local:remote, e.g. ./dist/index.html:/var/www/html/index.html")
	}
	return deploy.FilePair{Local: arg[:i], Remote: arg[i+1:]}, nil
}

// ConnectionReport is the result of TestConnection.
type ConnectionReport struct {
	Server       string `json:"server"`
	Address      string `json:"address"`
	TCPLatencyMs int64  `json:"tcpLatencyMs"`
	ConnectMs    int64  `json:"connectMs"`
	System       string `json:"system"`
	Success      bool   `json:"success"`
}

// TestConnection checks the port is reachable, opens a fresh SSH session and
// runs uname -a.
func (s *Service) TestConnection(ctx context.Context, server string) (ConnectionReport, error) {
	rec, err := s.resolve(server)
	if err != nil {
		return ConnectionReport{}, err
	}

	report := ConnectionReport{
		Server:  rec.Name,
		Address: sshutil.ResolveAddress(host.TargetFor(rec)),
	}

	tcp, err := host.ProbeTCP(ctx, report.Address, s.settings.ConnectTimeout)
	if err != nil {
		code := errors.ErrSSH
		reason := host.Categorize(err)
		var probeErr *host.ProbeError
		if stderrors.As(err, &probeErr) {
			reason = probeErr.Reason
		}
		if reason == host.FailTimeout {
			code = errors.ErrTimeout
		}
		return report, errors.WrapWithCode(err, code,
			fmt.Sprintf("Can't reach '%s' at %s: %s", rec.Name, report.Address, reason),
			"Check the host is up and the SSH port is open")
	}
	report.TCPLatencyMs = tcp.Milliseconds()

	s.registry.Close(rec.Name)
	start := time.Now()
	session, err := s.connect(ctx, rec)
	if err != nil {
		return report, err
	}
	report.ConnectMs = time.Since(start).Milliseconds()

	res, err := s.run(ctx, session, rec, "uname -a")
	if err != nil {
		return report, err
	}
	report.System = strings.TrimSpace(res.Stdout)
	report.Success = res.Success()
	return report, nil
}
