package host

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// FailReason categorizes why a connection attempt failed.
type FailReason int

const (
	FailUnknown FailReason = iota
	FailTimeout
	FailRefused
	FailUnreachable
	FailAuth
	FailHostKey
)

// String returns a human-readable description of the failure reason.
func (r FailReason) String() string {
	switch r {
	case FailTimeout:
		return "connection timed out"
	case FailRefused:
		return "connection refused"
	case FailUnreachable:
		return "host unreachable"
	case FailAuth:
		return "authentication failed"
	case FailHostKey:
		return "host key verification failed"
	default:
		return "unknown error"
	}
}

// ProbeError is a failed probe with its categorized reason.
type ProbeError struct {
	Address string
	Reason  FailReason
	Cause   error
}

func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("probe %s failed: %s (%v)", e.Address, e.Reason, e.Cause)
	}
	return fmt.Sprintf("probe %s failed: %s", e.Address, e.Reason)
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// ProbeTCP checks that address accepts TCP connections and returns the time
// the connect took. It does no SSH handshake.
func ProbeTCP(ctx context.Context, address string, timeout time.Duration) (time.Duration, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, &ProbeError{Address: address, Reason: Categorize(err), Cause: err}
	}
	conn.Close() //nolint:errcheck // Probe only

	return time.Since(start), nil
}

// Categorize maps a dial or handshake error onto a FailReason by its text.
func Categorize(err error) FailReason {
	if err == nil {
		return FailUnknown
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded"):
		return FailTimeout
	case strings.Contains(msg, "connection refused"):
		return FailRefused
	case strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "host is down") ||
		strings.Contains(msg, "no such host"):
		return FailUnreachable
	case strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "authentication failed"):
		return FailAuth
	case strings.Contains(msg, "host key"):
		return FailHostKey
	}
	return FailUnknown
}
