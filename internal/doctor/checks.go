// Package doctor runs diagnostic checks over the sshman state home and the
// configured servers.
package doctor

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// CheckStatus is the outcome of a check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// CheckResult contains the outcome of running a check.
type CheckResult struct {
	Name       string      `json:"name"`
	Category   string      `json:"category"`
	Status     CheckStatus `json:"status"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// Check is one diagnostic.
type Check interface {
	// Name returns the check's identifier.
	Name() string

	// Category groups related checks: STATE, SERVERS or HOSTS.
	Category() string

	// Run executes the check.
	Run(ctx context.Context) CheckResult
}

// RunAll executes checks one after another.
func RunAll(ctx context.Context, checks []Check) []CheckResult {
	out := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		out = append(out, run(ctx, c))
	}
	return out
}

// RunAllParallel executes checks concurrently. Results keep input order.
func RunAllParallel(ctx context.Context, checks []Check) []CheckResult {
	out := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = run(ctx, checks[i])
		}()
	}
	wg.Wait()
	return out
}

func run(ctx context.Context, c Check) CheckResult {
	r := c.Run(ctx)
	if r.Name == "" {
		r.Name = c.Name()
	}
	r.Category = c.Category()
	return r
}

// Issues returns the warn and fail results.
func Issues(results []CheckResult) []CheckResult {
	var out []CheckResult
	for _, r := range results {
		if r.Status != StatusPass {
			out = append(out, r)
		}
	}
	return out
}

// HasFailures reports whether any check failed outright.
func HasFailures(results []CheckResult) bool {
	return slices.ContainsFunc(results, func(r CheckResult) bool {
		return r.Status == StatusFail
	})
}

// Summary is the closing line of a doctor run.
func Summary(results []CheckResult) string {
	switch n := len(Issues(results)); n {
	case 0:
		return "Everything looks good"
	case 1:
		return "1 issue found"
	default:
		return fmt.Sprintf("%d issues found", n)
	}
}
