// Package health runs readiness diagnostics for the scan service: scanner
// binary availability, store connectivity, DNS resolution, and disk
// capacity. Checks run concurrently and roll up into an overall status.
package health

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/scanning"
	"github.com/redforge/riskscan/internal/store"
)

// Status grades one check or the whole report.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// CheckResult is the outcome of one diagnostic.
type CheckResult struct {
	Name           string        `json:"name"`
	Status         Status        `json:"status"`
	Message        string        `json:"message"`
	Recommendation string        `json:"recommendation,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Report aggregates all diagnostics. The overall status is the worst
// individual result.
type Report struct {
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// VersionProber probes the scanner binary. Satisfied by scanning.Executor.
type VersionProber interface {
	Version(ctx context.Context) (string, error)
}

const (
	checkTimeout = 10 * time.Second

	// minDiskBytes is the free-space floor below which scan output
	// persistence becomes unreliable.
	minDiskBytes = 500 * 1024 * 1024

	defaultProbeHostname = "dns.google"
	defaultDiskPath      = "/"
)

// Checker runs the readiness diagnostics.
type Checker struct {
	prober   VersionProber
	store    store.Store
	resolver scanning.Resolver
	logger   *logging.Logger

	// overridable for tests
	diskPath  string
	probeHost string
	statfs    func(path string) (free uint64, err error)
}

// NewChecker creates a checker over the given collaborators. A nil
// resolver skips the DNS check.
func NewChecker(prober VersionProber, st store.Store, resolver scanning.Resolver) *Checker {
	return &Checker{
		prober:    prober,
		store:     st,
		resolver:  resolver,
		logger:    logging.Default().WithComponent("health"),
		diskPath:  defaultDiskPath,
		probeHost: defaultProbeHostname,
		statfs:    freeBytes,
	}
}

// Run executes all diagnostics concurrently and returns the rolled-up
// report. Individual check failures never fail the run itself.
func (c *Checker) Run(ctx context.Context) Report {
	runCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	checks := make([]CheckResult, 4)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		checks[0] = c.checkScanner(gctx)
		return nil
	})
	g.Go(func() error {
		checks[1] = c.checkStore(gctx)
		return nil
	})
	g.Go(func() error {
		checks[2] = c.checkDNS(gctx)
		return nil
	})
	g.Go(func() error {
		checks[3] = c.checkDisk()
		return nil
	})

	// Checks report failure through their result, never through the group.
	_ = g.Wait()

	report := Report{
		Status:    overall(checks),
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}

	if report.Status != StatusHealthy {
		c.logger.Warn("readiness degraded", "status", report.Status)
	}
	return report
}

func (c *Checker) checkScanner(ctx context.Context) CheckResult {
	start := time.Now()
	version, err := c.prober.Version(ctx)
	if err != nil {
		return CheckResult{
			Name:           "scanner_binary",
			Status:         StatusError,
			Message:        fmt.Sprintf("scanner probe failed: %v", err),
			Recommendation: "install nmap or point scanning.binary at an nmap-compatible scanner",
			Duration:       time.Since(start),
		}
	}
	return CheckResult{
		Name:     "scanner_binary",
		Status:   StatusHealthy,
		Message:  version,
		Duration: time.Since(start),
	}
}

func (c *Checker) checkStore(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{
			Name:           "store",
			Status:         StatusError,
			Message:        fmt.Sprintf("store unreachable: %v", err),
			Recommendation: "verify store connectivity and credentials",
			Duration:       time.Since(start),
		}
	}
	return CheckResult{
		Name:     "store",
		Status:   StatusHealthy,
		Message:  "store reachable",
		Duration: time.Since(start),
	}
}

// checkDNS degrades to a warning: scans against IP literals work without
// name resolution.
func (c *Checker) checkDNS(ctx context.Context) CheckResult {
	start := time.Now()
	if c.resolver == nil {
		return CheckResult{
			Name:     "dns",
			Status:   StatusWarning,
			Message:  "no resolver configured, hostname targets will not resolve",
			Duration: time.Since(start),
		}
	}

	addrs, err := c.resolver.LookupHost(ctx, c.probeHost)
	if err != nil || len(addrs) == 0 {
		return CheckResult{
			Name:           "dns",
			Status:         StatusWarning,
			Message:        fmt.Sprintf("could not resolve %s: %v", c.probeHost, err),
			Recommendation: "check /etc/resolv.conf; hostname targets will be scanned without resolution",
			Duration:       time.Since(start),
		}
	}
	return CheckResult{
		Name:     "dns",
		Status:   StatusHealthy,
		Message:  fmt.Sprintf("resolved %s to %s", c.probeHost, addrs[0]),
		Duration: time.Since(start),
	}
}

func (c *Checker) checkDisk() CheckResult {
	start := time.Now()
	free, err := c.statfs(c.diskPath)
	if err != nil {
		return CheckResult{
			Name:     "disk",
			Status:   StatusWarning,
			Message:  fmt.Sprintf("could not stat %s: %v", c.diskPath, err),
			Duration: time.Since(start),
		}
	}
	if free < minDiskBytes {
		return CheckResult{
			Name:           "disk",
			Status:         StatusWarning,
			Message:        fmt.Sprintf("only %d MB free on %s", free/(1024*1024), c.diskPath),
			Recommendation: "free disk space; scan results may fail to persist",
			Duration:       time.Since(start),
		}
	}
	return CheckResult{
		Name:     "disk",
		Status:   StatusHealthy,
		Message:  fmt.Sprintf("%d MB free on %s", free/(1024*1024), c.diskPath),
		Duration: time.Since(start),
	}
}

func overall(checks []CheckResult) Status {
	status := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusError:
			return StatusError
		case StatusWarning:
			status = StatusWarning
		}
	}
	return status
}

func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
