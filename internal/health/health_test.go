package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redforge/riskscan/internal/store"
)

type fakeProber struct {
	version string
	err     error
}

func (p *fakeProber) Version(context.Context) (string, error) {
	return p.version, p.err
}

type fakeResolver struct {
	addrs []string
	err   error
}

func (r *fakeResolver) LookupHost(context.Context, string) ([]string, error) {
	return r.addrs, r.err
}

func newTestChecker() *Checker {
	c := NewChecker(
		&fakeProber{version: "Nmap version 7.95"},
		store.NewMemoryStore(),
		&fakeResolver{addrs: []string{"8.8.8.8"}},
	)
	c.statfs = func(string) (uint64, error) { return 10 * 1024 * 1024 * 1024, nil }
	return c
}

func checkByName(t *testing.T, report Report, name string) CheckResult {
	t.Helper()
	for _, check := range report.Checks {
		if check.Name == name {
			return check
		}
	}
	t.Fatalf("no check named %q", name)
	return CheckResult{}
}

func TestRunAllHealthy(t *testing.T) {
	report := newTestChecker().Run(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	require.Len(t, report.Checks, 4)
	for _, check := range report.Checks {
		assert.Equal(t, StatusHealthy, check.Status, check.Name)
	}
	assert.Equal(t, "Nmap version 7.95", checkByName(t, report, "scanner_binary").Message)
}

func TestMissingScannerIsFatal(t *testing.T) {
	c := newTestChecker()
	c.prober = &fakeProber{err: errors.New(`scanner binary "nmap" not found`)}

	report := c.Run(context.Background())

	assert.Equal(t, StatusError, report.Status)
	scanner := checkByName(t, report, "scanner_binary")
	assert.Equal(t, StatusError, scanner.Status)
	assert.NotEmpty(t, scanner.Recommendation)
}

func TestDNSFailureIsOnlyAWarning(t *testing.T) {
	c := newTestChecker()
	c.resolver = &fakeResolver{err: errors.New("no servers could be reached")}

	report := c.Run(context.Background())

	assert.Equal(t, StatusWarning, report.Status, "IP targets still scan without DNS")
	assert.Equal(t, StatusWarning, checkByName(t, report, "dns").Status)
}

func TestLowDiskIsAWarning(t *testing.T) {
	c := newTestChecker()
	c.statfs = func(string) (uint64, error) { return 100 * 1024 * 1024, nil }

	report := c.Run(context.Background())

	assert.Equal(t, StatusWarning, report.Status)
	disk := checkByName(t, report, "disk")
	assert.Equal(t, StatusWarning, disk.Status)
	assert.Contains(t, disk.Message, "100 MB free")
}

func TestErrorOutranksWarning(t *testing.T) {
	c := newTestChecker()
	c.resolver = nil
	c.prober = &fakeProber{err: errors.New("probe failed")}

	report := c.Run(context.Background())
	assert.Equal(t, StatusError, report.Status)
}
