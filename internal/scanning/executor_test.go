package scanning

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilding(t *testing.T) {
	e := NewExecutor("nmap", newTestValidator())

	tests := []struct {
		profile Profile
		want    string
	}{
		{ProfileQuick, "nmap -sT -Pn -p1-1024 -T3 --min-rate 100 -oX - 192.168.1.1"},
		{ProfileFull, "nmap -sT -Pn -p- -T4 -oX - 192.168.1.1"},
		{ProfileServiceDetection, "nmap -sT -sV -Pn -p1-65535 -T4 -oX - 192.168.1.1"},
		{ProfileVulnScan, "nmap -sT -sV -sC -Pn -p1-1024 -T3 --script vuln -oX - 192.168.1.1"},
		{ProfileUDPScan, "nmap -sU -Pn -p53,67,68,69,123,161,162,500,514,1434 -T4 -oX - 192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			argv, err := e.Command("192.168.1.1", tt.profile)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.Join(argv, " "))
		})
	}
}

func TestCommandUnknownProfile(t *testing.T) {
	e := NewExecutor("nmap", newTestValidator())

	_, err := e.Command("192.168.1.1", Profile("bogus"))
	assert.Error(t, err)
}

func TestExecuteToolNotFound(t *testing.T) {
	e := NewExecutor("definitely-not-a-scanner-binary", newTestValidator())

	result := e.Execute(context.Background(), "192.168.1.1", ProfileQuick)
	assert.Equal(t, ExecutionToolNotFound, result.Status)
	assert.Contains(t, result.ErrorMessage, "not found")
}

func TestExecuteRejectsInvalidTarget(t *testing.T) {
	// "true" exists everywhere and would exit 0, but validation must stop
	// execution before any process is spawned.
	e := NewExecutor("true", newTestValidator())

	result := e.Execute(context.Background(), "192.168.1.1; reboot", ProfileQuick)
	assert.Equal(t, ExecutionInvalidTarget, result.Status)
	assert.Contains(t, result.ErrorMessage, "invalid target")
	assert.Empty(t, result.RawOutput)
}

func TestProfileTimeouts(t *testing.T) {
	expected := map[Profile]int{
		ProfileQuick:            300,
		ProfileFull:             1800,
		ProfileServiceDetection: 2400,
		ProfileVulnScan:         1800,
		ProfileUDPScan:          900,
	}
	for profile, seconds := range expected {
		spec, ok := profile.Spec()
		require.True(t, ok)
		assert.Equal(t, float64(seconds), spec.Timeout.Seconds(), "profile %s", profile)
	}
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile("vuln_scan")
	require.NoError(t, err)
	assert.Equal(t, ProfileVulnScan, p)

	_, err = ParseProfile("stealth")
	assert.Error(t, err)
}
