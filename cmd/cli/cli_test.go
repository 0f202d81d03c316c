package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redforge/riskscan/internal/scanning"
)

func TestRootRegistersSubcommands(t *testing.T) {
	expected := []string{"serve", "scan", "validate", "health", "apikey"}

	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, names[name], "missing subcommand %s", name)
	}
}

func TestVersionString(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-09-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2026-09-01)", versionString())
	assert.Equal(t, versionString(), rootCmd.Version)
}

func TestProfileNames(t *testing.T) {
	names := profileNames()
	require.NotEmpty(t, names)
	assert.Contains(t, names, "quick")
	assert.Contains(t, names, "vuln_scan")
}

func TestParseTargetOutput(t *testing.T) {
	parser := scanning.NewParser()

	t.Run("well-formed output yields hosts without warnings", func(t *testing.T) {
		xml := `<?xml version="1.0"?>
<nmaprun scanner="nmap" version="7.95">
<host><status state="up" reason="syn-ack"/>
<address addr="10.0.0.1" addrtype="ipv4"/>
<ports><port protocol="tcp" portid="80"><state state="open" reason="syn-ack"/><service name="http"/></port></ports>
</host>
<runstats><finished elapsed="1.00"/><hosts up="1" down="0" total="1"/></runstats>
</nmaprun>`

		var warnings bytes.Buffer
		hosts := parseTargetOutput(parser, "10.0.0.1", []byte(xml), &warnings)
		require.Len(t, hosts, 1)
		assert.Equal(t, "10.0.0.1", hosts[0].IP)
		assert.Empty(t, warnings.String())
	})

	t.Run("broken output warns instead of failing", func(t *testing.T) {
		var warnings bytes.Buffer
		hosts := parseTargetOutput(parser, "10.0.0.2", []byte("<nmaprun><host"), &warnings)
		assert.Empty(t, hosts)
		assert.Contains(t, warnings.String(), "10.0.0.2")
	})
}

func TestScanRequiresTargets(t *testing.T) {
	flag := scanCmd.Flags().Lookup("targets")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Annotations, "cobra_annotation_bash_completion_one_required_flag")
}
