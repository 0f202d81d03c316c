package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" args="nmap -sT -Pn -oX - 192.168.1.0/30" start="1756700000" startstr="Mon Sep  1 10:00:00 2026" version="7.95" xmloutputversion="1.05">
<scaninfo type="connect" protocol="tcp" numservices="1024" services="1-1024"/>
<host starttime="1756700001" endtime="1756700050">
<status state="up" reason="syn-ack"/>
<address addr="192.168.1.1" addrtype="ipv4"/>
<address addr="AA:BB:CC:DD:EE:FF" addrtype="mac" vendor="Netgear"/>
<hostnames>
<hostname name="router.lan" type="PTR"/>
</hostnames>
<ports>
<port protocol="tcp" portid="21"><state state="open" reason="syn-ack"/><service name="ftp" product="vsftpd" version="2.3.4" conf="10"/></port>
<port protocol="tcp" portid="80"><state state="open" reason="syn-ack"/><service name="http" product="nginx" version="1.24.0" conf="10"/>
<script id="http-vuln-cve2021-41773" output="VULNERABLE: CVE-2021-41773 path traversal"/>
</port>
<port protocol="tcp" portid="443"><state state="open" reason="syn-ack"/><service name="https" conf="3"/></port>
<port protocol="tcp" portid="22"><state state="closed" reason="conn-refused"/><service name="ssh"/></port>
</ports>
<hostscript>
<script id="smb-vuln-ms17-010" output="Host is vulnerable to MS17-010 (cve-2017-0143). See also CVE-2021-41773.">
<elem key="state">VULNERABLE</elem>
</script>
</hostscript>
<os>
<osmatch name="Linux 5.4" accuracy="95" line="100">
<osclass type="general purpose" vendor="Linux" osfamily="Linux" osgen="5.X" accuracy="95"/>
</osmatch>
</os>
</host>
<host starttime="1756700001" endtime="1756700002">
<status state="down" reason="no-response"/>
<address addr="192.168.1.2" addrtype="ipv4"/>
</host>
<runstats><finished time="1756700060" timestr="Mon Sep  1 10:01:00 2026" elapsed="60.00" summary="done" exit="success"/><hosts up="1" down="1" total="2"/></runstats>
</nmaprun>`

func TestParseWellFormedOutput(t *testing.T) {
	p := NewParser()
	result := p.Parse([]byte(sampleXML))

	require.Empty(t, result.ParseErrors)
	require.Len(t, result.Hosts, 2)

	t.Run("scan info", func(t *testing.T) {
		assert.Equal(t, "7.95", result.ScanInfo.ToolVersion)
		assert.Equal(t, 1, result.ScanInfo.HostsUp)
		assert.Equal(t, 1, result.ScanInfo.HostsDown)
		assert.InDelta(t, 60.0, result.ScanInfo.Elapsed, 0.01)
	})

	t.Run("host identity", func(t *testing.T) {
		host := result.Hosts[0]
		assert.Equal(t, "192.168.1.1", host.IP)
		assert.Equal(t, "router.lan", host.Hostname)
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", host.MACAddress)
		assert.Equal(t, "Netgear", host.Vendor)
		assert.Equal(t, "up", host.Status)
		assert.Equal(t, "syn-ack", host.Reason)

		down := result.Hosts[1]
		assert.Equal(t, "down", down.Status)
		assert.Empty(t, down.Ports)
	})

	t.Run("ports and services", func(t *testing.T) {
		host := result.Hosts[0]
		require.Len(t, host.Ports, 4)

		ftp := host.Ports[0]
		assert.Equal(t, 21, ftp.Port)
		assert.Equal(t, "tcp", ftp.Protocol)
		assert.Equal(t, "open", ftp.State)
		assert.Equal(t, "ftp", ftp.Service)
		assert.Equal(t, "vsftpd", ftp.Product)
		assert.Equal(t, "2.3.4", ftp.Version)
		assert.Equal(t, 10, ftp.Confidence)
	})

	t.Run("scripts", func(t *testing.T) {
		host := result.Hosts[0]
		require.Len(t, host.Scripts, 1)
		assert.Equal(t, "smb-vuln-ms17-010", host.Scripts[0].ID)
		assert.Equal(t, "VULNERABLE", host.Scripts[0].Elements["state"])

		require.Len(t, host.Ports[1].Scripts, 1)
		assert.Equal(t, "http-vuln-cve2021-41773", host.Ports[1].Scripts[0].ID)
	})

	t.Run("os guesses", func(t *testing.T) {
		host := result.Hosts[0]
		require.Len(t, host.OSGuesses, 1)
		assert.Equal(t, "Linux 5.4", host.OSGuesses[0].Name)
		assert.Equal(t, 95, host.OSGuesses[0].Accuracy)
		require.Len(t, host.OSGuesses[0].Classes, 1)
		assert.Equal(t, "Linux", host.OSGuesses[0].Classes[0].Family)
		assert.Equal(t, "5.X", host.OSGuesses[0].Classes[0].Generation)
	})

	t.Run("summary", func(t *testing.T) {
		s := result.Summary
		assert.Equal(t, 2, s.TotalHosts)
		assert.Equal(t, 1, s.HostsUp)
		assert.Equal(t, 1, s.HostsDown)
		assert.Equal(t, 4, s.TotalPortsScanned)
		assert.Equal(t, 3, s.OpenPorts)
		assert.Equal(t, 1, s.ClosedPorts)
		assert.GreaterOrEqual(t, s.VulnerabilitiesFound, 1)
		assert.Contains(t, s.ServicesDetected, "ftp")
		assert.Contains(t, s.ServicesDetected, "http")
		assert.Greater(t, s.RiskScore, 0.0)
		assert.LessOrEqual(t, s.RiskScore, 10.0)
	})
}

func TestParseStructurallyBrokenInput(t *testing.T) {
	p := NewParser()

	for name, payload := range map[string]string{
		"truncated": "<nmaprun><host><status state=",
		"not xml":   "command not found: nmap",
		"empty":     "",
	} {
		t.Run(name, func(t *testing.T) {
			result := p.Parse([]byte(payload))
			assert.Empty(t, result.Hosts)
			assert.Equal(t, 0, result.Summary.TotalHosts)
			assert.Equal(t, 0.0, result.Summary.RiskScore)
			assert.NotEmpty(t, result.ParseErrors)
		})
	}
}

func TestRiskScoreComponents(t *testing.T) {
	t.Run("saturates at component caps", func(t *testing.T) {
		summary := Summary{
			OpenPorts:            100,
			VulnerabilitiesFound: 50,
			ServicesDetected:     make([]string, 40),
		}
		score := calculateRiskScore(summary, 100)
		assert.Equal(t, 10.0, score)
	})

	t.Run("zero inputs give zero score", func(t *testing.T) {
		assert.Equal(t, 0.0, calculateRiskScore(Summary{ServicesDetected: []string{}}, 0))
	})

	t.Run("partial components", func(t *testing.T) {
		summary := Summary{
			OpenPorts:        10, // half of the 20-port cap -> 1.5
			ServicesDetected: make([]string, 5),
		}
		// services: 5/10 * 2.0 = 1.0; risk factors 0
		assert.InDelta(t, 2.5, calculateRiskScore(summary, 0), 0.001)
	})
}

func TestExtractCVEs(t *testing.T) {
	p := NewParser()
	result := p.Parse([]byte(sampleXML))

	cves := ExtractCVEs(result)
	assert.Equal(t, []string{"CVE-2017-0143", "CVE-2021-41773"}, cves,
		"duplicates across scripts collapse to one sorted unique list")
}

func TestExtractCVEsEmpty(t *testing.T) {
	assert.Empty(t, ExtractCVEs(ParsedScanResult{}))
}
