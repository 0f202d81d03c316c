package scanning

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Ullaakut/nmap/v3"
)

// highRiskPorts flag commonly attacked services when found open.
var highRiskPorts = map[int]string{
	21:    "FTP",
	22:    "SSH",
	23:    "Telnet",
	25:    "SMTP",
	53:    "DNS",
	80:    "HTTP",
	110:   "POP3",
	135:   "RPC",
	139:   "NetBIOS",
	143:   "IMAP",
	389:   "LDAP",
	443:   "HTTPS",
	445:   "SMB",
	993:   "IMAPS",
	995:   "POP3S",
	1433:  "MSSQL",
	1521:  "Oracle",
	3306:  "MySQL",
	3389:  "RDP",
	5432:  "PostgreSQL",
	5900:  "VNC",
	6379:  "Redis",
	27017: "MongoDB",
}

// vulnerableServices are service names that indicate inherently risky
// protocols regardless of version.
var vulnerableServices = map[string]bool{
	"ftp":               true,
	"telnet":            true,
	"rsh":               true,
	"rlogin":            true,
	"finger":            true,
	"netbios-ssn":       true,
	"microsoft-ds":      true,
	"msrpc":             true,
	"ms-wbt-server":     true,
	"terminal-services": true,
}

var cvePattern = regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,}`)

// Parser converts raw scanner XML into the normalized result model. It
// never panics on malformed input: structural failures produce an empty
// result with the failure recorded in ParseErrors.
type Parser struct{}

// NewParser creates a result parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes one executor run's raw output.
func (p *Parser) Parse(raw []byte) ParsedScanResult {
	var run nmap.Run
	if err := nmap.Parse(raw, &run); err != nil {
		return ParsedScanResult{
			Hosts:       []HostResult{},
			Summary:     Summary{ServicesDetected: []string{}},
			ParseErrors: []string{fmt.Sprintf("XML parsing error: %v", err)},
		}
	}

	result := ParsedScanResult{
		ScanInfo: ScanInfo{
			ToolVersion: run.Version,
			Args:        run.Args,
			StartTime:   run.StartStr,
			Elapsed:     float64(run.Stats.Finished.Elapsed),
			HostsUp:     run.Stats.Hosts.Up,
			HostsDown:   run.Stats.Hosts.Down,
			HostsTotal:  run.Stats.Hosts.Total,
		},
		Hosts: []HostResult{},
	}

	for i := range run.Hosts {
		host, err := normalizeHost(&run.Hosts[i])
		if err != nil {
			// Per-host failures degrade fidelity, never abort the batch.
			result.ParseErrors = append(result.ParseErrors, fmt.Sprintf("error parsing host: %v", err))
			continue
		}
		result.Hosts = append(result.Hosts, host)
	}

	result.Summary = summarize(result.Hosts)
	return result
}

// normalizeHost flattens one decoded host into the typed model.
func normalizeHost(h *nmap.Host) (HostResult, error) {
	host := HostResult{
		Status: "unknown",
	}
	if h.Status.State != "" {
		host.Status = h.Status.State
	}
	host.Reason = h.Status.Reason

	for _, addr := range h.Addresses {
		switch addr.AddrType {
		case "ipv4":
			host.IP = addr.Addr
		case "mac":
			host.MACAddress = addr.Addr
			host.Vendor = addr.Vendor
		}
	}

	if len(h.Hostnames) > 0 {
		host.Hostname = h.Hostnames[0].Name
	}

	for i := range h.Ports {
		host.Ports = append(host.Ports, normalizePort(&h.Ports[i]))
	}

	for i := range h.HostScripts {
		host.Scripts = append(host.Scripts, normalizeScript(&h.HostScripts[i]))
	}

	for i := range h.OS.Matches {
		match := &h.OS.Matches[i]
		guess := OSGuess{
			Name:     match.Name,
			Accuracy: match.Accuracy,
		}
		for _, class := range match.Classes {
			guess.Classes = append(guess.Classes, OSClass{
				Type:       class.Type,
				Vendor:     class.Vendor,
				Family:     class.Family,
				Generation: class.OSGeneration,
				Accuracy:   class.Accuracy,
			})
		}
		host.OSGuesses = append(host.OSGuesses, guess)
	}

	return host, nil
}

func normalizePort(p *nmap.Port) PortResult {
	port := PortResult{
		Port:       int(p.ID),
		Protocol:   p.Protocol,
		State:      p.State.State,
		Reason:     p.State.Reason,
		Service:    p.Service.Name,
		Product:    p.Service.Product,
		Version:    p.Service.Version,
		ExtraInfo:  p.Service.ExtraInfo,
		Confidence: p.Service.Confidence,
	}
	if port.Protocol == "" {
		port.Protocol = "tcp"
	}
	if port.State == "" {
		port.State = "unknown"
	}
	for i := range p.Scripts {
		port.Scripts = append(port.Scripts, normalizeScript(&p.Scripts[i]))
	}
	return port
}

func normalizeScript(s *nmap.Script) ScriptFinding {
	finding := ScriptFinding{
		ID:     s.ID,
		Output: s.Output,
	}
	if len(s.Elements) > 0 {
		finding.Elements = make(map[string]string, len(s.Elements))
		for _, elem := range s.Elements {
			if elem.Key != "" {
				finding.Elements[elem.Key] = elem.Value
			}
		}
	}
	return finding
}

// summarize computes aggregate counters and the derived run risk score.
func summarize(hosts []HostResult) Summary {
	summary := Summary{ServicesDetected: []string{}}
	summary.TotalHosts = len(hosts)

	services := make(map[string]bool)
	var riskFactors []string

	for _, host := range hosts {
		if host.Status == "up" {
			summary.HostsUp++
		} else {
			summary.HostsDown++
		}

		for _, port := range host.Ports {
			summary.TotalPortsScanned++
			switch port.State {
			case "open":
				summary.OpenPorts++
			case "closed":
				summary.ClosedPorts++
			case "filtered":
				summary.FilteredPorts++
			}

			if port.Service != "" {
				services[port.Service] = true
				if vulnerableServices[strings.ToLower(port.Service)] {
					summary.VulnerabilitiesFound++
					riskFactors = append(riskFactors, fmt.Sprintf("vulnerable service: %s", port.Service))
				}
			}

			if name, ok := highRiskPorts[port.Port]; ok && port.State == "open" {
				riskFactors = append(riskFactors, fmt.Sprintf("high-risk port open: %d (%s)", port.Port, name))
			}

			for _, script := range port.Scripts {
				if isVulnerabilityScript(script.ID) {
					summary.VulnerabilitiesFound++
					riskFactors = append(riskFactors, fmt.Sprintf("vulnerability script: %s", script.ID))
				}
			}
		}

		for _, script := range host.Scripts {
			if isVulnerabilityScript(script.ID) {
				summary.VulnerabilitiesFound++
				riskFactors = append(riskFactors, fmt.Sprintf("vulnerability script: %s", script.ID))
			}
		}
	}

	for service := range services {
		summary.ServicesDetected = append(summary.ServicesDetected, service)
	}
	sort.Strings(summary.ServicesDetected)

	summary.RiskScore = calculateRiskScore(summary, len(riskFactors))
	return summary
}

// Summarize recomputes aggregate counters and the risk score over a
// combined host set, used when one scan covers multiple targets and the
// score must reflect the accumulated counts rather than the last target's.
func Summarize(hosts []HostResult) Summary {
	return summarize(hosts)
}

func isVulnerabilityScript(id string) bool {
	lower := strings.ToLower(id)
	return strings.Contains(lower, "vuln") || strings.Contains(lower, "cve")
}

// calculateRiskScore derives a 0-10 score from four capped components:
// open-port density, vulnerability indicators, service diversity, and
// residual risk factors.
func calculateRiskScore(summary Summary, riskFactorCount int) float64 {
	score := 0.0

	if summary.OpenPorts > 0 {
		score += capRatio(float64(summary.OpenPorts)/20.0) * 3.0
	}
	if summary.VulnerabilitiesFound > 0 {
		score += capRatio(float64(summary.VulnerabilitiesFound)/5.0) * 4.0
	}
	if n := len(summary.ServicesDetected); n > 0 {
		score += capRatio(float64(n)/10.0) * 2.0
	}
	score += capRatio(float64(riskFactorCount)/10.0) * 1.0

	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func capRatio(ratio float64) float64 {
	if ratio > 1.0 {
		return 1.0
	}
	return ratio
}

// ExtractCVEs scans all script outputs for CVE identifiers and returns the
// sorted unique set. Duplicate mentions collapse regardless of case.
func ExtractCVEs(result ParsedScanResult) []string {
	seen := make(map[string]bool)
	for _, host := range result.Hosts {
		for _, script := range host.Scripts {
			for _, match := range cvePattern.FindAllString(script.Output, -1) {
				seen[strings.ToUpper(match)] = true
			}
		}
		for _, port := range host.Ports {
			for _, script := range port.Scripts {
				for _, match := range cvePattern.FindAllString(script.Output, -1) {
					seen[strings.ToUpper(match)] = true
				}
			}
		}
	}

	cves := make([]string, 0, len(seen))
	for cve := range seen {
		cves = append(cves, cve)
	}
	sort.Strings(cves)
	return cves
}
