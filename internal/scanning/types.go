// Package scanning implements the scan orchestration core: target
// validation, safe invocation of the external scanner process, and
// normalization of its XML output into a typed result model.
package scanning

import "time"

// Profile selects a predefined scan configuration. Only the enum chooses
// command arguments; caller input never reaches the command line except as
// the validated target itself.
type Profile string

const (
	ProfileQuick            Profile = "quick"
	ProfileFull             Profile = "full"
	ProfileServiceDetection Profile = "service_detection"
	ProfileVulnScan         Profile = "vuln_scan"
	ProfileUDPScan          Profile = "udp_scan"
)

// ExecutionStatus is the tagged outcome of one executor run.
type ExecutionStatus string

const (
	ExecutionSuccess       ExecutionStatus = "success"
	ExecutionTimeout       ExecutionStatus = "timeout"
	ExecutionError         ExecutionStatus = "error"
	ExecutionInvalidTarget ExecutionStatus = "invalid_target"
	ExecutionToolNotFound  ExecutionStatus = "tool_not_found"
)

// ExecutionResult carries the raw outcome of one scanner invocation.
// RawOutput is preserved on non-zero exit because some engines emit
// partial results before a late failure.
type ExecutionResult struct {
	Status       ExecutionStatus `json:"status"`
	RawOutput    []byte          `json:"-"`
	Stderr       string          `json:"stderr,omitempty"`
	ExitCode     int             `json:"exit_code"`
	Elapsed      time.Duration   `json:"elapsed"`
	CommandLine  string          `json:"command_line,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// TargetValidationResult is the outcome of validating a raw target spec.
type TargetValidationResult struct {
	Target      string   `json:"target"`
	IsValid     bool     `json:"is_valid"`
	Message     string   `json:"message"`
	ResolvedIPs []string `json:"resolved_ips"`
	Warnings    []string `json:"warnings"`
}

// HostResult describes one scanned host.
type HostResult struct {
	IP         string          `json:"ip,omitempty"`
	Hostname   string          `json:"hostname,omitempty"`
	MACAddress string          `json:"mac_address,omitempty"`
	Vendor     string          `json:"vendor,omitempty"`
	Status     string          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Ports      []PortResult    `json:"ports,omitempty"`
	Scripts    []ScriptFinding `json:"scripts,omitempty"`
	OSGuesses  []OSGuess       `json:"os_guesses,omitempty"`
}

// PortResult describes one scanned port on a host.
type PortResult struct {
	Port       int             `json:"port"`
	Protocol   string          `json:"protocol"`
	State      string          `json:"state"`
	Reason     string          `json:"reason,omitempty"`
	Service    string          `json:"service,omitempty"`
	Product    string          `json:"product,omitempty"`
	Version    string          `json:"version,omitempty"`
	ExtraInfo  string          `json:"extra_info,omitempty"`
	Confidence int             `json:"confidence,omitempty"`
	Scripts    []ScriptFinding `json:"scripts,omitempty"`
}

// ScriptFinding is one diagnostic script's result.
type ScriptFinding struct {
	ID       string            `json:"id"`
	Output   string            `json:"output"`
	Elements map[string]string `json:"elements,omitempty"`
}

// OSGuess is one OS-detection candidate.
type OSGuess struct {
	Name     string    `json:"name"`
	Accuracy int       `json:"accuracy"`
	Classes  []OSClass `json:"classes,omitempty"`
}

// OSClass is a nested OS classification entry.
type OSClass struct {
	Type       string `json:"type,omitempty"`
	Vendor     string `json:"vendor,omitempty"`
	Family     string `json:"family,omitempty"`
	Generation string `json:"generation,omitempty"`
	Accuracy   int    `json:"accuracy,omitempty"`
}

// Summary aggregates counters over all hosts in one executor run.
type Summary struct {
	TotalHosts           int      `json:"total_hosts"`
	HostsUp              int      `json:"hosts_up"`
	HostsDown            int      `json:"hosts_down"`
	TotalPortsScanned    int      `json:"total_ports_scanned"`
	OpenPorts            int      `json:"open_ports"`
	ClosedPorts          int      `json:"closed_ports"`
	FilteredPorts        int      `json:"filtered_ports"`
	ServicesDetected     []string `json:"services_detected"`
	VulnerabilitiesFound int      `json:"vulnerabilities_found"`
	RiskScore            float64  `json:"risk_score"`
}

// ScanInfo is the scanner's run metadata.
type ScanInfo struct {
	ToolVersion string  `json:"tool_version,omitempty"`
	Args        string  `json:"args,omitempty"`
	StartTime   string  `json:"start_time,omitempty"`
	Elapsed     float64 `json:"elapsed,omitempty"`
	HostsUp     int     `json:"hosts_up,omitempty"`
	HostsDown   int     `json:"hosts_down,omitempty"`
	HostsTotal  int     `json:"hosts_total,omitempty"`
}

// ParsedScanResult is the parser's output for one executor run. Parse
// errors are non-fatal; partial results remain usable.
type ParsedScanResult struct {
	ScanInfo    ScanInfo     `json:"scan_info"`
	Hosts       []HostResult `json:"hosts"`
	Summary     Summary      `json:"summary"`
	ParseErrors []string     `json:"parse_errors,omitempty"`
}
