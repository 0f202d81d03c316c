// Package scans implements the scan lifecycle manager. It owns the scan
// state machine, schedules background execution through the worker pool,
// and persists scans and per-host results in the document store.
package scans

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redforge/riskscan/internal/scanning"
	"github.com/redforge/riskscan/internal/store"
)

// Status is a scan lifecycle state. Terminal states admit no further
// transitions.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// cancelledMessage is the fixed message recorded on user cancellation.
const cancelledMessage = "Scan cancelled by user"

// CreateRequest is the caller-facing input for starting a scan.
// CustomOptions are recorded as opaque metadata and never reach the
// scanner command line.
type CreateRequest struct {
	Targets       string            `json:"targets" validate:"required"`
	Profile       string            `json:"profile" validate:"required"`
	CustomOptions map[string]string `json:"custom_options,omitempty"`
}

// Scan is the persisted scan aggregate.
type Scan struct {
	ID            string            `json:"id"`
	Owner         string            `json:"owner"`
	Targets       string            `json:"targets"`
	Profile       string            `json:"profile"`
	CustomOptions map[string]string `json:"custom_options,omitempty"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	CommandLines  []string          `json:"command_lines,omitempty"`

	TotalHosts           int      `json:"total_hosts"`
	HostsUp              int      `json:"hosts_up"`
	OpenPorts            int      `json:"open_ports"`
	ServicesDetected     []string `json:"services_detected,omitempty"`
	VulnerabilitiesFound int      `json:"vulnerabilities_found"`
	RiskScore            float64  `json:"risk_score"`
	ErrorMessage         string   `json:"error_message,omitempty"`
}

// Document converts the scan to its stored field map. Times serialize as
// RFC 3339 strings, so created_at ordering in the store is chronological.
func (s *Scan) Document() store.Document {
	raw, err := json.Marshal(s)
	if err != nil {
		return store.Document{}
	}
	var doc store.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return store.Document{}
	}
	return doc
}

// scanFromDocument rebuilds a scan from its stored field map.
func scanFromDocument(doc store.Document) (*Scan, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding scan document: %w", err)
	}
	var s Scan
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding scan document: %w", err)
	}
	return &s, nil
}

// hostDocument converts one parsed host result into a stored document
// linked to its scan. The document carries its own id because collection
// queries return fields only.
func hostDocument(docID, scanID string, host scanning.HostResult) store.Document {
	base := store.Document{"id": docID, "scan_id": scanID}
	raw, err := json.Marshal(host)
	if err != nil {
		return base
	}
	var doc store.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return base
	}
	doc["id"] = docID
	doc["scan_id"] = scanID
	return doc
}

// hostFromDocument rebuilds a host result from its stored field map. The
// linkage fields are not part of the host model and are dropped.
func hostFromDocument(doc store.Document) (scanning.HostResult, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return scanning.HostResult{}, fmt.Errorf("encoding host document: %w", err)
	}
	var host scanning.HostResult
	if err := json.Unmarshal(raw, &host); err != nil {
		return scanning.HostResult{}, fmt.Errorf("decoding host document: %w", err)
	}
	return host, nil
}

// ProgressInfo is the point-in-time progress view of one scan.
type ProgressInfo struct {
	ScanID              string     `json:"scan_id"`
	Status              Status     `json:"status"`
	Progress            float64    `json:"progress"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// Statistics aggregates one owner's scan history.
type Statistics struct {
	TotalScans           int        `json:"total_scans"`
	ScansPending         int        `json:"scans_pending"`
	ScansRunning         int        `json:"scans_running"`
	ScansCompleted       int        `json:"scans_completed"`
	ScansFailed          int        `json:"scans_failed"`
	ScansCancelled       int        `json:"scans_cancelled"`
	TotalHosts           int        `json:"total_hosts"`
	TotalVulnerabilities int        `json:"total_vulnerabilities"`
	AverageRiskScore     float64    `json:"average_risk_score"`
	ScansLast24Hours     int        `json:"scans_last_24_hours"`
	ScansLast7Days       int        `json:"scans_last_7_days"`
	ScansLast30Days      int        `json:"scans_last_30_days"`
	LastScanAt           *time.Time `json:"last_scan_at,omitempty"`
}

// expectedDurations drive the elapsed-ratio progress estimate. They are
// tuned independently of the executor's hard timeouts.
var expectedDurations = map[scanning.Profile]time.Duration{
	scanning.ProfileQuick:            300 * time.Second,
	scanning.ProfileFull:             1800 * time.Second,
	scanning.ProfileServiceDetection: 900 * time.Second,
	scanning.ProfileVulnScan:         3600 * time.Second,
	scanning.ProfileUDPScan:          2400 * time.Second,
}

// expectedDuration returns the expected wall time for a profile, falling
// back to the quick profile's estimate for unknown values.
func expectedDuration(profile scanning.Profile) time.Duration {
	if d, ok := expectedDurations[profile]; ok {
		return d
	}
	return expectedDurations[scanning.ProfileQuick]
}
