package scans

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	scanerrors "github.com/redforge/riskscan/internal/errors"
	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/metrics"
	"github.com/redforge/riskscan/internal/scanning"
	"github.com/redforge/riskscan/internal/store"
	"github.com/redforge/riskscan/internal/workers"
)

// maxRunningProgress caps the elapsed-ratio estimate until a scan reaches
// a terminal state.
const maxRunningProgress = 90.0

// Executor runs the external scanner for one target. Satisfied by
// scanning.Executor; tests substitute a spy.
type Executor interface {
	Execute(ctx context.Context, target string, profile scanning.Profile) scanning.ExecutionResult
}

// Service is the scan lifecycle manager. It validates and persists scans,
// runs them asynchronously, and answers progress, cancellation, and
// statistics queries with uniform ownership enforcement.
type Service struct {
	store     store.Store
	validator *scanning.Validator
	executor  Executor
	parser    *scanning.Parser
	pool      *workers.Pool
	logger    *logging.Logger

	// dispatch hands a created scan to the execution substrate. Tests
	// replace it to run scans synchronously.
	dispatch func(id string) error

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	now func() time.Time
}

// NewService creates a lifecycle manager. The pool may be nil when the
// caller drives execution itself (one-shot CLI scans).
func NewService(st store.Store, validator *scanning.Validator, executor Executor, pool *workers.Pool) *Service {
	s := &Service{
		store:     st,
		validator: validator,
		executor:  executor,
		parser:    scanning.NewParser(),
		pool:      pool,
		logger:    logging.Default().WithComponent("scans"),
		cancels:   make(map[string]context.CancelFunc),
		now:       time.Now,
	}
	s.dispatch = s.enqueue
	return s
}

// Create validates the request, persists a pending scan, and schedules its
// execution. It returns without waiting for the scan to run.
func (s *Service) Create(ctx context.Context, owner string, req CreateRequest) (*Scan, error) {
	validation := s.validator.Validate(ctx, req.Targets)
	if !validation.IsValid {
		return nil, scanerrors.NewValidationError(validation.Message)
	}

	profile, err := scanning.ParseProfile(req.Profile)
	if err != nil {
		return nil, scanerrors.NewFieldValidationError(err.Error(), "profile")
	}

	scan := &Scan{
		ID:            uuid.New().String(),
		Owner:         owner,
		Targets:       strings.TrimSpace(req.Targets),
		Profile:       string(profile),
		CustomOptions: req.CustomOptions,
		Status:        StatusPending,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.store.Create(ctx, store.CollectionScans, scan.ID, scan.Document()); err != nil {
		return nil, scanerrors.WrapStoreError(scanerrors.CodeStoreQuery, "persisting scan", err)
	}

	if err := s.dispatch(scan.ID); err != nil {
		s.logger.ErrorScan("could not schedule scan", scan.Targets, err, "scan_id", scan.ID)
		s.writeFields(context.Background(), scan.ID, store.Document{
			"status":        string(StatusFailed),
			"completed_at":  s.now().UTC().Format(time.RFC3339Nano),
			"error_message": fmt.Sprintf("could not schedule scan: %v", err),
		})
		return nil, scanerrors.WrapScanError(scanerrors.CodeExecutionFailed, "could not schedule scan", err)
	}

	s.logger.InfoScan("scan created", scan.Targets,
		"scan_id", scan.ID,
		"owner", owner,
		"profile", scan.Profile)
	return scan, nil
}

func (s *Service) enqueue(id string) error {
	if s.pool == nil {
		return fmt.Errorf("no worker pool configured")
	}
	return s.pool.Submit(workers.NewScanJob(id, func(ctx context.Context) error {
		s.Execute(ctx, id)
		return nil
	}))
}

// Execute runs a pending scan to a terminal state. It is invoked off the
// creating call's path by the worker pool.
func (s *Service) Execute(ctx context.Context, scanID string) {
	scan, err := s.load(ctx, scanID)
	if err != nil {
		s.logger.Error("scan disappeared before execution", "scan_id", scanID, "error", err)
		return
	}
	if scan.Status != StatusPending {
		// Cancelled (or otherwise finished) before a worker picked it up.
		return
	}

	startedAt := s.now().UTC()
	if err := s.writeFields(ctx, scanID, store.Document{
		"status":     string(StatusRunning),
		"started_at": startedAt.Format(time.RFC3339Nano),
	}); err != nil {
		s.logger.Error("could not mark scan running", "scan_id", scanID, "error", err)
	}

	metrics.Global().ScanStarted()
	defer metrics.Global().ScanFinished()

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.registerCancel(scanID, cancel)
	defer s.releaseCancel(scanID)

	profile := scanning.Profile(scan.Profile)
	tokens := scanning.Tokens(scan.Targets)

	var (
		allHosts     []scanning.HostResult
		commandLines []string
		targetErrors []string
		fatal        bool
	)

	for _, target := range tokens {
		if execCtx.Err() != nil {
			break
		}

		result := s.executor.Execute(execCtx, target, profile)
		if result.CommandLine != "" {
			commandLines = append(commandLines, result.CommandLine)
		}

		switch result.Status {
		case scanning.ExecutionSuccess:
			allHosts = append(allHosts, s.collectHosts(execCtx, scanID, target, result.RawOutput)...)

		case scanning.ExecutionToolNotFound:
			targetErrors = append(targetErrors, result.ErrorMessage)
			fatal = true

		case scanning.ExecutionError:
			// Some engines emit partial results before a late failure.
			if len(result.RawOutput) > 0 {
				allHosts = append(allHosts, s.collectHosts(execCtx, scanID, target, result.RawOutput)...)
			}
			targetErrors = append(targetErrors, fmt.Sprintf("target %s: %s", target, result.ErrorMessage))

		default:
			targetErrors = append(targetErrors, fmt.Sprintf("target %s: %s", target, result.ErrorMessage))
		}

		if fatal {
			break
		}
	}

	s.finish(scanID, profile, allHosts, commandLines, targetErrors, fatal)
}

// collectHosts parses one target's raw output and persists each host as
// its own linked document. Parse and persistence failures degrade the
// scan's fidelity without failing it.
func (s *Service) collectHosts(ctx context.Context, scanID, target string, raw []byte) []scanning.HostResult {
	parsed := s.parser.Parse(raw)
	for _, parseErr := range parsed.ParseErrors {
		s.logger.Warn("parse degradation", "scan_id", scanID, "target", target, "detail", parseErr)
	}

	for _, host := range parsed.Hosts {
		hostID := uuid.New().String()
		if err := s.store.Create(ctx, store.CollectionScanHosts, hostID, hostDocument(hostID, scanID, host)); err != nil {
			s.logger.ErrorStore("could not persist host result", err, "scan_id", scanID, "host_ip", host.IP)
		}
	}

	return parsed.Hosts
}

// finish applies the terminal transition. The write is best-effort: a
// store failure is logged, never raised, and a cancellation observed in
// the meantime is left untouched.
func (s *Service) finish(scanID string, profile scanning.Profile, hosts []scanning.HostResult,
	commandLines, targetErrors []string, fatal bool) {
	ctx := context.Background()

	if current, err := s.load(ctx, scanID); err == nil && current.Status == StatusCancelled {
		s.logger.Info("scan cancelled during execution", "scan_id", scanID)
		metrics.Global().IncrementScansTotal(string(profile), string(StatusCancelled))
		return
	}

	summary := scanning.Summarize(hosts)
	status := StatusCompleted
	if fatal || (len(hosts) == 0 && len(targetErrors) > 0) {
		status = StatusFailed
	}

	fields := store.Document{
		"status":                string(status),
		"completed_at":          s.now().UTC().Format(time.RFC3339Nano),
		"command_lines":         commandLines,
		"total_hosts":           summary.TotalHosts,
		"hosts_up":              summary.HostsUp,
		"open_ports":            summary.OpenPorts,
		"services_detected":     summary.ServicesDetected,
		"vulnerabilities_found": summary.VulnerabilitiesFound,
		"risk_score":            summary.RiskScore,
	}
	if len(targetErrors) > 0 {
		fields["error_message"] = strings.Join(targetErrors, "; ")
	}

	if err := s.writeFields(ctx, scanID, fields); err != nil {
		s.logger.Error("could not persist scan outcome",
			"scan_id", scanID,
			"status", status,
			"error", err)
	}

	metrics.Global().IncrementScansTotal(string(profile), string(status))
	metrics.Global().IncrementHostsScanned(string(profile), "up", summary.HostsUp)
	metrics.Global().IncrementHostsScanned(string(profile), "down", summary.HostsDown)
	metrics.Global().IncrementPortsFound(string(profile), "open", summary.OpenPorts)

	s.logger.Info("scan finished",
		"scan_id", scanID,
		"status", status,
		"hosts", summary.TotalHosts,
		"open_ports", summary.OpenPorts,
		"risk_score", summary.RiskScore)
}

// GetScan returns a scan owned by requester. Ownership mismatches are
// indistinguishable from missing scans.
func (s *Service) GetScan(ctx context.Context, scanID, requester string) (*Scan, error) {
	return s.loadOwned(ctx, scanID, requester)
}

// ListScans returns the requester's scans ordered newest first. An empty
// status lists all states.
func (s *Service) ListScans(ctx context.Context, requester, status string, limit, offset int) ([]*Scan, error) {
	q := store.Query{
		Filters:    []store.Filter{{Field: "owner", Value: requester}},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      limit,
		Offset:     offset,
	}
	if status != "" {
		q.Filters = append(q.Filters, store.Filter{Field: "status", Value: status})
	}

	docs, err := s.store.QueryDocuments(ctx, store.CollectionScans, q)
	if err != nil {
		return nil, scanerrors.WrapStoreError(scanerrors.CodeStoreQuery, "listing scans", err)
	}

	scans := make([]*Scan, 0, len(docs))
	for _, doc := range docs {
		scan, err := scanFromDocument(doc)
		if err != nil {
			s.logger.Warn("skipping undecodable scan document", "error", err)
			continue
		}
		scans = append(scans, scan)
	}
	return scans, nil
}

// ListHosts returns the persisted host results for a scan owned by
// requester.
func (s *Service) ListHosts(ctx context.Context, scanID, requester string) ([]scanning.HostResult, error) {
	if _, err := s.loadOwned(ctx, scanID, requester); err != nil {
		return nil, err
	}

	docs, err := s.store.QueryDocuments(ctx, store.CollectionScanHosts, store.Query{
		Filters: []store.Filter{{Field: "scan_id", Value: scanID}},
		OrderBy: "ip",
	})
	if err != nil {
		return nil, scanerrors.WrapStoreError(scanerrors.CodeStoreQuery, "listing scan hosts", err)
	}

	hosts := make([]scanning.HostResult, 0, len(docs))
	for _, doc := range docs {
		host, err := hostFromDocument(doc)
		if err != nil {
			s.logger.Warn("skipping undecodable host document", "scan_id", scanID, "error", err)
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

// GetProgress derives the progress view for a scan owned by requester.
// Running scans interpolate elapsed time against the profile's expected
// duration, capped until a terminal state is reached.
func (s *Service) GetProgress(ctx context.Context, scanID, requester string) (*ProgressInfo, error) {
	scan, err := s.loadOwned(ctx, scanID, requester)
	if err != nil {
		return nil, err
	}

	info := &ProgressInfo{
		ScanID:      scan.ID,
		Status:      scan.Status,
		StartedAt:   scan.StartedAt,
		CompletedAt: scan.CompletedAt,
	}

	switch scan.Status {
	case StatusCompleted:
		info.Progress = 100
	case StatusRunning:
		if scan.StartedAt != nil {
			expected := expectedDuration(scanning.Profile(scan.Profile))
			elapsed := s.now().Sub(*scan.StartedAt)
			info.Progress = math.Min(elapsed.Seconds()/expected.Seconds()*100, maxRunningProgress)
			if elapsed < expected {
				eta := scan.StartedAt.Add(expected)
				info.EstimatedCompletion = &eta
			}
		}
	default:
		// PENDING has not started; FAILED and CANCELLED report no progress.
		info.Progress = 0
	}

	return info, nil
}

// Cancel transitions a non-terminal scan to CANCELLED and best-effort
// interrupts its execution. It returns false for missing, unowned, or
// already terminal scans. The state transition is the authoritative
// outcome regardless of whether the running process stopped.
func (s *Service) Cancel(ctx context.Context, scanID, requester string) bool {
	scan, err := s.loadOwned(ctx, scanID, requester)
	if err != nil {
		return false
	}
	if scan.Status.Terminal() {
		return false
	}

	if err := s.writeFields(ctx, scanID, store.Document{
		"status":        string(StatusCancelled),
		"completed_at":  s.now().UTC().Format(time.RFC3339Nano),
		"error_message": cancelledMessage,
	}); err != nil {
		s.logger.Error("could not persist cancellation", "scan_id", scanID, "error", err)
		return false
	}

	s.mu.Lock()
	cancel := s.cancels[scanID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.logger.Info("scan cancelled", "scan_id", scanID, "owner", requester)
	return true
}

// Delete removes a scan and its linked host results. Non-terminal scans
// are cancelled first. Host cleanup failures are logged and do not void
// the primary removal.
func (s *Service) Delete(ctx context.Context, scanID, requester string) bool {
	scan, err := s.loadOwned(ctx, scanID, requester)
	if err != nil {
		return false
	}

	if !scan.Status.Terminal() {
		s.Cancel(ctx, scanID, requester)
	}

	docs, err := s.store.QueryDocuments(ctx, store.CollectionScanHosts, store.Query{
		Filters: []store.Filter{{Field: "scan_id", Value: scanID}},
	})
	if err != nil {
		s.logger.ErrorStore("could not enumerate host results for deletion", err, "scan_id", scanID)
	}
	for _, doc := range docs {
		id, _ := doc["id"].(string)
		if id == "" {
			continue
		}
		if err := s.store.Delete(ctx, store.CollectionScanHosts, id); err != nil {
			s.logger.ErrorStore("could not delete host result", err, "scan_id", scanID, "host_doc", id)
		}
	}

	if err := s.store.Delete(ctx, store.CollectionScans, scanID); err != nil {
		s.logger.ErrorStore("could not delete scan", err, "scan_id", scanID)
		return false
	}

	s.logger.Info("scan deleted", "scan_id", scanID, "owner", requester)
	return true
}

// GetStatistics aggregates the requester's scan history.
func (s *Service) GetStatistics(ctx context.Context, requester string) (*Statistics, error) {
	docs, err := s.store.QueryDocuments(ctx, store.CollectionScans, store.Query{
		Filters:    []store.Filter{{Field: "owner", Value: requester}},
		OrderBy:    "created_at",
		Descending: true,
	})
	if err != nil {
		return nil, scanerrors.WrapStoreError(scanerrors.CodeStoreQuery, "aggregating scans", err)
	}

	stats := &Statistics{}
	now := s.now()
	riskTotal := 0.0
	riskCount := 0

	for _, doc := range docs {
		scan, err := scanFromDocument(doc)
		if err != nil {
			continue
		}

		stats.TotalScans++
		switch scan.Status {
		case StatusPending:
			stats.ScansPending++
		case StatusRunning:
			stats.ScansRunning++
		case StatusCompleted:
			stats.ScansCompleted++
		case StatusFailed:
			stats.ScansFailed++
		case StatusCancelled:
			stats.ScansCancelled++
		}

		stats.TotalHosts += scan.TotalHosts
		stats.TotalVulnerabilities += scan.VulnerabilitiesFound

		if scan.RiskScore > 0 {
			riskTotal += scan.RiskScore
			riskCount++
		}

		age := now.Sub(scan.CreatedAt)
		if age <= 24*time.Hour {
			stats.ScansLast24Hours++
		}
		if age <= 7*24*time.Hour {
			stats.ScansLast7Days++
		}
		if age <= 30*24*time.Hour {
			stats.ScansLast30Days++
		}

		if stats.LastScanAt == nil || scan.CreatedAt.After(*stats.LastScanAt) {
			created := scan.CreatedAt
			stats.LastScanAt = &created
		}
	}

	if riskCount > 0 {
		stats.AverageRiskScore = math.Round(riskTotal/float64(riskCount)*100) / 100
	}
	return stats, nil
}

// ValidateTargets checks a raw target spec without creating a scan.
func (s *Service) ValidateTargets(ctx context.Context, raw string) scanning.TargetValidationResult {
	return s.validator.Validate(ctx, raw)
}

func (s *Service) load(ctx context.Context, scanID string) (*Scan, error) {
	doc, err := s.store.Get(ctx, store.CollectionScans, scanID)
	if err != nil {
		return nil, err
	}
	return scanFromDocument(doc)
}

func (s *Service) loadOwned(ctx context.Context, scanID, requester string) (*Scan, error) {
	scan, err := s.load(ctx, scanID)
	if err != nil {
		return nil, scanerrors.ErrScanNotFound(scanID)
	}
	if scan.Owner != requester {
		return nil, scanerrors.ErrScanNotFound(scanID)
	}
	return scan, nil
}

func (s *Service) writeFields(ctx context.Context, scanID string, fields store.Document) error {
	return s.store.Update(ctx, store.CollectionScans, scanID, fields)
}

func (s *Service) registerCancel(scanID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[scanID] = cancel
}

func (s *Service) releaseCancel(scanID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, scanID)
}
