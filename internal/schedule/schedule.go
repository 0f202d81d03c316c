// Package schedule runs recurring scans from cron expressions. Schedules
// are persisted in the document store and trigger scan creation through
// the lifecycle manager when they fire.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	scanerrors "github.com/redforge/riskscan/internal/errors"
	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/scanning"
	"github.com/redforge/riskscan/internal/scans"
	"github.com/redforge/riskscan/internal/store"
)

// ScanCreator starts scans on behalf of a schedule's owner. Satisfied by
// scans.Service.
type ScanCreator interface {
	Create(ctx context.Context, owner string, req scans.CreateRequest) (*scans.Scan, error)
}

// Schedule is one persisted recurring scan definition.
type Schedule struct {
	ID             string     `json:"id"`
	Owner          string     `json:"owner"`
	Name           string     `json:"name"`
	CronExpression string     `json:"cron_expression"`
	Targets        string     `json:"targets"`
	Profile        string     `json:"profile"`
	Enabled        bool       `json:"enabled"`
	CreatedAt      time.Time  `json:"created_at"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	RunCount       int        `json:"run_count"`
	FailureCount   int        `json:"failure_count"`
	LastError      string     `json:"last_error,omitempty"`
}

// Document converts the schedule to its stored field map.
func (s *Schedule) Document() store.Document {
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

func scheduleFromDocument(doc store.Document) (*Schedule, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding schedule document: %w", err)
	}
	var s Schedule
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding schedule document: %w", err)
	}
	return &s, nil
}

// Scheduler manages the cron runtime over persisted schedules.
type Scheduler struct {
	store   store.Store
	creator ScanCreator
	cron    *cron.Cron
	logger  *logging.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool

	now func() time.Time
}

// New creates a scheduler over the given store and scan creator.
func New(st store.Store, creator ScanCreator) *Scheduler {
	return &Scheduler{
		store:   st,
		creator: creator,
		cron:    cron.New(),
		logger:  logging.Default().WithComponent("schedule"),
		entries: make(map[string]cron.EntryID),
		now:     time.Now,
	}
}

// Start loads enabled schedules from the store and begins firing them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	docs, err := s.store.QueryDocuments(ctx, store.CollectionSchedules, store.Query{
		Filters: []store.Filter{{Field: "enabled", Value: true}},
	})
	if err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery, "loading schedules", err)
	}

	for _, doc := range docs {
		sched, err := scheduleFromDocument(doc)
		if err != nil {
			s.logger.Warn("skipping undecodable schedule document", "error", err)
			continue
		}
		if err := s.register(sched); err != nil {
			s.logger.ErrorScheduler("could not register schedule", err,
				"schedule_id", sched.ID, "cron", sched.CronExpression)
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.InfoScheduler("scheduler started", "schedules", len(s.entries))
	return nil
}

// Stop halts firing. In-flight scan creations complete on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.InfoScheduler("scheduler stopped")
}

// AddSchedule validates and persists a new schedule. When the scheduler is
// running the schedule starts firing immediately.
func (s *Scheduler) AddSchedule(ctx context.Context, owner, name, cronExpr, targets, profile string) (*Schedule, error) {
	spec, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, scanerrors.NewFieldValidationError(fmt.Sprintf("invalid cron expression: %v", err), "cron_expression")
	}
	if _, err := scanning.ParseProfile(profile); err != nil {
		return nil, scanerrors.NewFieldValidationError(err.Error(), "profile")
	}

	now := s.now().UTC()
	next := spec.Next(now)
	sched := &Schedule{
		ID:             uuid.New().String(),
		Owner:          owner,
		Name:           name,
		CronExpression: cronExpr,
		Targets:        targets,
		Profile:        profile,
		Enabled:        true,
		CreatedAt:      now,
		NextRunAt:      &next,
	}

	if err := s.store.Create(ctx, store.CollectionSchedules, sched.ID, sched.Document()); err != nil {
		return nil, scanerrors.WrapStoreError(scanerrors.CodeStoreQuery, "persisting schedule", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		if err := s.register(sched); err != nil {
			return nil, err
		}
	}

	s.logger.InfoScheduler("schedule added",
		"schedule_id", sched.ID,
		"owner", owner,
		"cron", cronExpr,
		"profile", profile)
	return sched, nil
}

// RemoveSchedule deletes a schedule owned by requester. Ownership
// mismatches look like missing schedules.
func (s *Scheduler) RemoveSchedule(ctx context.Context, scheduleID, requester string) error {
	sched, err := s.loadOwned(ctx, scheduleID, requester)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if entryID, ok := s.entries[sched.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, sched.ID)
	}
	s.mu.Unlock()

	if err := s.store.Delete(ctx, store.CollectionSchedules, sched.ID); err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery, "deleting schedule", err)
	}

	s.logger.InfoScheduler("schedule removed", "schedule_id", sched.ID, "owner", requester)
	return nil
}

// SetEnabled flips a schedule's enabled flag, registering or removing its
// cron entry while the scheduler runs.
func (s *Scheduler) SetEnabled(ctx context.Context, scheduleID, requester string, enabled bool) error {
	sched, err := s.loadOwned(ctx, scheduleID, requester)
	if err != nil {
		return err
	}
	if sched.Enabled == enabled {
		return nil
	}

	if err := s.store.Update(ctx, store.CollectionSchedules, sched.ID, store.Document{"enabled": enabled}); err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery, "updating schedule", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	if enabled {
		sched.Enabled = true
		return s.register(sched)
	}
	if entryID, ok := s.entries[sched.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, sched.ID)
	}
	return nil
}

// ListSchedules returns the requester's schedules, newest first.
func (s *Scheduler) ListSchedules(ctx context.Context, requester string) ([]*Schedule, error) {
	docs, err := s.store.QueryDocuments(ctx, store.CollectionSchedules, store.Query{
		Filters:    []store.Filter{{Field: "owner", Value: requester}},
		OrderBy:    "created_at",
		Descending: true,
	})
	if err != nil {
		return nil, scanerrors.WrapStoreError(scanerrors.CodeStoreQuery, "listing schedules", err)
	}

	schedules := make([]*Schedule, 0, len(docs))
	for _, doc := range docs {
		sched, err := scheduleFromDocument(doc)
		if err != nil {
			continue
		}
		schedules = append(schedules, sched)
	}
	return schedules, nil
}

// register adds a schedule's cron entry. Caller holds s.mu.
func (s *Scheduler) register(sched *Schedule) error {
	id := sched.ID
	entryID, err := s.cron.AddFunc(sched.CronExpression, func() {
		s.fire(id)
	})
	if err != nil {
		return scanerrors.NewFieldValidationError(fmt.Sprintf("invalid cron expression: %v", err), "cron_expression")
	}
	s.entries[id] = entryID
	return nil
}

// fire runs one scheduled trigger: creates the scan and updates the run
// bookkeeping. Failures are recorded on the schedule, never propagated.
func (s *Scheduler) fire(scheduleID string) {
	ctx := context.Background()

	doc, err := s.store.Get(ctx, store.CollectionSchedules, scheduleID)
	if err != nil {
		s.logger.ErrorScheduler("schedule disappeared", err, "schedule_id", scheduleID)
		return
	}
	sched, err := scheduleFromDocument(doc)
	if err != nil {
		s.logger.ErrorScheduler("undecodable schedule", err, "schedule_id", scheduleID)
		return
	}
	if !sched.Enabled {
		return
	}

	now := s.now().UTC()
	fields := store.Document{
		"last_run_at": now.Format(time.RFC3339Nano),
		"run_count":   sched.RunCount + 1,
	}
	if spec, err := cron.ParseStandard(sched.CronExpression); err == nil {
		fields["next_run_at"] = spec.Next(now).Format(time.RFC3339Nano)
	}

	scan, err := s.creator.Create(ctx, sched.Owner, scans.CreateRequest{
		Targets: sched.Targets,
		Profile: sched.Profile,
	})
	if err != nil {
		fields["failure_count"] = sched.FailureCount + 1
		fields["last_error"] = err.Error()
		s.logger.ErrorScheduler("scheduled scan failed to start", err,
			"schedule_id", scheduleID, "targets", sched.Targets)
	} else {
		fields["last_error"] = ""
		s.logger.InfoScheduler("scheduled scan started",
			"schedule_id", scheduleID, "scan_id", scan.ID)
	}

	if err := s.store.Update(ctx, store.CollectionSchedules, scheduleID, fields); err != nil {
		s.logger.ErrorScheduler("could not update schedule bookkeeping", err, "schedule_id", scheduleID)
	}
}

func (s *Scheduler) loadOwned(ctx context.Context, scheduleID, requester string) (*Schedule, error) {
	doc, err := s.store.Get(ctx, store.CollectionSchedules, scheduleID)
	if err != nil {
		return nil, scanerrors.ErrDocumentNotFound(store.CollectionSchedules, scheduleID)
	}
	sched, err := scheduleFromDocument(doc)
	if err != nil || sched.Owner != requester {
		return nil, scanerrors.ErrDocumentNotFound(store.CollectionSchedules, scheduleID)
	}
	return sched, nil
}
