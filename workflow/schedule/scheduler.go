package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Schedule is a recurring submission rule: query resubmitted on cron as a
// new workflow (spec §3 "Schedule").
type Schedule struct {
	ID        string
	Cron      string
	Query     string
	Strategy  string
	Enabled   bool
	LastRunAt *time.Time
	NextRunAt *time.Time
}

// Submitter starts a new workflow run for a due schedule. workflow.Service
// does not implement it directly; cmd/shannon adapts the Service to it
// (serviceSubmitter).
type Submitter interface {
	Submit(ctx context.Context, query, sessionID string) (workflowID string, err error)
}

// Store persists Schedule rows. A single process typically backs this
// with the same storage as the event log's metadata index.
type Store interface {
	Put(ctx context.Context, s Schedule) error
	Get(ctx context.Context, id string) (Schedule, bool, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Schedule, error)
}

// MemStore is an in-memory Store, sufficient for a single-process
// deployment and for tests.
type MemStore struct {
	mu        sync.Mutex
	schedules map[string]Schedule
}

// NewMemStore creates an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{schedules: make(map[string]Schedule)}
}

func (s *MemStore) Put(_ context.Context, sch Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sch.ID] = sch
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (Schedule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	return sch, ok, nil
}

func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, id)
	return nil
}

func (s *MemStore) List(_ context.Context) ([]Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sch := range s.schedules {
		out = append(out, sch)
	}
	return out, nil
}

// Scheduler runs a single due-check loop (spec §4.J): every Tick, it scans
// the store for schedules where Enabled && NextRunAt <= now, submits each
// as a new workflow, and advances LastRunAt/NextRunAt.
type Scheduler struct {
	store     Store
	submitter Submitter
	log       hclog.Logger
	Tick      time.Duration
}

// NewScheduler constructs a Scheduler with a 1 second tick, matching the
// spec's example cadence.
func NewScheduler(store Store, submitter Submitter, log hclog.Logger) *Scheduler {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Scheduler{store: store, submitter: submitter, log: log, Tick: time.Second}
}

// Add validates cron and registers a new schedule, computing its initial
// NextRunAt.
func (s *Scheduler) Add(ctx context.Context, sch Schedule) (Schedule, error) {
	expr, err := Parse(sch.Cron)
	if err != nil {
		return Schedule{}, err
	}
	if sch.Enabled {
		next, ok := expr.NextAfter(time.Now())
		if !ok {
			return Schedule{}, fmt.Errorf("schedule: no future run time for cron %q", sch.Cron)
		}
		sch.NextRunAt = &next
	}
	if err := s.store.Put(ctx, sch); err != nil {
		return Schedule{}, err
	}
	return sch, nil
}

// Run blocks, ticking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkDue(ctx)
		}
	}
}

func (s *Scheduler) checkDue(ctx context.Context) {
	schedules, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("list schedules failed", "error", err)
		return
	}

	now := time.Now()
	for _, sch := range schedules {
		if !sch.Enabled || sch.NextRunAt == nil || sch.NextRunAt.After(now) {
			continue
		}
		s.runDue(ctx, sch, now)
	}
}

func (s *Scheduler) runDue(ctx context.Context, sch Schedule, now time.Time) {
	workflowID, err := s.submitter.Submit(ctx, sch.Query, "")
	if err != nil {
		s.log.Error("scheduled submission failed", "schedule_id", sch.ID, "error", err)
		return
	}
	s.log.Info("scheduled workflow submitted", "schedule_id", sch.ID, "workflow_id", workflowID)

	expr, err := Parse(sch.Cron)
	if err != nil {
		s.log.Error("re-parsing cron on due schedule failed", "schedule_id", sch.ID, "error", err)
		return
	}
	next, ok := expr.NextAfter(now)
	sch.LastRunAt = &now
	if ok {
		sch.NextRunAt = &next
	} else {
		sch.NextRunAt = nil
		sch.Enabled = false
	}
	if err := s.store.Put(ctx, sch); err != nil {
		s.log.Error("persisting schedule after run failed", "schedule_id", sch.ID, "error", err)
	}
}
