// Package workflow provides the durable cognitive-workflow execution engine at the heart of Shannon.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/ckpt"
	"github.com/shannon-run/shannon/workflow/control"
	"github.com/shannon-run/shannon/workflow/emit"
	"github.com/shannon-run/shannon/workflow/eventlog"
	"github.com/shannon-run/shannon/workflow/pattern"
)

// ErrUnknownPattern is returned by Submit when no pattern is
// registered under the requested pattern type.
var ErrUnknownPattern = errors.New("workflow: unknown pattern type")

// ErrUnknownWorkflow is returned by the control methods (Pause, Resume,
// Cancel) when the workflow id names no workflow this Service knows of.
var ErrUnknownWorkflow = errors.New("workflow: unknown workflow id")

// ErrInvalidTransition is returned when a control signal is sent to a
// workflow in a status that cannot accept it (spec §4.I: "invalid
// transitions are refused with an explicit error; no silent no-ops").
var ErrInvalidTransition = errors.New("workflow: invalid status transition")

// ErrShuttingDown is returned by Submit once Shutdown has been called.
var ErrShuttingDown = errors.New("workflow: service is shutting down")

// SubmitRequest is the input to Submit (spec §6 "POST /api/v1/tasks").
type SubmitRequest struct {
	UserID      string
	SessionID   string
	PatternType string
	Query       string
	Config      map[string]any
}

// RunHandle identifies a submitted workflow and its event bus.
type RunHandle struct {
	WorkflowID string
	Bus        *emit.Bus
}

// activeRun tracks the bookkeeping Service needs for a workflow while
// it is not yet terminal.
type activeRun struct {
	signal *control.Signal
	cancel context.CancelFunc
	bus    *emit.Bus
}

// Service is the top-level workflow orchestrator (spec §4.I): it
// assigns workflow ids, enforces a concurrency cap with a bounded
// semaphore, drives a submitted pattern to completion on its own
// goroutine, relays every pattern event to both the durable log and
// the per-workflow bus, and exposes cooperative pause/resume/cancel.
type Service struct {
	log      eventlog.Log
	ckptMgr  *ckpt.Manager
	patterns *pattern.Registry
	invoker  *activity.Invoker
	logger   hclog.Logger
	sinks    []emit.Emitter

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*activeRun

	shutdownCtx context.Context
	shutdownFn  context.CancelFunc
	shutdown    bool
}

// NewService wires a Service from its collaborators. maxConcurrentWorkflows
// bounds how many workflows execute simultaneously (spec §4.I "concurrency
// cap"); values <= 0 default to 8. The invoker is configured with log and
// ckptMgr via SetEventLog/SetCheckpointManager so every activity call it
// makes is recorded and checkpointed.
func NewService(log eventlog.Log, ckptMgr *ckpt.Manager, patterns *pattern.Registry, invoker *activity.Invoker, maxConcurrentWorkflows int, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if maxConcurrentWorkflows <= 0 {
		maxConcurrentWorkflows = 8
	}
	invoker.SetEventLog(log)
	invoker.SetCheckpointManager(ckptMgr)

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		log:         log,
		ckptMgr:     ckptMgr,
		patterns:    patterns,
		invoker:     invoker,
		logger:      logger,
		sem:         semaphore.NewWeighted(int64(maxConcurrentWorkflows)),
		runs:        make(map[string]*activeRun),
		shutdownCtx: ctx,
		shutdownFn:  cancel,
	}
}

// SetEmitterSinks configures the observability sinks (structured
// logging, OpenTelemetry spans, ...) every workflow's Bus forwards
// events to, in addition to its own subscribers. Must be called before
// Submit or Recover to take effect for their runs.
func (s *Service) SetEmitterSinks(sinks ...emit.Emitter) {
	s.sinks = sinks
}

// Submit assigns a workflow id, appends WorkflowStarted, registers
// pending metadata, and enqueues the run on the worker pool (spec
// §4.I "Submission"). The pattern executes on its own goroutine;
// Submit returns as soon as bookkeeping is durable, not when the
// workflow finishes.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (RunHandle, error) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return RunHandle{}, ErrShuttingDown
	}
	s.mu.Unlock()

	p, ok := s.patterns.Get(req.PatternType)
	if !ok {
		return RunHandle{}, fmt.Errorf("%w: %q", ErrUnknownPattern, req.PatternType)
	}

	workflowID := uuid.NewString()
	inputJSON, err := json.Marshal(req)
	if err != nil {
		return RunHandle{}, fmt.Errorf("workflow: marshal input: %w", err)
	}

	if _, err := s.log.Append(ctx, workflowID, eventlog.NewWorkflowStarted(workflowID, req.PatternType, inputJSON)); err != nil {
		return RunHandle{}, fmt.Errorf("workflow: append WorkflowStarted: %w", err)
	}
	now := time.Now().UnixNano()
	if err := s.log.PutMetadata(ctx, eventlog.Metadata{
		WorkflowID:  workflowID,
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		PatternType: req.PatternType,
		Status:      eventlog.StatusPending,
		Input:       inputJSON,
		CreatedAt:   now,
	}); err != nil {
		return RunHandle{}, fmt.Errorf("workflow: put metadata: %w", err)
	}

	bus := emit.NewBus(s.sinks...)
	s.wg.Add(1)
	go s.run(workflowID, p, req, bus)

	return RunHandle{WorkflowID: workflowID, Bus: bus}, nil
}

// run is the worker goroutine body: it blocks on the concurrency
// semaphore, then drives the pattern to completion, recording status
// transitions and relaying events to the log and the bus throughout.
func (s *Service) run(workflowID string, p pattern.Pattern, req SubmitRequest, bus *emit.Bus) {
	defer s.wg.Done()

	if err := s.sem.Acquire(s.shutdownCtx, 1); err != nil {
		s.finish(workflowID, bus, eventlog.StatusCancelled, nil, errors.New("workflow: service shutting down before start"))
		return
	}
	defer s.sem.Release(1)

	sig := control.New()
	runCtx, cancel := context.WithCancel(s.shutdownCtx)
	s.mu.Lock()
	s.runs[workflowID] = &activeRun{signal: sig, cancel: cancel, bus: bus}
	s.mu.Unlock()

	s.invoker.SetControl(workflowID, sig)
	defer s.invoker.ClearControl(workflowID)

	if err := s.transition(context.Background(), workflowID, eventlog.StatusRunning); err != nil {
		s.logger.Error("failed to transition to running", "workflow", workflowID, "error", err)
	}
	bus.Publish(emit.WorkflowStarted(workflowID, req.PatternType))

	start := time.Now()
	result, err := p.Run(runCtx, pattern.Input{Query: req.Query, Config: req.Config}, pattern.Deps{
		Invoker:    s.invoker,
		Bus:        bus,
		WorkflowID: workflowID,
	})

	switch {
	case errors.Is(err, control.ErrCancelled):
		s.finish(workflowID, bus, eventlog.StatusCancelled, nil, nil)
	case err != nil:
		s.finish(workflowID, bus, eventlog.StatusFailed, nil, err)
	default:
		output, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			s.finish(workflowID, bus, eventlog.StatusFailed, nil, marshalErr)
			break
		}
		bus.Publish(emit.WorkflowCompleted(workflowID, result, time.Since(start).Milliseconds()))
		s.finish(workflowID, bus, eventlog.StatusCompleted, output, nil)
	}
}

// finish appends the terminal event, updates metadata, removes the
// run from the active set, and closes the bus so SSE subscribers see
// end-of-stream.
func (s *Service) finish(workflowID string, bus *emit.Bus, status eventlog.Status, output []byte, runErr error) {
	ctx := context.Background()

	if status == eventlog.StatusFailed {
		if _, err := s.log.Append(ctx, workflowID, eventlog.NewWorkflowFailed(runErr.Error())); err != nil {
			s.logger.Error("failed to append WorkflowFailed", "workflow", workflowID, "error", err)
		}
		bus.Publish(emit.WorkflowFailed(workflowID, runErr.Error()))
	} else if status == eventlog.StatusCompleted {
		if _, err := s.log.Append(ctx, workflowID, eventlog.NewWorkflowCompleted(output)); err != nil {
			s.logger.Error("failed to append WorkflowCompleted", "workflow", workflowID, "error", err)
		}
	} else if status == eventlog.StatusCancelled {
		if _, err := s.log.Append(ctx, workflowID, eventlog.NewWorkflowFailed("cancelled")); err != nil {
			s.logger.Error("failed to append cancellation terminal event", "workflow", workflowID, "error", err)
		}
		bus.Publish(emit.WorkflowCancelled(workflowID, s.latestCheckpointID(ctx, workflowID)))
	}

	meta, err := s.log.GetMetadata(ctx, workflowID)
	if err == nil {
		meta.Status = status
		meta.Output = output
		meta.CompletedAt = time.Now().UnixNano()
		if putErr := s.log.PutMetadata(ctx, meta); putErr != nil {
			s.logger.Error("failed to update terminal metadata", "workflow", workflowID, "error", putErr)
		}
	}

	s.mu.Lock()
	if run, ok := s.runs[workflowID]; ok {
		run.cancel()
		delete(s.runs, workflowID)
	}
	s.mu.Unlock()

	bus.Close()
}

// transition validates and applies a status change per spec §4.I's
// state machine, refusing anything not explicitly allowed.
func (s *Service) transition(ctx context.Context, workflowID string, to eventlog.Status) error {
	meta, err := s.log.GetMetadata(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	if !validTransition(meta.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, meta.Status, to)
	}
	meta.Status = to
	return s.log.PutMetadata(ctx, meta)
}

func validTransition(from, to eventlog.Status) bool {
	switch from {
	case eventlog.StatusPending:
		return to == eventlog.StatusRunning || to == eventlog.StatusCancelled
	case eventlog.StatusRunning:
		return to == eventlog.StatusCompleted || to == eventlog.StatusFailed ||
			to == eventlog.StatusCancelled || to == eventlog.StatusPaused
	case eventlog.StatusPaused:
		return to == eventlog.StatusRunning || to == eventlog.StatusCancelled
	default:
		return false
	}
}

// Pause marks workflowID paused: the engine transitions metadata,
// emits WorkflowPausing then WorkflowPaused (with the latest checkpoint
// id, if any), and the pattern halts at its next activity boundary
// (spec §4.I "Control signals").
func (s *Service) Pause(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	run, ok := s.runs[workflowID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	if err := s.transition(ctx, workflowID, eventlog.StatusPaused); err != nil {
		return err
	}
	run.bus.Publish(emit.WorkflowPausing(workflowID))
	run.signal.Pause()

	run.bus.Publish(emit.WorkflowPaused(workflowID, s.latestCheckpointID(ctx, workflowID)))
	return nil
}

// latestCheckpointID decodes the latest Checkpoint event's stored
// ckpt.Checkpoint blob (see activity.Invoker.recordOutcome) and
// returns its sequence number as a string, or "" if none exists yet.
func (s *Service) latestCheckpointID(ctx context.Context, workflowID string) string {
	blob, err := s.log.GetCheckpoint(ctx, workflowID)
	if err != nil {
		return ""
	}
	var cp ckpt.Checkpoint
	if err := json.Unmarshal(blob, &cp); err != nil {
		return ""
	}
	return fmt.Sprintf("%d", cp.Sequence)
}

// Resume releases a paused workflow's activity boundary block and
// transitions it back to running (spec §4.I "Resume").
func (s *Service) Resume(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	run, ok := s.runs[workflowID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	if err := s.transition(ctx, workflowID, eventlog.StatusRunning); err != nil {
		return err
	}
	run.signal.Resume()
	run.bus.Publish(emit.WorkflowResumed(workflowID))
	return nil
}

// Cancel abandons workflowID at its next safe point: the pattern's
// next Invoke call returns control.ErrCancelled, unwinding run() into
// the cancelled terminal state (spec §4.I "Cancel").
func (s *Service) Cancel(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	run, ok := s.runs[workflowID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	run.bus.Publish(emit.WorkflowCancelling(workflowID))
	run.signal.Cancel()
	return nil
}

// Bus returns the event bus for a currently-running workflow, for an
// HTTP handler to subscribe an SSE client to (spec §6 "GET
// /api/v1/tasks/{id}/stream"). ok is false once the workflow has
// reached a terminal state and its bus has been closed and discarded.
func (s *Service) Bus(workflowID string) (*emit.Bus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[workflowID]
	if !ok {
		return nil, false
	}
	return run.bus, true
}

// Metadata returns the durable metadata row for workflowID (spec §6
// "GET /api/v1/tasks/{id}").
func (s *Service) Metadata(ctx context.Context, workflowID string) (eventlog.Metadata, error) {
	return s.log.GetMetadata(ctx, workflowID)
}

// ListTasks returns a page of metadata rows, optionally filtered by
// status and session id (spec §6 "GET /api/v1/tasks").
func (s *Service) ListTasks(ctx context.Context, status eventlog.Status, sessionID string, limit, offset int) ([]eventlog.Metadata, error) {
	return s.log.ListMetadata(ctx, status, sessionID, limit, offset)
}

// ImportMetadata upserts a metadata row reconstructed from an export
// envelope (spec §6 "Import"), without re-running anything. Imported
// workflows are historical records only; Recover will not pick them up
// unless their status is non-terminal.
func (s *Service) ImportMetadata(ctx context.Context, meta eventlog.Metadata) error {
	return s.log.PutMetadata(ctx, meta)
}

// Recover scans metadata for workflows left non-terminal by a prior
// process (spec §4.I "Recovery") and re-submits each by re-invoking
// its pattern; activity memoization in activity.Invoker makes already-
// completed activities no-ops, so only unfinished work actually runs.
func (s *Service) Recover(ctx context.Context) (int, error) {
	pending, err := s.log.ListNonTerminal(ctx)
	if err != nil {
		return 0, fmt.Errorf("workflow: list non-terminal: %w", err)
	}

	recovered := 0
	for _, meta := range pending {
		p, ok := s.patterns.Get(meta.PatternType)
		if !ok {
			s.logger.Error("cannot recover workflow: unknown pattern type", "workflow", meta.WorkflowID, "pattern_type", meta.PatternType)
			continue
		}
		var req SubmitRequest
		if err := json.Unmarshal(meta.Input, &req); err != nil {
			s.logger.Error("cannot recover workflow: bad stored input", "workflow", meta.WorkflowID, "error", err)
			continue
		}

		bus := emit.NewBus(s.sinks...)
		s.wg.Add(1)
		go s.resume(meta.WorkflowID, p, req, bus)
		recovered++
	}
	return recovered, nil
}

// resume re-enters run()'s body for an existing workflow id instead of
// minting a new one, skipping the WorkflowStarted/PutMetadata(pending)
// steps Submit already performed in a previous process lifetime.
func (s *Service) resume(workflowID string, p pattern.Pattern, req SubmitRequest, bus *emit.Bus) {
	s.run(workflowID, p, req, bus)
}

// Shutdown stops accepting new submissions and waits for in-flight
// workflows to reach a safe stopping point (their next activity
// boundary) before returning.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	s.shutdownFn()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
