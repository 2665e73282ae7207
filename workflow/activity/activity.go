// Package activity implements Shannon's built-in activities (spec §4.F):
// the boundary between a deterministic cognitive pattern and the outside
// world. Every activity call is recorded to the event log as exactly one
// ActivityScheduled followed by one ActivityCompleted or ActivityFailed,
// which is what makes replay able to skip re-invoking the dependency.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/shannon-run/shannon/workflow/breaker"
	"github.com/shannon-run/shannon/workflow/ckpt"
	"github.com/shannon-run/shannon/workflow/control"
	"github.com/shannon-run/shannon/workflow/eventlog"
)

// Context carries the identifiers and attempt bookkeeping every
// activity call needs, mirroring spec §4.F's "ctx carries workflow-id,
// activity-id, current attempt, max attempts, timeout".
type Context struct {
	WorkflowID  string
	ActivityID  string
	Attempt     int
	MaxAttempts int
	Timeout     time.Duration
}

// Result is the outcome of a single activity call.
type Result struct {
	Output    map[string]any
	Retryable bool
	Err       error
}

// Activity executes a single named capability. Input/output are
// loosely-typed maps, matching the teacher's Tool interface shape,
// since activities bridge patterns (typed Go) to external services
// (JSON-shaped) at the same seam tools do.
type Activity interface {
	Name() string
	Execute(ctx context.Context, actx Context, input map[string]any) (map[string]any, error)
}

// ErrNonRetryable marks an error that must short-circuit retry,
// e.g. invalid input or a policy violation (spec §4.F).
var ErrNonRetryable = errors.New("activity: non-retryable failure")

// NonRetryable wraps err so Invoker's retry loop treats it as terminal.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableErr{err: err}
}

type nonRetryableErr struct{ err error }

func (e *nonRetryableErr) Error() string { return e.err.Error() }
func (e *nonRetryableErr) Unwrap() error { return e.err }
func (e *nonRetryableErr) Is(target error) bool { return target == ErrNonRetryable }

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var nr *nonRetryableErr
	return !errors.As(err, &nr)
}

// Invoker runs a named Activity with exponential backoff bounded by
// attempt.MaxAttempts (spec §4.F), guarded by a per-dependency circuit
// breaker, emitting a structured log line for every failed attempt.
type Invoker struct {
	activities map[string]Activity
	breakers   *breaker.Registry
	log        hclog.Logger
	costs      *CostTracker

	controls sync.Map // workflow id -> *control.Signal

	eventLog eventlog.Log
	ckptMgr  *ckpt.Manager
	replay   sync.Map // workflow id -> map[activityID]recordedOutcome
}

// recordedOutcome is a previously-logged activity result, looked up by
// activity id so a re-invoked pattern skips the live call (spec §4.I
// recovery: "will read recorded outcomes from the log for
// already-executed activities").
type recordedOutcome struct {
	output map[string]any
	err    error
}

// NewInvoker constructs an Invoker backed by breakers and an optional
// CostTracker (nil disables cost accounting).
func NewInvoker(breakers *breaker.Registry, log hclog.Logger, costs *CostTracker) *Invoker {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Invoker{activities: make(map[string]Activity), breakers: breakers, log: log, costs: costs}
}

// SetEventLog attaches the durable event log every Invoke call records
// to (ActivityScheduled, then ActivityCompleted/ActivityFailed) and
// consults first, so a workflow re-invoked after a crash or pause does
// not repeat an activity whose outcome is already recorded. A nil log
// (the default) disables both recording and replay memoization, which
// is what the package's unit tests rely on.
func (inv *Invoker) SetEventLog(log eventlog.Log) { inv.eventLog = log }

// SetCheckpointManager attaches the checkpoint manager consulted after
// every recorded activity outcome to decide whether a Checkpoint event
// is due (spec §4.I "checkpoint insertion"). Nil disables checkpointing.
func (inv *Invoker) SetCheckpointManager(m *ckpt.Manager) { inv.ckptMgr = m }

// Register adds an Activity, keyed by its Name().
func (inv *Invoker) Register(a Activity) {
	inv.activities[a.Name()] = a
}

// SetControl attaches the pause/cancel signal for workflowID. Every
// subsequent Invoke for that workflow id waits on it at the top of its
// retry loop — the engine's "safe point between activities" (spec §4.I).
func (inv *Invoker) SetControl(workflowID string, sig *control.Signal) {
	inv.controls.Store(workflowID, sig)
}

// ClearControl detaches workflowID's signal once the workflow reaches a
// terminal state, so the map doesn't grow unbounded.
func (inv *Invoker) ClearControl(workflowID string) {
	inv.controls.Delete(workflowID)
}

// Invoke runs the named activity with retry, timeout, and breaker
// enforcement. When an event log is attached and it already holds an
// ActivityCompleted/Failed outcome for actx.ActivityID, Invoke returns
// that recorded outcome without calling the activity again, so a
// replayed pattern calls Invoke exactly as a fresh run does.
func (inv *Invoker) Invoke(ctx context.Context, name string, actx Context, input map[string]any) (map[string]any, error) {
	a, ok := inv.activities[name]
	if !ok {
		return nil, NonRetryable(errors.New("activity: unknown activity " + name))
	}

	if out, err, ok := inv.lookupRecorded(ctx, actx.WorkflowID, actx.ActivityID); ok {
		return out, err
	}

	if v, ok := inv.controls.Load(actx.WorkflowID); ok {
		if sig, ok := v.(*control.Signal); ok {
			if err := sig.Await(ctx); err != nil {
				return nil, err
			}
		}
	}

	if inv.eventLog != nil {
		inputJSON, _ := json.Marshal(input)
		if _, err := inv.eventLog.Append(ctx, actx.WorkflowID, eventlog.NewActivityScheduled(actx.ActivityID, name, inputJSON)); err != nil {
			inv.log.Warn("failed to append ActivityScheduled", "activity", name, "error", err)
		}
	}

	br := inv.breakers.Get(name)
	maxAttempts := actx.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !br.Allow() {
			return nil, breaker.ErrOpen
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if actx.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, actx.Timeout)
		}

		actx.Attempt = attempt
		out, err := a.Execute(callCtx, actx, input)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			br.RecordSuccess()
			inv.recordOutcome(ctx, actx.WorkflowID, actx.ActivityID, out, nil, time.Since(start))
			return out, nil
		}

		br.RecordFailure()
		lastErr = err
		inv.log.Warn("activity attempt failed", "activity", name, "attempt", attempt, "max_attempts", maxAttempts, "error", err)

		if !isRetryable(err) || attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}

	inv.recordOutcome(ctx, actx.WorkflowID, actx.ActivityID, nil, lastErr, time.Since(start))
	return nil, lastErr
}

// lookupRecorded consults the event log for a previously recorded
// outcome of activityID within workflowID, building (and caching) an
// in-memory index from the log's replay the first time it's asked for
// a given workflow. Returns ok=false if there is no event log attached
// or no matching recording exists yet.
func (inv *Invoker) lookupRecorded(ctx context.Context, workflowID, activityID string) (map[string]any, error, bool) {
	if inv.eventLog == nil {
		return nil, nil, false
	}

	idx, ok := inv.replay.Load(workflowID)
	if !ok {
		events, err := inv.eventLog.Replay(ctx, workflowID)
		if err != nil {
			return nil, nil, false
		}
		built := make(map[string]recordedOutcome, len(events))
		for _, ev := range events {
			switch ev.Type {
			case eventlog.TypeActivityCompleted:
				var out map[string]any
				_ = json.Unmarshal(ev.Output, &out)
				built[ev.ActivityID] = recordedOutcome{output: out}
			case eventlog.TypeActivityFailed:
				built[ev.ActivityID] = recordedOutcome{err: errors.New(ev.Error)}
			}
		}
		idx, _ = inv.replay.LoadOrStore(workflowID, built)
	}

	outcomes := idx.(map[string]recordedOutcome)
	rec, found := outcomes[activityID]
	if !found {
		return nil, nil, false
	}
	return rec.output, rec.err, true
}

// recordOutcome appends ActivityCompleted/ActivityFailed, updates the
// in-memory replay cache so a later Invoke for the same activity id
// within this process sees it immediately, and asks the checkpoint
// manager whether a Checkpoint event is now due.
func (inv *Invoker) recordOutcome(ctx context.Context, workflowID, activityID string, out map[string]any, err error, duration time.Duration) {
	if idx, ok := inv.replay.Load(workflowID); ok {
		idx.(map[string]recordedOutcome)[activityID] = recordedOutcome{output: out, err: err}
	}

	if inv.eventLog == nil {
		return
	}

	var ev eventlog.Event
	if err == nil {
		outJSON, _ := json.Marshal(out)
		ev = eventlog.NewActivityCompleted(activityID, outJSON, duration.Milliseconds())
	} else {
		ev = eventlog.NewActivityFailed(activityID, err.Error(), isRetryable(err))
	}
	if _, appendErr := inv.eventLog.Append(ctx, workflowID, ev); appendErr != nil {
		inv.log.Warn("failed to append activity outcome", "activity", activityID, "error", appendErr)
		return
	}

	if inv.ckptMgr == nil {
		return
	}
	inv.ckptMgr.RecordEvent()
	if !inv.ckptMgr.ShouldCheckpoint() {
		return
	}
	next, nextErr := inv.eventLog.NextIndex(ctx, workflowID)
	if nextErr != nil {
		return
	}
	state, marshalErr := json.Marshal(checkpointState{LastActivityID: activityID, CompletedAt: time.Now().Unix()})
	if marshalErr != nil {
		return
	}
	cp, createErr := inv.ckptMgr.Create(next, state, nil)
	if createErr != nil {
		inv.log.Warn("failed to create checkpoint", "workflow", workflowID, "error", createErr)
		return
	}
	blob, marshalErr := json.Marshal(cp)
	if marshalErr != nil {
		return
	}
	if _, appendErr := inv.eventLog.Append(ctx, workflowID, eventlog.NewCheckpoint(blob)); appendErr != nil {
		inv.log.Warn("failed to append Checkpoint", "workflow", workflowID, "error", appendErr)
	}
}

// checkpointState is the minimal progress marker recorded in a
// Checkpoint event's StateBytes. Patterns don't externalize their
// internal loop variables (spec §4.H intentionally keeps them opaque
// Go closures), so the durable state a checkpoint captures is the
// position in the activity sequence rather than a full snapshot;
// recovery correctness instead comes from activity-outcome memoization
// in lookupRecorded, which is exact regardless of checkpoint content.
type checkpointState struct {
	LastActivityID string `json:"last_activity_id"`
	CompletedAt    int64  `json:"completed_at"`
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
