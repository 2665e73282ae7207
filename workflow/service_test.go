package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/breaker"
	"github.com/shannon-run/shannon/workflow/ckpt"
	"github.com/shannon-run/shannon/workflow/eventlog"
	"github.com/shannon-run/shannon/workflow/pattern"
)

// fakeReasonActivity answers "llm_reason" immediately. If started and
// proceed are set, the first call signals started then blocks until
// proceed is closed, letting a test deterministically act (e.g. send a
// cancel) while that call is in flight but before the pattern's next
// Invoke runs its control.Signal check.
type fakeReasonActivity struct {
	started chan struct{}
	proceed chan struct{}
}

func (f *fakeReasonActivity) Name() string { return "llm_reason" }

func (f *fakeReasonActivity) Execute(_ context.Context, _ activity.Context, _ map[string]any) (map[string]any, error) {
	if f.started != nil {
		f.started <- struct{}{}
		f.started = nil // only the first call gates
		<-f.proceed
	}
	return map[string]any{"text": "a short thought", "input_tokens": 1, "output_tokens": 1}, nil
}

func newTestService(t *testing.T, acts ...activity.Activity) (*Service, eventlog.Log) {
	t.Helper()
	log := eventlog.NewMemLog()
	ckptMgr, err := ckpt.NewManager(ckpt.DefaultConfig())
	if err != nil {
		t.Fatalf("ckpt.NewManager: %v", err)
	}
	inv := activity.NewInvoker(breaker.NewRegistry(breaker.DefaultConfig()), nil, nil)
	for _, a := range acts {
		inv.Register(a)
	}
	svc := NewService(log, ckptMgr, pattern.NewRegistry(), inv, 2, nil)
	return svc, log
}

func TestService_SubmitRunsToCompletion(t *testing.T) {
	svc, log := newTestService(t, &fakeReasonActivity{})

	handle, err := svc.Submit(context.Background(), SubmitRequest{
		PatternType: "chain_of_thought",
		Query:       "why is the sky blue",
		Config:      map[string]any{"max_steps": 1},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ch, unsubscribe := handle.Bus.Subscribe()
	defer unsubscribe()
	for range ch {
	}

	meta, err := log.GetMetadata(context.Background(), handle.WorkflowID)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta.Status != eventlog.StatusCompleted {
		t.Fatalf("status = %s, want %s", meta.Status, eventlog.StatusCompleted)
	}
	if meta.CompletedAt == 0 {
		t.Fatal("CompletedAt not set on completion")
	}
}

func TestService_SubmitUnknownPatternRejected(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Submit(context.Background(), SubmitRequest{PatternType: "does_not_exist", Query: "x"})
	if !errors.Is(err, ErrUnknownPattern) {
		t.Fatalf("err = %v, want ErrUnknownPattern", err)
	}
}

func TestService_ControlSignalsOnUnknownWorkflowFail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, op := range []func(context.Context, string) error{svc.Pause, svc.Resume, svc.Cancel} {
		if err := op(ctx, "no-such-workflow"); !errors.Is(err, ErrUnknownWorkflow) {
			t.Fatalf("err = %v, want ErrUnknownWorkflow", err)
		}
	}
}

func TestService_CancelStopsAFutureStep(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	svc, log := newTestService(t, &fakeReasonActivity{started: started, proceed: proceed})

	handle, err := svc.Submit(context.Background(), SubmitRequest{
		PatternType: "chain_of_thought",
		Query:       "why",
		Config:      map[string]any{"max_steps": 10},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-started // first reasoning step is in flight, blocked on proceed

	if err := svc.Cancel(context.Background(), handle.WorkflowID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(proceed) // let the first step finish; the pattern's second Invoke now observes the cancel

	ch, unsubscribe := handle.Bus.Subscribe()
	defer unsubscribe()
	for range ch {
	}

	meta, err := log.GetMetadata(context.Background(), handle.WorkflowID)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta.Status != eventlog.StatusCancelled {
		t.Fatalf("status = %s, want %s", meta.Status, eventlog.StatusCancelled)
	}
}

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to eventlog.Status
		want     bool
	}{
		{eventlog.StatusPending, eventlog.StatusRunning, true},
		{eventlog.StatusPending, eventlog.StatusCompleted, false},
		{eventlog.StatusRunning, eventlog.StatusPaused, true},
		{eventlog.StatusPaused, eventlog.StatusRunning, true},
		{eventlog.StatusPaused, eventlog.StatusCompleted, false},
		{eventlog.StatusCompleted, eventlog.StatusRunning, false},
	}
	for _, c := range cases {
		if got := validTransition(c.from, c.to); got != c.want {
			t.Errorf("validTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
