package emit

import (
	"testing"
	"time"
)

func TestBus_SubscribePublish(t *testing.T) {
	t.Run("subscriber receives published events", func(t *testing.T) {
		bus := NewBus()
		ch, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		bus.Publish(WorkflowStarted("wf-1", "chain_of_thought"))

		select {
		case ev := <-ch:
			if ev.Kind != KindWorkflowStarted {
				t.Fatalf("expected %s, got %s", KindWorkflowStarted, ev.Kind)
			}
			if ev.WorkflowID != "wf-1" {
				t.Fatalf("expected workflow id wf-1, got %s", ev.WorkflowID)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("late subscriber misses earlier events", func(t *testing.T) {
		bus := NewBus()
		bus.Publish(Progress("wf-1", 10, ""))

		ch, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		select {
		case ev := <-ch:
			t.Fatalf("expected no backlog, got %+v", ev)
		case <-time.After(50 * time.Millisecond):
			// expected: late subscribers do not see history
		}
	})

	t.Run("lagging subscriber drops events instead of blocking publisher", func(t *testing.T) {
		bus := NewBus()
		_, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		done := make(chan struct{})
		go func() {
			for i := 0; i < subscriberCapacity*2; i++ {
				bus.Publish(Progress("wf-1", i%100, ""))
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a lagging subscriber")
		}
	})
}

func TestBus_Sinks(t *testing.T) {
	t.Run("publish forwards to every sink", func(t *testing.T) {
		sinkA := &mockEmitter{}
		sinkB := &mockEmitter{}
		bus := NewBus(sinkA, sinkB)

		bus.Publish(WorkflowStarted("wf-1", "chain_of_thought"))
		bus.Publish(Progress("wf-1", 50, "halfway"))

		for _, sink := range []*mockEmitter{sinkA, sinkB} {
			if len(sink.events) != 2 {
				t.Fatalf("expected 2 events delivered to sink, got %d", len(sink.events))
			}
			if sink.events[0].Seq != 1 || sink.events[1].Seq != 2 {
				t.Fatalf("expected sequential Seq 1,2, got %d,%d", sink.events[0].Seq, sink.events[1].Seq)
			}
		}
	})

	t.Run("closed bus stops forwarding to sinks", func(t *testing.T) {
		sink := &mockEmitter{}
		bus := NewBus(sink)
		bus.Close()
		bus.Publish(Progress("wf-1", 10, ""))

		if len(sink.events) != 0 {
			t.Fatalf("expected no events after close, got %d", len(sink.events))
		}
	})

	t.Run("no sinks configured is a no-op", func(t *testing.T) {
		bus := NewBus()
		bus.Publish(Progress("wf-1", 10, ""))
	})
}

func TestBus_Close(t *testing.T) {
	t.Run("closes subscriber channels", func(t *testing.T) {
		bus := NewBus()
		ch, _ := bus.Subscribe()
		bus.Close()

		_, ok := <-ch
		if ok {
			t.Fatal("expected channel to be closed")
		}
	})

	t.Run("publish after close is a no-op", func(t *testing.T) {
		bus := NewBus()
		bus.Close()
		bus.Publish(WorkflowFailed("wf-1", "boom"))
	})
}
