// Package control implements the cooperative pause/cancel signal a
// running workflow's activities check at their safe points (spec
// §4.I, §5: "Pause/cancel take effect only at the next suspension
// after the signal is observed — never mid-step").
package control

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by Await once the signal has been
// cancelled, whether the caller was paused at the time or not.
var ErrCancelled = errors.New("control: workflow cancelled")

// Signal is a single workflow's pause/cancel switch, shared between
// the component driving the workflow (workflow.Service) and every
// activity invocation it makes along the way.
type Signal struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	resumeCh  chan struct{}
}

// New returns a Signal in the running (not paused, not cancelled) state.
func New() *Signal {
	return &Signal{resumeCh: make(chan struct{})}
}

// Pause marks the signal paused. A no-op once cancelled.
func (s *Signal) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.paused = true
}

// Resume clears a pause, releasing anyone blocked in Await.
func (s *Signal) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	close(s.resumeCh)
	s.resumeCh = make(chan struct{})
}

// Cancel marks the signal cancelled, releasing anyone blocked in Await
// with ErrCancelled. Idempotent.
func (s *Signal) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.paused {
		s.paused = false
		close(s.resumeCh)
		s.resumeCh = make(chan struct{})
	}
}

// Cancelled reports whether Cancel has been called.
func (s *Signal) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Await blocks while the signal is paused and returns nil once it may
// proceed, ErrCancelled if cancelled (before or during the wait), or
// ctx.Err() if ctx is done first. Called at a workflow's safe points —
// between activity invocations — never from inside one.
func (s *Signal) Await(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.cancelled {
			s.mu.Unlock()
			return ErrCancelled
		}
		if !s.paused {
			s.mu.Unlock()
			return nil
		}
		waitCh := s.resumeCh
		s.mu.Unlock()

		select {
		case <-waitCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
