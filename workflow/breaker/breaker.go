// Package breaker implements a per-dependency circuit breaker guarding
// calls to external endpoints (LLM providers, tool backends) from
// cascading failure (spec §4.E).
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow/Call when the breaker is open and rejecting
// calls outright.
var ErrOpen = errors.New("breaker: circuit open")

// Config tunes a Breaker's thresholds.
type Config struct {
	// FailureRatio is the fraction of failed calls within the rolling
	// window that trips the breaker from Closed to Open.
	FailureRatio float64

	// MinSamples is the minimum number of calls observed in the window
	// before FailureRatio is evaluated; below this, the breaker never
	// trips regardless of ratio.
	MinSamples int

	// WindowSize bounds how many recent outcomes are retained for the
	// rolling failure-ratio calculation.
	WindowSize int

	// Cooldown is how long the breaker stays Open before allowing a
	// single HalfOpen probe.
	Cooldown time.Duration
}

// DefaultConfig is a reasonable default for an LLM or tool backend call.
func DefaultConfig() Config {
	return Config{
		FailureRatio: 0.5,
		MinSamples:   10,
		WindowSize:   50,
		Cooldown:     30 * time.Second,
	}
}

// Breaker is a single per-dependency circuit breaker implementing
// Closed -> Open -> HalfOpen -> Closed (spec §4.E).
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	outcomes    []bool // true = success, ring buffer truncated to WindowSize
	openedAt    time.Time
	probeInFlight bool
}

// New constructs a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed}
}

// State returns the breaker's current state, resolving an elapsed cooldown
// into HalfOpen as a side effect (mirroring the spec's "after cooldown,
// transition to HalfOpen" rule without requiring a separate poller).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeExpireCooldownLocked()
	return b.state
}

func (b *Breaker) maybeExpireCooldownLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.Cooldown {
		b.state = HalfOpen
		b.probeInFlight = false
	}
}

// Allow reports whether a call may proceed right now, and reserves the
// single HalfOpen probe slot if this call is that probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeExpireCooldownLocked()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default: // Open
		return false
	}
}

// RecordSuccess reports a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.outcomes = nil
		b.probeInFlight = false
	case Closed:
		b.recordOutcomeLocked(true)
		if b.shouldTripLocked() {
			b.tripLocked()
		}
	}
}

// RecordFailure reports a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.tripLocked()
	case Closed:
		b.recordOutcomeLocked(false)
		if b.shouldTripLocked() {
			b.tripLocked()
		}
	}
}

func (b *Breaker) recordOutcomeLocked(success bool) {
	b.outcomes = append(b.outcomes, success)
	if over := len(b.outcomes) - b.cfg.WindowSize; over > 0 {
		b.outcomes = b.outcomes[over:]
	}
}

func (b *Breaker) shouldTripLocked() bool {
	if len(b.outcomes) < b.cfg.MinSamples {
		return false
	}
	failures := 0
	for _, ok := range b.outcomes {
		if !ok {
			failures++
		}
	}
	ratio := float64(failures) / float64(len(b.outcomes))
	return ratio > b.cfg.FailureRatio
}

func (b *Breaker) tripLocked() {
	b.state = Open
	b.openedAt = time.Now()
	b.outcomes = nil
	b.probeInFlight = false
}

// Call runs fn if the breaker allows it, recording the outcome. It returns
// ErrOpen without calling fn if the breaker is tripped.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn(ctx)
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Registry holds one Breaker per named dependency, created lazily on first
// use with a shared Config.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry constructs an empty Registry; every dependency it creates a
// Breaker for uses cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the Breaker for dependency, creating one if it does not
// already exist.
func (r *Registry) Get(dependency string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[dependency]
	if !ok {
		b = New(r.cfg)
		r.breakers[dependency] = b
	}
	return b
}
