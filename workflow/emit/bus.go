package emit

import "sync"

// subscriberCapacity bounds each subscriber's lag buffer. A subscriber that
// falls this far behind the publisher has events dropped rather than
// blocking the workflow (§4.G: "no engine back-pressure").
const subscriberCapacity = 256

// Bus is a per-workflow broadcast channel of NormalizedEvent values.
//
// Publishers (the engine, activities, control signals) call Publish;
// subscribers (SSE streams) call Subscribe and receive events from the
// moment they attach. A subscriber whose buffer is full silently misses
// each newly published event until it drains — the bus never blocks a
// publisher.
//
// A Bus may also carry zero or more Emitter sinks (structured logging,
// OpenTelemetry spans, ...); every published event reaches every sink
// synchronously, in addition to being fanned out to subscribers. Sinks
// are ambient observability, not part of the spec's delivery contract,
// so a slow or failing sink must not be allowed to affect it — callers
// wrap this package's Emitter implementations, which are documented as
// non-blocking and panic-free.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan NormalizedEvent
	sinks       []Emitter
	nextID      int
	seq         int
	closed      bool
}

// NewBus creates an empty Bus for a single workflow, forwarding every
// published event to each of sinks (may be empty).
func NewBus(sinks ...Emitter) *Bus {
	return &Bus{subscribers: make(map[int]chan NormalizedEvent), sinks: sinks}
}

// Publish fans ev out to every live subscriber and every configured
// sink. It never blocks on a subscriber: one whose channel is full has
// the event dropped for it.
func (b *Bus) Publish(ev NormalizedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.seq++
	if len(b.sinks) > 0 {
		sinkEvent := toEvent(ev, b.seq)
		for _, sink := range b.sinks {
			sink.Emit(sinkEvent)
		}
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Lagging subscriber; drop rather than block the publisher.
		}
	}
}

// Subscribe attaches a new listener and returns its channel plus an
// unsubscribe function. The channel is closed when the bus is closed or
// the returned function is called.
func (b *Bus) Subscribe() (<-chan NormalizedEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan NormalizedEvent, subscriberCapacity)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// Close shuts down the bus, closing every subscriber channel. Further
// Publish calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
