package progress

import (
	"context"
	"sync"
	"time"
)

const (
	// subscriberBuffer absorbs short bursts; a full buffer blocks the
	// publisher rather than dropping events, so subscribers always see
	// a gap-free sequence.
	subscriberBuffer = 64
	// retention keeps finished streams around for late subscribers.
	retention = 10 * time.Minute
)

// subscriber is one fan-out target. done is closed by cancellation and
// unblocks a publisher waiting on a full ch.
type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (sub *subscriber) stop() {
	sub.once.Do(func() { close(sub.done) })
}

// Stream is the event history and fan-out for one tree. Publish and
// Subscribe are safe for concurrent use; publishes are serialised under
// the stream lock, so every subscriber sees live events in sequence
// order even when steps of one wave publish in parallel.
type Stream struct {
	treeID string

	mu       sync.Mutex
	seq      int64
	history  []Event
	subs     map[int]*subscriber
	nextSub  int
	closed   bool
	closedAt time.Time
}

func newStream(treeID string) *Stream {
	return &Stream{
		treeID: treeID,
		subs:   make(map[int]*subscriber),
	}
}

// Publish assigns the next sequence number, appends to the replay
// history, and fans out. The lock is held across the fan-out: a slow
// subscriber blocks the publisher (back-pressure) rather than letting a
// concurrent publish overtake this one. The context or a subscriber's
// cancellation releases the wait. Publishing to a closed stream is a
// no-op.
func (s *Stream) Publish(ctx context.Context, eventType EventType, stepID string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	event := Event{
		Seq:       s.seq,
		Type:      eventType,
		TreeID:    s.treeID,
		StepID:    stepID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	s.history = append(s.history, event)
	if eventType.Terminal() {
		s.closed = true
		s.closedAt = time.Now()
	}

	for id, sub := range s.subs {
		select {
		case sub.ch <- event:
		case <-sub.done:
			delete(s.subs, id)
			close(sub.ch)
		case <-ctx.Done():
			return
		}
	}
	if s.closed {
		for id, sub := range s.subs {
			close(sub.ch)
			delete(s.subs, id)
		}
	}
}

// Subscribe returns a channel delivering all events with Seq > afterSeq,
// replaying history first and then live events, gap-free. The channel
// closes when the stream terminates or cancel is called. Subscribing
// after termination replays the history and closes immediately.
func (s *Stream) Subscribe(afterSeq int64) (<-chan Event, func()) {
	s.mu.Lock()

	var replay []Event
	for _, e := range s.history {
		if e.Seq > afterSeq {
			replay = append(replay, e)
		}
	}

	if s.closed {
		s.mu.Unlock()
		ch := make(chan Event, len(replay))
		for _, e := range replay {
			ch <- e
		}
		close(ch)
		return ch, func() {}
	}

	sub := &subscriber{
		ch:   make(chan Event, subscriberBuffer+len(replay)),
		done: make(chan struct{}),
	}
	for _, e := range replay {
		sub.ch <- e
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()

	cancel := func() {
		// Signal before taking the lock: a publisher blocked on this
		// subscriber's full channel holds the lock and waits on done.
		sub.stop()
		s.mu.Lock()
		if cur, ok := s.subs[id]; ok && cur == sub {
			delete(s.subs, id)
			close(sub.ch)
		}
		s.mu.Unlock()
	}
	return sub.ch, cancel
}

// History returns a copy of all published events.
func (s *Stream) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.history))
	copy(out, s.history)
	return out
}

// Closed reports whether a terminal event has been published.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Broker owns the per-tree streams and evicts finished ones after the
// retention window.
type Broker struct {
	mu      sync.Mutex
	streams map[string]*Stream
}

// NewBroker creates a broker and starts its eviction loop, which stops
// when ctx is cancelled.
func NewBroker(ctx context.Context) *Broker {
	b := &Broker{streams: make(map[string]*Stream)}
	go b.evictLoop(ctx)
	return b
}

// Open creates (or returns) the stream for a tree.
func (b *Broker) Open(treeID string) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.streams[treeID]; ok {
		return s
	}
	s := newStream(treeID)
	b.streams[treeID] = s
	return s
}

// Get returns the stream for a tree, or nil if unknown or evicted.
func (b *Broker) Get(treeID string) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[treeID]
}

func (b *Broker) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.evict(time.Now())
		}
	}
}

func (b *Broker) evict(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.streams {
		s.mu.Lock()
		expired := s.closed && now.Sub(s.closedAt) > retention
		s.mu.Unlock()
		if expired {
			delete(b.streams, id)
		}
	}
}
