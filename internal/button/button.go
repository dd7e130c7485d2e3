// Package button turns raw GPIO edges into debounced Press/Release events.
//
// Edge is the only method that may be called from a line's edge-event
// goroutine. It never blocks, never allocates and never runs subscriber code:
// accepted transitions are queued and delivered later by Drain or Deliver,
// which the main loop calls at its own safe points.
package button

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the number of undelivered events a Source buffers
// before it starts dropping.
const DefaultQueueSize = 32

// Kind is the type of a debounced transition.
type Kind uint8

const (
	// Press is a transition to the active (low) level.
	Press Kind = iota + 1
	// Release is a transition to the inactive (high) level.
	Release
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "PRESS"
	case Release:
		return "RELEASE"
	default:
		return "UNKNOWN"
	}
}

// Handle identifies a registered input line.
type Handle int

// Event is a debounced transition waiting for delivery.
type Event struct {
	Handle Handle
	Line   int
	Kind   Kind
	At     time.Time
}

// Handler receives delivered events on the main loop.
type Handler func(Event)

// channel is the debounce state for one line. level and accepted are only
// touched from that line's edge context.
type channel struct {
	line     int
	window   time.Duration
	level    bool // last accepted level, true = high
	accepted time.Time
	handlers []Handler
}

// Source owns every registered line and the deferred event queue.
type Source struct {
	now   func() time.Time
	queue chan Event
	drops atomic.Uint64

	mu    sync.Mutex // guards handlers
	chans []*channel
}

// NewSource creates a Source whose queue holds up to size events.
// now supplies edge timestamps; nil means time.Now.
func NewSource(size int, now func() time.Time) *Source {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if now == nil {
		now = time.Now
	}
	return &Source{
		now:   now,
		queue: make(chan Event, size),
	}
}

// Register adds a line with the given debounce window and its current level.
// All lines must be registered before any of them starts delivering edges.
func (s *Source) Register(line int, window time.Duration, high bool) Handle {
	s.chans = append(s.chans, &channel{
		line:   line,
		window: window,
		level:  high,
	})
	return Handle(len(s.chans) - 1)
}

// Subscribe appends fn to the handlers of h. Handlers run in subscription order.
func (s *Source) Subscribe(h Handle, fn Handler) {
	c := s.channel(h)
	if c == nil || fn == nil {
		return
	}
	s.mu.Lock()
	c.handlers = append(c.handlers, fn)
	s.mu.Unlock()
}

// Edge records a raw edge on h with the level sampled by the caller.
//
// Edges arriving less than the debounce window after the last accepted
// transition are bounces and are discarded. An edge that does not change the
// accepted level is ignored. Otherwise a Press (low) or Release (high) is
// queued; if the queue is full the event is dropped and counted.
func (s *Source) Edge(h Handle, high bool) {
	c := s.channel(h)
	if c == nil {
		return
	}
	now := s.now()
	if !c.accepted.IsZero() && now.Sub(c.accepted) < c.window {
		return
	}
	if high == c.level {
		return
	}
	c.level = high
	c.accepted = now

	kind := Release
	if !high {
		kind = Press
	}
	select {
	case s.queue <- Event{Handle: h, Line: c.line, Kind: kind, At: now}:
	default:
		s.drops.Add(1)
	}
}

// Events exposes the deferred queue so a main loop can wake on input.
// Every received event must be passed to Deliver.
func (s *Source) Events() <-chan Event {
	return s.queue
}

// Deliver runs the handlers of ev.Handle in order. A panicking handler is
// logged and skipped; the remaining handlers still run.
func (s *Source) Deliver(ev Event) {
	c := s.channel(ev.Handle)
	if c == nil {
		return
	}
	s.mu.Lock()
	handlers := append([]Handler(nil), c.handlers...)
	s.mu.Unlock()

	for _, fn := range handlers {
		call(fn, ev)
	}
}

// Drain delivers every queued event in FIFO order and returns how many it
// delivered. It does not wait for new events.
func (s *Source) Drain() int {
	n := 0
	for {
		select {
		case ev := <-s.queue:
			s.Deliver(ev)
			n++
		default:
			return n
		}
	}
}

// Drops returns the number of events lost to a full queue.
func (s *Source) Drops() uint64 {
	return s.drops.Load()
}

func (s *Source) channel(h Handle) *channel {
	if h < 0 || int(h) >= len(s.chans) {
		return nil
	}
	return s.chans[h]
}

func call(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("button: handler for line %d %s panicked: %v", ev.Line, ev.Kind, r)
		}
	}()
	fn(ev)
}
