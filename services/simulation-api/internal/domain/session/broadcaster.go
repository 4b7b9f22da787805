package session

import (
	"sync"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/orchestrator"
)

// Broadcaster fans chain events out to subscribers without blocking the
// chain. A slow subscriber never loses turn or chain lifecycle events; while
// it lags, queued deltas of the same turn collapse into the newest one, since
// each delta carries the content accumulated so far.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscriber
}

type subscriber struct {
	mu    sync.Mutex
	queue []orchestrator.Event
	wake  chan struct{}
	done  chan struct{}
	out   chan orchestrator.Event
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Subscribe returns a channel of events and a function that unsubscribes.
// The channel is closed after unsubscribing.
func (b *Broadcaster) Subscribe(buffer int) (<-chan orchestrator.Event, func()) {
	sub := &subscriber{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan orchestrator.Event, max(buffer, 0)),
	}
	go sub.pump()

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.out, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish queues ev for every subscriber.
func (b *Broadcaster) Publish(ev orchestrator.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.push(ev)
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (s *subscriber) push(ev orchestrator.Event) {
	s.mu.Lock()
	if !s.coalesce(ev) {
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// coalesce replaces a queued delta of the same turn with ev. Deltas of a turn
// always precede its turn.completed, so the order of other events holds.
func (s *subscriber) coalesce(ev orchestrator.Event) bool {
	if ev.Type != orchestrator.EventTurnDelta {
		return false
	}
	for i := len(s.queue) - 1; i >= 0; i-- {
		q := s.queue[i]
		if q.PersonaID != ev.PersonaID {
			continue
		}
		if q.Type == orchestrator.EventTurnDelta && q.Index == ev.Index {
			s.queue[i] = ev
			return true
		}
		return false
	}
	return false
}

func (s *subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = orchestrator.Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
