// Package events fans record changes out to realtime subscribers.
package events

import (
	"context"
	"sync"

	"bookingsync/internal/domain"
)

// Hub provides in-process realtime change streams, one per subscription.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[*Subscription]struct{})}
}

// Subscription delivers the events of one table that pass its filter, in
// publish order. Publishing never blocks on a slow reader.
type Subscription struct {
	hub    *Hub
	table  string
	filter domain.Filter

	mu      sync.Mutex
	pending []domain.ChangeEvent
	wake    chan struct{}
	done    chan struct{}
	out     chan domain.ChangeEvent
	once    sync.Once
}

// Subscribe registers a stream for table rows matching filter. The stream is
// closed by Unsubscribe or when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, table string, filter domain.Filter) *Subscription {
	s := &Subscription{
		hub:    h,
		table:  table,
		filter: filter,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan domain.ChangeEvent),
	}

	h.mu.Lock()
	if h.subscribers[table] == nil {
		h.subscribers[table] = make(map[*Subscription]struct{})
	}
	h.subscribers[table][s] = struct{}{}
	h.mu.Unlock()

	go s.pump()
	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe()
		case <-s.done:
		}
	}()
	return s
}

// Publish notifies subscribers of table whose filter matches the new row.
func (h *Hub) Publish(table string, event domain.ChangeEvent) {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subscribers[table]))
	for s := range h.subscribers[table] {
		if s.filter.Matches(event.New) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(event)
	}
}

// Subscribers returns the number of live subscriptions on table.
func (h *Hub) Subscribers(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[table])
}

func (s *Subscription) Events() <-chan domain.ChangeEvent {
	return s.out
}

// Unsubscribe stops delivery and closes the events channel. Safe to call twice.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subscribers[s.table], s)
		if len(s.hub.subscribers[s.table]) == 0 {
			delete(s.hub.subscribers, s.table)
		}
		s.hub.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) enqueue(event domain.ChangeEvent) {
	s.mu.Lock()
	s.pending = append(s.pending, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, event := range batch {
			select {
			case s.out <- event:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}
