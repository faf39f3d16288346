// Package connectivity tracks whether the record store is reachable.
package connectivity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Switch is a connectivity oracle whose state is set explicitly.
type Switch struct {
	mu        sync.Mutex
	connected bool
	handlers  map[int]func(bool)
	nextID    int
}

func NewSwitch(connected bool) *Switch {
	return &Switch{connected: connected, handlers: make(map[int]func(bool))}
}

func (s *Switch) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// OnChange registers handler for every transition, in registration order.
func (s *Switch) OnChange(handler func(connected bool)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

// Set records the current state and notifies handlers when it changed.
// It reports whether a transition happened.
func (s *Switch) Set(connected bool) bool {
	s.mu.Lock()
	if s.connected == connected {
		s.mu.Unlock()
		return false
	}
	s.connected = connected

	ids := make([]int, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(connected)
	}
	return true
}

// CheckFunc reports whether the remote side answers.
type CheckFunc func(ctx context.Context) error

// Prober drives a Switch from a periodic health check.
type Prober struct {
	sw       *Switch
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	logger   *zerolog.Logger
}

func NewProber(sw *Switch, check CheckFunc, interval, timeout time.Duration, logger *zerolog.Logger) *Prober {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Prober{sw: sw, check: check, interval: interval, timeout: timeout, logger: logger}
}

// Probe runs one check and updates the switch.
func (p *Prober) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(probeCtx)
	if ctx.Err() != nil {
		// shutting down; a cancelled probe says nothing about the network
		return p.sw.IsConnected()
	}
	connected := err == nil
	if p.sw.Set(connected) {
		if connected {
			p.logger.Info().Msg("Record store reachable, back online")
		} else {
			p.logger.Warn().Err(err).Msg("Record store unreachable, going offline")
		}
	}
	return connected
}

// Run probes immediately and then every interval until ctx ends.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
