package reconcile

import "sync"

// publisher hands the newest snapshot to a callback on its own goroutine.
type publisher struct {
	mu      sync.Mutex
	latest  *Snapshot
	sent    uint64
	stopped bool
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
	deliver func(Snapshot)
}

func newPublisher(deliver func(Snapshot)) *publisher {
	p := &publisher{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		deliver: deliver,
	}
	go p.run()
	return p
}

func (p *publisher) publish(s Snapshot) {
	p.mu.Lock()
	if p.latest == nil || s.Version >= p.latest.Version {
		p.latest = &s
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *publisher) run() {
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}

		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			return
		}
		s := p.latest
		p.latest = nil
		fresh := s != nil && (p.sent == 0 || s.Version > p.sent)
		if fresh {
			p.sent = s.Version
		}
		p.mu.Unlock()

		if fresh {
			p.deliver(*s)
		}
	}
}

// stop ends delivery. A callback already running is not waited for, so
// OnUpdate may close its own view; no new one starts after stop returns.
func (p *publisher) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.once.Do(func() { close(p.done) })
}
