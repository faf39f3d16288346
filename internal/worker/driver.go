// Package worker replays the offline mutation queue when connectivity returns.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"bookingsync/internal/domain"
	"bookingsync/internal/models"
	"bookingsync/internal/queue"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Options tune replay. Zero values mean unpaced replay and no online retries.
type Options struct {
	ReplayRPS   float64
	ReplayBurst int
	Retry       RetryPolicy
}

// Driver starts a drain on every offline to online transition.
type Driver struct {
	queue    *queue.Queue
	conn     domain.Connectivity
	dispatch queue.Dispatcher
	limiter  *rate.Limiter
	retry    RetryPolicy
	logger   *zerolog.Logger

	mu       sync.Mutex
	stopped  bool
	rerun    bool
	attempt  int
	timer    *time.Timer
	inFlight sync.WaitGroup
}

func NewDriver(q *queue.Queue, conn domain.Connectivity, dispatch queue.Dispatcher, opts Options, logger *zerolog.Logger) *Driver {
	d := &Driver{
		queue:    q,
		conn:     conn,
		dispatch: dispatch,
		retry:    opts.Retry,
		logger:   logger,
	}
	if opts.ReplayRPS > 0 {
		burst := opts.ReplayBurst
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.ReplayRPS), burst)
	}
	return d
}

// Start subscribes to connectivity changes and drains once right away when
// online with work pending. The returned stop func unsubscribes and waits for
// running drains.
func (d *Driver) Start(ctx context.Context) (stop func()) {
	cancel := d.conn.OnChange(func(connected bool) {
		if connected {
			d.logger.Info().Msg("Connectivity restored, replaying offline queue")
			d.trigger(ctx)
			return
		}
		d.cancelRetry()
	})

	if d.conn.IsConnected() {
		if n, err := d.queue.Len(ctx); err != nil {
			d.logger.Error().Err(err).Msg("Failed to read offline queue")
		} else if n > 0 {
			d.trigger(ctx)
		}
	}

	return func() {
		cancel()
		d.mu.Lock()
		d.stopped = true
		if d.timer != nil {
			d.timer.Stop()
		}
		d.mu.Unlock()
		d.inFlight.Wait()
	}
}

func (d *Driver) trigger(ctx context.Context) {
	d.mu.Lock()
	if d.stopped || ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	d.inFlight.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.inFlight.Done()
		d.run(ctx)
	}()
}

func (d *Driver) run(ctx context.Context) {
	res, err := d.Drain(ctx)
	if errors.Is(err, queue.ErrDrainInFlight) {
		// the running pass works on its own snapshot; go again once it ends
		d.mu.Lock()
		d.rerun = true
		d.mu.Unlock()
		d.logger.Debug().Msg("Drain already running, another pass will follow")
		if !d.queue.Draining() {
			d.takeRerun(ctx)
		}
		return
	}
	if err != nil {
		d.logger.Error().Err(err).Msg("Offline queue drain failed")
	}

	d.scheduleRetry(ctx, res, err)
	d.takeRerun(ctx)
}

func (d *Driver) scheduleRetry(ctx context.Context, res queue.DrainResult, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res.Failed == 0 && err == nil {
		d.attempt = 0
		return
	}
	d.attempt++
	if d.stopped || !d.retry.Allows(d.attempt) || !d.conn.IsConnected() {
		return
	}
	delay := d.retry.NextDelay(d.attempt)
	d.logger.Info().Int("attempt", d.attempt).Dur("delay", delay).Int("remaining", res.Remaining).Msg("Scheduling another drain")
	d.timer = time.AfterFunc(delay, func() {
		if d.conn.IsConnected() {
			d.trigger(ctx)
		}
	})
}

// takeRerun starts the pass requested while another one was running.
func (d *Driver) takeRerun(ctx context.Context) {
	d.mu.Lock()
	pending := d.rerun
	d.rerun = false
	d.mu.Unlock()

	if pending && d.conn.IsConnected() {
		d.trigger(ctx)
	}
}

func (d *Driver) cancelRetry() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.attempt = 0
}

// Drain replays the queue now, paced by the replay limiter.
func (d *Driver) Drain(ctx context.Context) (queue.DrainResult, error) {
	dispatch := d.dispatch
	if d.limiter != nil {
		dispatch = func(ctx context.Context, m models.QueuedMutation) error {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
			return d.dispatch(ctx, m)
		}
	}
	return d.queue.Drain(ctx, dispatch)
}
