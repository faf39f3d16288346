// Package queue keeps the durable FIFO of write intents captured while offline.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bookingsync/internal/domain"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrDrainInFlight is returned when a drain is requested while another runs.
var ErrDrainInFlight = errors.New("drain already in flight")

// Dispatcher performs the online write for one queued mutation.
// It owns its own timeouts; the queue only looks at success or failure.
type Dispatcher func(ctx context.Context, m models.QueuedMutation) error

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Dispatched int
	Succeeded  int
	Failed     int
	Remaining  int
}

// Queue is an append-only list of mutations persisted as one JSON array.
type Queue struct {
	store  domain.KVStore
	key    string
	logger *zerolog.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	loaded   bool
	items    []models.QueuedMutation
	draining atomic.Bool
}

type Option func(*Queue)

// WithKey stores the queue under a key other than the default.
func WithKey(key string) Option {
	return func(q *Queue) { q.key = key }
}

// WithClock overrides the enqueue timestamp source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithIDGenerator overrides mutation id generation.
func WithIDGenerator(newID func() string) Option {
	return func(q *Queue) { q.newID = newID }
}

// New binds a queue to store. Persisted state is read on first use.
func New(store domain.KVStore, logger *zerolog.Logger, opts ...Option) *Queue {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	q := &Queue{
		store:  store,
		key:    models.OfflineQueueKey,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// ensureLoaded must be called with q.mu held.
func (q *Queue) ensureLoaded(ctx context.Context) error {
	if q.loaded {
		return nil
	}
	raw, found, err := q.store.Get(ctx, q.key)
	if err != nil {
		return fmt.Errorf("load offline queue: %w", err)
	}
	var items []models.QueuedMutation
	if found && raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return fmt.Errorf("decode offline queue: %w", err)
		}
	}
	q.items = items
	q.loaded = true
	metrics.SetQueueLength(len(q.items))
	return nil
}

// persist must be called with q.mu held.
func (q *Queue) persist(ctx context.Context, items []models.QueuedMutation) error {
	if items == nil {
		items = []models.QueuedMutation{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode offline queue: %w", err)
	}
	if err := q.store.Set(ctx, q.key, string(data)); err != nil {
		return fmt.Errorf("persist offline queue: %w", err)
	}
	return nil
}

// Enqueue appends a mutation and returns only after the durable write succeeded.
func (q *Queue) Enqueue(ctx context.Context, kind models.MutationKind, payload interface{}) (models.QueuedMutation, error) {
	if kind == "" {
		return models.QueuedMutation{}, errors.New("mutation kind is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.QueuedMutation{}, fmt.Errorf("encode payload: %w", err)
	}

	m := models.QueuedMutation{
		ID:         q.newID(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ensureLoaded(ctx); err != nil {
		return models.QueuedMutation{}, err
	}

	next := make([]models.QueuedMutation, len(q.items), len(q.items)+1)
	copy(next, q.items)
	next = append(next, m)

	if err := q.persist(ctx, next); err != nil {
		q.logger.Error().Err(err).Str("kind", string(kind)).Msg("offline queue write failed")
		return models.QueuedMutation{}, err
	}
	q.items = next
	metrics.SetQueueLength(len(q.items))

	q.logger.Debug().Str("mutation_id", m.ID).Str("kind", string(kind)).Int("queue_length", len(q.items)).Msg("mutation queued")
	return m, nil
}

// Items returns the queue contents in replay order.
func (q *Queue) Items(ctx context.Context) ([]models.QueuedMutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make([]models.QueuedMutation, len(q.items))
	copy(out, q.items)
	return out, nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	items, err := q.Items(ctx)
	return len(items), err
}

// Clear empties the queue, durably.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.persist(ctx, nil); err != nil {
		return err
	}
	q.items = nil
	q.loaded = true
	metrics.SetQueueLength(0)
	return nil
}

// Draining reports whether a drain pass is running.
func (q *Queue) Draining() bool {
	return q.draining.Load()
}

// Drain replays the queued mutations in FIFO order. Succeeded items are
// removed, failed ones kept in place. The surviving list, plus anything
// enqueued meanwhile, is written back once at the end of the pass.
func (q *Queue) Drain(ctx context.Context, dispatch Dispatcher) (DrainResult, error) {
	if !q.draining.CompareAndSwap(false, true) {
		metrics.IncDrain("skipped")
		return DrainResult{}, ErrDrainInFlight
	}
	defer q.draining.Store(false)

	q.mu.Lock()
	if err := q.ensureLoaded(ctx); err != nil {
		q.mu.Unlock()
		metrics.IncDrain("error")
		return DrainResult{}, err
	}
	snapshot := make([]models.QueuedMutation, len(q.items))
	copy(snapshot, q.items)
	q.mu.Unlock()

	var result DrainResult
	done := make(map[string]bool, len(snapshot))
	for _, m := range snapshot {
		if ctx.Err() != nil {
			break
		}
		result.Dispatched++
		if err := dispatch(ctx, m); err != nil {
			result.Failed++
			metrics.IncDrainItem("failed")
			q.logger.Warn().Err(err).Str("mutation_id", m.ID).Str("kind", string(m.Kind)).Msg("replay failed, keeping mutation")
			continue
		}
		result.Succeeded++
		done[m.ID] = true
		metrics.IncDrainItem("succeeded")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	survivors := make([]models.QueuedMutation, 0, len(q.items))
	for _, m := range q.items {
		if !done[m.ID] {
			survivors = append(survivors, m)
		}
	}
	result.Remaining = len(survivors)

	if result.Succeeded > 0 {
		// the replayed writes already happened; finish the rewrite even if ctx ended
		if err := q.persist(context.WithoutCancel(ctx), survivors); err != nil {
			q.items = survivors
			metrics.SetQueueLength(len(q.items))
			metrics.IncDrain("error")
			q.logger.Error().Err(err).Int("succeeded", result.Succeeded).Msg("offline queue rewrite failed after drain")
			return result, err
		}
	}
	q.items = survivors
	metrics.SetQueueLength(len(q.items))
	metrics.IncDrain("completed")

	q.logger.Info().
		Int("dispatched", result.Dispatched).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("remaining", result.Remaining).
		Msg("offline queue drained")
	return result, nil
}
