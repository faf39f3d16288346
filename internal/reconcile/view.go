// Package reconcile keeps a viewer's booking list consistent with realtime
// change events.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bookingsync/internal/domain"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrClosed         = errors.New("view closed")
	ErrAlreadyStarted = errors.New("view already started")
)

// PageLoader returns page of the viewer's bookings and whether more may follow.
type PageLoader func(ctx context.Context, page int) (bookings []models.Booking, hasMore bool, err error)

type Config struct {
	SubjectID string
	Role      models.Role
	Store     domain.RecordStore
	Load      PageLoader
	Cache     domain.BookingCache
	Notifier  domain.Notifier
	Faults    domain.FaultSink
	// OnUpdate receives snapshots from a dedicated goroutine, so it may call
	// back into the view. Intermediate snapshots can be coalesced.
	OnUpdate func(Snapshot)
	Logger   *zerolog.Logger
}

type notification struct {
	title string
	body  string
}

// View is one mounted booking list for (subject, role).
type View struct {
	cfg    Config
	logger *zerolog.Logger

	mu          sync.Mutex
	state       State
	bookings    []models.Booking
	err         error
	hasMore     bool
	pages       int
	version     uint64
	gen         uint64
	loadingMore bool
	buffered    []domain.ChangeEvent
	started     bool
	closed      bool
	sub         domain.Subscription

	out *publisher
}

func NewView(cfg Config) *View {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("subject_id", cfg.SubjectID).Str("role", string(cfg.Role)).Logger()
	return &View{cfg: cfg, logger: &l, state: StateLoading}
}

// Start opens the view's single subscription and loads page 0. Events that
// arrive during the load are applied once it completes. A failed load leaves
// the view in StateError; only a failed subscription is returned.
func (v *View) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.started {
		v.mu.Unlock()
		return ErrAlreadyStarted
	}
	v.started = true
	if v.cfg.OnUpdate != nil {
		v.out = newPublisher(v.cfg.OnUpdate)
	}
	v.mu.Unlock()

	sub, err := v.cfg.Store.Subscribe(ctx, models.BookingsTable, domain.Filter{
		Column: v.cfg.Role.Column(),
		Value:  v.cfg.SubjectID,
	})
	if err != nil {
		v.mu.Lock()
		v.setErrorLocked(err)
		snap := v.snapshotLocked()
		v.mu.Unlock()
		v.emit(snap)
		return fmt.Errorf("subscribe to bookings: %w", err)
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		sub.Unsubscribe()
		return ErrClosed
	}
	v.sub = sub
	v.mu.Unlock()

	go v.consume(ctx, sub)

	v.load(ctx)
	return nil
}

func (v *View) consume(ctx context.Context, sub domain.Subscription) {
	for event := range sub.Events() {
		v.Apply(ctx, event)
	}
}

// Close tears down the subscription. Results of fetches still in flight are
// discarded when they land.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	sub := v.sub
	out := v.out
	v.sub = nil
	v.buffered = nil
	v.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if out != nil {
		out.stop()
	}
	v.logger.Debug().Msg("View closed")
}

// Retry reloads page 0 from StateError.
func (v *View) Retry(ctx context.Context) error {
	v.mu.Lock()
	closed, state := v.closed, v.state
	v.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if state != StateError {
		return nil
	}
	v.load(ctx)
	return nil
}

// Reload drops the held pages and loads page 0 again.
func (v *View) Reload(ctx context.Context) error {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return ErrClosed
	}
	v.load(ctx)
	return nil
}

func (v *View) load(ctx context.Context) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.gen++
	gen := v.gen
	v.state = StateLoading
	v.err = nil
	v.loadingMore = false
	v.version++
	snap := v.snapshotLocked()
	v.mu.Unlock()
	v.emit(snap)

	bookings, hasMore, err := v.cfg.Load(ctx, 0)

	v.mu.Lock()
	if v.closed || gen != v.gen {
		v.mu.Unlock()
		v.logger.Debug().Msg("Discarding stale page load")
		return
	}
	if err != nil {
		v.setErrorLocked(err)
		v.buffered = nil
		snap = v.snapshotLocked()
		v.mu.Unlock()
		v.logger.Warn().Err(err).Msg("Failed to load bookings")
		v.emit(snap)
		return
	}

	v.state = StateReady
	v.bookings = cloneBookings(bookings)
	v.hasMore = hasMore
	v.pages = 1
	v.version++

	var notes []notification
	buffered := v.buffered
	v.buffered = nil
	for _, event := range buffered {
		if b, ok := v.validate(event); ok {
			if note, ok := v.mergeLocked(b); ok {
				notes = append(notes, note)
			}
		}
	}
	snap = v.snapshotLocked()
	v.mu.Unlock()

	v.emit(snap)
	v.notify(ctx, notes)
}

// LoadMore appends the next page. Bookings already held are skipped.
func (v *View) LoadMore(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.state != StateReady || !v.hasMore || v.loadingMore {
		v.mu.Unlock()
		return nil
	}
	v.loadingMore = true
	gen := v.gen
	page := v.pages
	v.mu.Unlock()

	bookings, hasMore, err := v.cfg.Load(ctx, page)

	v.mu.Lock()
	if v.closed || gen != v.gen {
		v.mu.Unlock()
		return nil
	}
	v.loadingMore = false
	if err != nil {
		v.setErrorLocked(err)
		snap := v.snapshotLocked()
		v.mu.Unlock()
		v.emit(snap)
		return err
	}

	// merge against the list as it is now, not as it was when the fetch began
	for _, b := range bookings {
		if indexOf(v.bookings, b.Key) < 0 {
			v.bookings = append(v.bookings, b)
		}
	}
	v.hasMore = hasMore
	v.pages = page + 1
	v.version++
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.emit(snap)
	return nil
}

// Apply reconciles one change event into the list. Malformed events are
// dropped and reported on the fault channel, never returned.
func (v *View) Apply(ctx context.Context, event domain.ChangeEvent) {
	b, ok := v.validate(event)
	if !ok {
		return
	}

	v.mu.Lock()
	switch {
	case v.closed:
		v.mu.Unlock()
		return
	case v.state == StateLoading:
		v.buffered = append(v.buffered, event)
		v.mu.Unlock()
		metrics.IncReconcile("buffered")
		return
	case v.state == StateError:
		// the retry reload will bring the row in
		v.mu.Unlock()
		metrics.IncReconcile("ignored")
		return
	}

	note, notify := v.mergeLocked(b)
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.emit(snap)
	if notify {
		v.notify(ctx, []notification{note})
	}
}

// validate decodes the event's row. It reports false for events to discard.
func (v *View) validate(event domain.ChangeEvent) (models.Booking, bool) {
	b, coerced, err := models.BookingFromRecord(event.New)
	if err != nil {
		metrics.IncReconcile("discarded")
		v.cfg.Faults.Report("reconcile", fmt.Errorf("discard %s event: %w", event.Type, err))
		return models.Booking{}, false
	}
	if coerced {
		v.cfg.Faults.Report("reconcile", fmt.Errorf("booking %s: unknown status %q coerced to %s",
			b.Key, event.New.GetString("status"), models.StatusPending))
	}
	if owner := b.SubjectID(v.cfg.Role); owner != "" && owner != v.cfg.SubjectID {
		metrics.IncReconcile("discarded")
		v.cfg.Faults.Report("reconcile", fmt.Errorf("booking %s belongs to %s %s", b.Key, v.cfg.Role, owner))
		return models.Booking{}, false
	}
	return b, true
}

// mergeLocked replaces b in place by identity or prepends it, then drops the
// cache entry. Must be called with v.mu held.
func (v *View) mergeLocked(b models.Booking) (notification, bool) {
	var note notification
	notify := false

	if i := indexOf(v.bookings, b.Key); i >= 0 {
		old := v.bookings[i]
		next := cloneBookings(v.bookings)
		next[i] = b
		v.bookings = next
		if old.Status != b.Status {
			note = notification{
				title: "Booking status changed",
				body:  fmt.Sprintf("%s: %s → %s", label(b), old.Status, b.Status),
			}
			notify = true
		}
		metrics.IncReconcile("updated")
	} else {
		next := make([]models.Booking, 0, len(v.bookings)+1)
		next = append(next, b)
		v.bookings = append(next, v.bookings...)
		note = notification{title: "New booking", body: label(b)}
		notify = true
		metrics.IncReconcile("inserted")
	}
	v.version++

	if v.cfg.Cache != nil {
		v.cfg.Cache.Invalidate(v.cfg.SubjectID, v.cfg.Role)
	}
	return note, notify
}

func (v *View) setErrorLocked(err error) {
	v.state = StateError
	v.err = err
	v.version++
}

// Snapshot returns the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	return Snapshot{
		State:    v.state,
		Bookings: cloneBookings(v.bookings),
		Err:      v.err,
		HasMore:  v.hasMore,
		Pages:    v.pages,
		Version:  v.version,
	}
}

func (v *View) emit(snap Snapshot) {
	v.mu.Lock()
	out := v.out
	v.mu.Unlock()
	if out != nil {
		out.publish(snap)
	}
}

func (v *View) notify(ctx context.Context, notes []notification) {
	if v.cfg.Notifier == nil {
		return
	}
	for _, n := range notes {
		v.cfg.Faults.Report("notify", v.cfg.Notifier.Notify(ctx, n.title, n.body))
	}
}

func label(b models.Booking) string {
	if b.ListingTitle != "" {
		return b.ListingTitle
	}
	return "Booking " + b.Key.String()
}
