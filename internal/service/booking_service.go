package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bookingsync/internal/domain"
	"bookingsync/internal/fetch"
	"bookingsync/internal/models"
	"bookingsync/internal/queue"
	"bookingsync/internal/reconcile"

	"github.com/rs/zerolog"
)

var (
	ErrPendingBooking = errors.New("booking is not synced yet")
	ErrInvalidStatus  = errors.New("invalid booking status")
	ErrInvalidInput   = errors.New("invalid booking input")
)

// Deps are the collaborators of BookingService.
type Deps struct {
	Store    domain.RecordStore
	Fetcher  *fetch.Fetcher
	Cache    domain.BookingCache
	Queue    *queue.Queue
	Conn     domain.Connectivity
	Notifier domain.Notifier
	Faults   domain.FaultSink
	Logger   *zerolog.Logger
}

type BookingService struct {
	store    domain.RecordStore
	fetcher  *fetch.Fetcher
	cache    domain.BookingCache
	queue    *queue.Queue
	conn     domain.Connectivity
	notifier domain.Notifier
	faults   domain.FaultSink
	logger   *zerolog.Logger
}

func NewBookingService(deps Deps) *BookingService {
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		store:    deps.Store,
		fetcher:  deps.Fetcher,
		cache:    deps.Cache,
		queue:    deps.Queue,
		conn:     deps.Conn,
		notifier: deps.Notifier,
		faults:   deps.Faults,
		logger:   logger,
	}
}

// ListBookings returns one page of the viewer's bookings, newest first.
// Page 0 is served from the read cache while fresh.
func (s *BookingService) ListBookings(ctx context.Context, subjectID string, role models.Role, page int) ([]models.Booking, error) {
	p, err := s.ListPage(ctx, subjectID, role, page)
	if err != nil {
		return nil, err
	}
	return p.Bookings, nil
}

// ListPage is ListBookings with the more-pages hint.
func (s *BookingService) ListPage(ctx context.Context, subjectID string, role models.Role, page int) (fetch.Page, error) {
	if page == 0 {
		if cached, hasMore, ok := s.cache.CachedPage(subjectID, role); ok {
			return fetch.Page{Index: 0, Bookings: cached, HasMore: hasMore}, nil
		}
	}

	p, err := s.fetcher.Fetch(ctx, subjectID, role, page, 0)
	if err != nil {
		return fetch.Page{}, err
	}
	if page == 0 {
		s.cache.PutPage(subjectID, role, p.Bookings, p.HasMore)
	}
	return p, nil
}

// CreateBooking writes a new booking. Offline, the request is queued and a
// pending placeholder is returned instead; the error is non-nil only when the
// queue could not be persisted.
func (s *BookingService) CreateBooking(ctx context.Context, in models.NewBookingInput) (models.Booking, error) {
	if in.ListingID == "" || in.InitiatorID == "" || in.RecipientID == "" {
		return models.Booking{}, fmt.Errorf("%w: listing, initiator and recipient are required", ErrInvalidInput)
	}

	if !s.conn.IsConnected() {
		m, err := s.queue.Enqueue(ctx, models.MutationCreateBooking, in)
		if err != nil {
			return models.Booking{}, fmt.Errorf("queue booking: %w", err)
		}
		s.logger.Info().Str("mutation_id", m.ID).Str("listing_id", in.ListingID).Msg("Offline, booking queued")
		return in.Placeholder(m.ID, m.EnqueuedAt), nil
	}

	return s.insertBooking(ctx, in)
}

func (s *BookingService) insertBooking(ctx context.Context, in models.NewBookingInput) (models.Booking, error) {
	rec, err := s.store.Insert(ctx, models.BookingsTable, in.Record())
	if err != nil {
		return models.Booking{}, fmt.Errorf("create booking: %w", err)
	}
	b, _, err := models.BookingFromRecord(rec)
	if err != nil {
		return models.Booking{}, fmt.Errorf("create booking: %w", err)
	}

	s.cache.Invalidate(b.InitiatorID, models.RoleInitiator)
	s.cache.Invalidate(b.RecipientID, models.RoleRecipient)
	s.logger.Info().Str("booking_id", b.Key.String()).Str("listing_id", b.ListingID).Msg("Booking created")
	return b, nil
}

// UpdateBookingStatus sets the status of a persisted booking, queueing the
// change while offline. Placeholders are rejected with ErrPendingBooking.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, key models.Key, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	id, ok := key.Persisted()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPendingBooking, key)
	}

	if !s.conn.IsConnected() {
		m, err := s.queue.Enqueue(ctx, models.MutationUpdateBookingStatus, models.StatusChange{BookingID: id, Status: status})
		if err != nil {
			return fmt.Errorf("queue status change: %w", err)
		}
		s.logger.Info().Str("mutation_id", m.ID).Str("booking_id", id).Str("status", string(status)).Msg("Offline, status change queued")
		return nil
	}

	return s.updateStatus(ctx, id, status)
}

func (s *BookingService) updateStatus(ctx context.Context, id string, status models.Status) error {
	if err := s.store.Update(ctx, models.BookingsTable, id, models.Record{"status": string(status)}); err != nil {
		return fmt.Errorf("update booking %s: %w", id, err)
	}
	s.cache.InvalidateBooking(models.PersistedKey(id))
	s.logger.Info().Str("booking_id", id).Str("status", string(status)).Msg("Booking status updated")
	return nil
}

// Dispatch replays one queued mutation through the online write path.
func (s *BookingService) Dispatch(ctx context.Context, m models.QueuedMutation) error {
	switch m.Kind {
	case models.MutationCreateBooking:
		var in models.NewBookingInput
		if err := json.Unmarshal(m.Payload, &in); err != nil {
			return fmt.Errorf("decode %s payload: %w", m.Kind, err)
		}
		_, err := s.insertBooking(ctx, in)
		return err
	case models.MutationUpdateBookingStatus:
		var change models.StatusChange
		if err := json.Unmarshal(m.Payload, &change); err != nil {
			return fmt.Errorf("decode %s payload: %w", m.Kind, err)
		}
		return s.updateStatus(ctx, change.BookingID, change.Status)
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}

// OpenView mounts a reconciled list for the viewer. The caller must Close it.
func (s *BookingService) OpenView(ctx context.Context, subjectID string, role models.Role, onUpdate func(reconcile.Snapshot)) (*reconcile.View, error) {
	view := reconcile.NewView(reconcile.Config{
		SubjectID: subjectID,
		Role:      role,
		Store:     s.store,
		Load: func(ctx context.Context, page int) ([]models.Booking, bool, error) {
			p, err := s.ListPage(ctx, subjectID, role, page)
			return p.Bookings, p.HasMore, err
		},
		Cache:    s.cache,
		Notifier: s.notifier,
		Faults:   s.faults,
		OnUpdate: onUpdate,
		Logger:   s.logger,
	})
	if err := view.Start(ctx); err != nil {
		view.Close()
		return nil, err
	}
	return view, nil
}

// ObserveBookings streams snapshots of the viewer's list to onUpdate until
// the returned func is called.
func (s *BookingService) ObserveBookings(ctx context.Context, subjectID string, role models.Role, onUpdate func(reconcile.Snapshot)) (unsubscribe func(), err error) {
	view, err := s.OpenView(ctx, subjectID, role, onUpdate)
	if err != nil {
		return nil, err
	}
	return view.Close, nil
}

// PendingMutations lists what is waiting for connectivity.
func (s *BookingService) PendingMutations(ctx context.Context) ([]models.QueuedMutation, error) {
	return s.queue.Items(ctx)
}
