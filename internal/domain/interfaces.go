package domain

import (
	"context"

	"bookingsync/internal/models"
)

// Change event types delivered by the realtime channel.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Filter restricts a query or subscription to rows where Column equals Value.
type Filter struct {
	Column string
	Value  string
}

// Matches reports whether rec passes the filter. An empty filter matches everything.
func (f Filter) Matches(rec models.Record) bool {
	if f.Column == "" {
		return true
	}
	return rec.GetString(f.Column) == f.Value
}

type Order struct {
	Column     string
	Descending bool
}

// Range is an inclusive row window, [From, To].
type Range struct {
	From int
	To   int
}

// ChangeEvent is one realtime notification about a row.
type ChangeEvent struct {
	Type string
	New  models.Record
}

// Subscription is a cancelable stream of change events.
type Subscription interface {
	Events() <-chan ChangeEvent
	Unsubscribe()
}

// RecordStore is the remote record store boundary.
type RecordStore interface {
	Query(ctx context.Context, table string, filter Filter, order Order, rng Range) ([]models.Record, error)
	Insert(ctx context.Context, table string, rec models.Record) (models.Record, error)
	Update(ctx context.Context, table, id string, patch models.Record) error
	Subscribe(ctx context.Context, table string, filter Filter) (Subscription, error)
}

// Connectivity reports and announces network reachability.
type Connectivity interface {
	IsConnected() bool
	// OnChange registers handler for every transition. The returned func removes it.
	OnChange(handler func(connected bool)) (cancel func())
}

// KVStore is a durable string key-value store.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Notifier delivers a local notification to the user.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// BookingCache is the read cache as seen by writers and the reconciler.
type BookingCache interface {
	Get(subjectID string, role models.Role) ([]models.Booking, bool)
	Put(subjectID string, role models.Role, bookings []models.Booking)
	// PutPage stores page zero with the next-page hint judged on raw rows.
	PutPage(subjectID string, role models.Role, bookings []models.Booking, hasMore bool)
	// CachedPage returns a fresh page zero and its stored hint.
	CachedPage(subjectID string, role models.Role) (bookings []models.Booking, hasMore bool, ok bool)
	Invalidate(subjectID string, role models.Role)
	InvalidateBooking(key models.Key)
}
