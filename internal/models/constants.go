package models

import "time"

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Role is the counterparty a viewer plays on a booking.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleRecipient Role = "recipient"
)

const (
	// BookingsTable имя таблицы бронирований в хранилище записей
	BookingsTable = "bookings"

	// DefaultCacheTTL время жизни кэша первой страницы
	DefaultCacheTTL = 5 * time.Minute

	// DefaultPageSize размер страницы списка бронирований
	DefaultPageSize = 20

	// OfflineQueueKey ключ очереди офлайн-мутаций в долговременном хранилище
	OfflineQueueKey = "offline_queue"

	// PendingIDPrefix префикс локальных идентификаторов заглушек
	PendingIDPrefix = "local_"
)

// ParseStatus maps raw to a known status. Unknown values coerce to pending
// and ok reports false.
func ParseStatus(raw string) (status Status, ok bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusApproved, StatusRejected, StatusPaid, StatusCancelled:
		return s, true
	default:
		return StatusPending, false
	}
}

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

// Forward lists the transitions a viewer may be offered from s.
// The record store stays authoritative; nothing here enforces them.
func (s Status) Forward() []Status {
	switch s {
	case StatusPending:
		return []Status{StatusApproved, StatusRejected}
	case StatusApproved:
		return []Status{StatusPaid}
	default:
		return nil
	}
}

// ParseRole validates a role name.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(raw); r {
	case RoleInitiator, RoleRecipient:
		return r, true
	default:
		return "", false
	}
}

// Column is the bookings column that holds the subject id for this role.
func (r Role) Column() string {
	if r == RoleRecipient {
		return "recipient_id"
	}
	return "initiator_id"
}
