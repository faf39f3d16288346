package models

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingID is returned when a record carries no booking identity.
var ErrMissingID = errors.New("record has no booking id")

// Key identifies a booking either by its store-assigned id or by the local
// id of a placeholder that has not been persisted yet.
type Key struct {
	id      string
	pending bool
}

func PersistedKey(id string) Key {
	return Key{id: id}
}

// PendingKey builds a placeholder key. The local prefix is added when missing.
func PendingKey(localID string) Key {
	if !strings.HasPrefix(localID, PendingIDPrefix) {
		localID = PendingIDPrefix + localID
	}
	return Key{id: localID, pending: true}
}

// ParseKey restores a key from its string form.
func ParseKey(s string) Key {
	if strings.HasPrefix(s, PendingIDPrefix) {
		return Key{id: s, pending: true}
	}
	return Key{id: s}
}

// Persisted returns the store id. ok is false for placeholders.
func (k Key) Persisted() (id string, ok bool) {
	if k.pending || k.id == "" {
		return "", false
	}
	return k.id, true
}

func (k Key) IsPending() bool { return k.pending }

func (k Key) IsZero() bool { return k.id == "" }

func (k Key) String() string { return k.id }

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.id), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	*k = ParseKey(string(text))
	return nil
}

// Booking is a snapshot of a booking record with its denormalized display fields.
type Booking struct {
	Key            Key       `json:"id"`
	ListingID      string    `json:"listing_id"`
	InitiatorID    string    `json:"initiator_id"`
	RecipientID    string    `json:"recipient_id"`
	Status         Status    `json:"status"`
	TotalPrice     float64   `json:"total_price"`
	PaymentRef     *string   `json:"payment_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ListingTitle   string    `json:"listing_title"`
	InitiatorName  string    `json:"initiator_name"`
	InitiatorPhone string    `json:"initiator_phone"`
	RecipientName  string    `json:"recipient_name"`
	RecipientPhone string    `json:"recipient_phone"`
}

// SubjectID returns the counterparty id the given role filters on.
func (b Booking) SubjectID(role Role) string {
	if role == RoleRecipient {
		return b.RecipientID
	}
	return b.InitiatorID
}

// BookingFromRecord decodes a store row. Unknown statuses coerce to pending and
// coerced reports it; a row without an id is rejected with ErrMissingID.
func BookingFromRecord(r Record) (b Booking, coerced bool, err error) {
	id := r.GetString("id")
	if id == "" {
		return Booking{}, false, ErrMissingID
	}
	status, ok := ParseStatus(r.GetString("status"))

	b = Booking{
		Key:            ParseKey(id),
		ListingID:      r.GetString("listing_id"),
		InitiatorID:    r.GetString("initiator_id"),
		RecipientID:    r.GetString("recipient_id"),
		Status:         status,
		TotalPrice:     r.GetFloat("total_price"),
		PaymentRef:     r.GetStringPtr("payment_ref"),
		CreatedAt:      r.GetTime("created_at"),
		ListingTitle:   r.GetString("listing_title"),
		InitiatorName:  r.GetString("initiator_name"),
		InitiatorPhone: r.GetString("initiator_phone"),
		RecipientName:  r.GetString("recipient_name"),
		RecipientPhone: r.GetString("recipient_phone"),
	}
	return b, !ok, nil
}

// Record encodes the booking as a store row. Placeholders keep their local id.
func (b Booking) Record() Record {
	r := Record{
		"id":              b.Key.String(),
		"listing_id":      b.ListingID,
		"initiator_id":    b.InitiatorID,
		"recipient_id":    b.RecipientID,
		"status":          string(b.Status),
		"total_price":     b.TotalPrice,
		"created_at":      b.CreatedAt.UTC().Format(time.RFC3339Nano),
		"listing_title":   b.ListingTitle,
		"initiator_name":  b.InitiatorName,
		"initiator_phone": b.InitiatorPhone,
		"recipient_name":  b.RecipientName,
		"recipient_phone": b.RecipientPhone,
	}
	if b.PaymentRef != nil {
		r["payment_ref"] = *b.PaymentRef
	}
	return r
}

// NewBookingInput is the payload of a create request, both online and queued.
type NewBookingInput struct {
	ListingID      string  `json:"listing_id"`
	InitiatorID    string  `json:"initiator_id"`
	RecipientID    string  `json:"recipient_id"`
	TotalPrice     float64 `json:"total_price"`
	ListingTitle   string  `json:"listing_title"`
	InitiatorName  string  `json:"initiator_name"`
	InitiatorPhone string  `json:"initiator_phone"`
	RecipientName  string  `json:"recipient_name"`
	RecipientPhone string  `json:"recipient_phone"`
}

// Placeholder synthesizes the optimistic booking shown while input is queued.
func (in NewBookingInput) Placeholder(localID string, createdAt time.Time) Booking {
	return Booking{
		Key:            PendingKey(localID),
		ListingID:      in.ListingID,
		InitiatorID:    in.InitiatorID,
		RecipientID:    in.RecipientID,
		Status:         StatusPending,
		TotalPrice:     in.TotalPrice,
		CreatedAt:      createdAt,
		ListingTitle:   in.ListingTitle,
		InitiatorName:  in.InitiatorName,
		InitiatorPhone: in.InitiatorPhone,
		RecipientName:  in.RecipientName,
		RecipientPhone: in.RecipientPhone,
	}
}

// Record encodes the input as an insert row without id or timestamps.
func (in NewBookingInput) Record() Record {
	return Record{
		"listing_id":      in.ListingID,
		"initiator_id":    in.InitiatorID,
		"recipient_id":    in.RecipientID,
		"status":          string(StatusPending),
		"total_price":     in.TotalPrice,
		"listing_title":   in.ListingTitle,
		"initiator_name":  in.InitiatorName,
		"initiator_phone": in.InitiatorPhone,
		"recipient_name":  in.RecipientName,
		"recipient_phone": in.RecipientPhone,
	}
}
