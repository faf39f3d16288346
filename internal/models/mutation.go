package models

import (
	"encoding/json"
	"time"
)

// MutationKind tags what a queued mutation does when replayed.
type MutationKind string

const (
	MutationCreateBooking       MutationKind = "create_booking"
	MutationUpdateBookingStatus MutationKind = "update_booking_status"
)

// QueuedMutation is a write intent captured while offline.
type QueuedMutation struct {
	ID         string          `json:"id"`
	Kind       MutationKind    `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// StatusChange is the payload of an update_booking_status mutation.
type StatusChange struct {
	BookingID string `json:"booking_id"`
	Status    Status `json:"status"`
}
