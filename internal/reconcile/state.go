package reconcile

import "bookingsync/internal/models"

// State is the phase of a list view.
type State int

const (
	StateLoading State = iota
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable copy of a view's state.
type Snapshot struct {
	State    State
	Bookings []models.Booking
	Err      error
	HasMore  bool
	// Pages counts the pages loaded so far.
	Pages   int
	Version uint64
}

func cloneBookings(in []models.Booking) []models.Booking {
	if in == nil {
		return nil
	}
	out := make([]models.Booking, len(in))
	copy(out, in)
	return out
}

func indexOf(list []models.Booking, key models.Key) int {
	for i := range list {
		if list[i].Key == key {
			return i
		}
	}
	return -1
}
