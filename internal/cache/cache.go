// Package cache holds the page-zero read cache for booking lists.
package cache

import (
	"sync"
	"time"

	"bookingsync/internal/metrics"
	"bookingsync/internal/models"
)

type key struct {
	subjectID string
	role      models.Role
}

// Entry is a cached page-zero result. Entries are replaced wholesale, never patched.
type Entry struct {
	Bookings []models.Booking
	// HasMore is the next-page hint of the fetch that produced Bookings.
	HasMore    bool
	CapturedAt time.Time
	SubjectID  string
	Role       models.Role
}

// Cache maps (subject, role) to the first page of that viewer's bookings.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]Entry
	ttl     time.Duration
	now     func() time.Time
}

type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache. A non-positive ttl falls back to the default.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = models.DefaultCacheTTL
	}
	c := &Cache{
		entries: make(map[key]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached list when an entry exists and is no older than the TTL.
func (c *Cache) Get(subjectID string, role models.Role) ([]models.Booking, bool) {
	bookings, _, ok := c.CachedPage(subjectID, role)
	return bookings, ok
}

// CachedPage is Get with the stored next-page hint.
func (c *Cache) CachedPage(subjectID string, role models.Role) ([]models.Booking, bool, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key{subjectID, role}]
	c.mu.RUnlock()

	if !ok {
		metrics.IncCacheLookup("miss")
		return nil, false, false
	}
	if c.now().Sub(entry.CapturedAt) > c.ttl {
		metrics.IncCacheLookup("expired")
		return nil, false, false
	}
	metrics.IncCacheLookup("hit")
	return cloneBookings(entry.Bookings), entry.HasMore, true
}

// Put stores bookings as the fresh page zero for (subjectID, role), with no
// next-page hint.
func (c *Cache) Put(subjectID string, role models.Role, bookings []models.Booking) {
	c.PutPage(subjectID, role, bookings, false)
}

// PutPage stores page zero together with the hint of the fetch that read it.
func (c *Cache) PutPage(subjectID string, role models.Role, bookings []models.Booking, hasMore bool) {
	entry := Entry{
		Bookings:   cloneBookings(bookings),
		HasMore:    hasMore,
		CapturedAt: c.now(),
		SubjectID:  subjectID,
		Role:       role,
	}

	c.mu.Lock()
	c.entries[key{subjectID, role}] = entry
	c.mu.Unlock()
}

// Invalidate drops the entry for (subjectID, role).
func (c *Cache) Invalidate(subjectID string, role models.Role) {
	c.mu.Lock()
	delete(c.entries, key{subjectID, role})
	c.mu.Unlock()
}

// InvalidateBooking drops every entry that currently holds the booking.
func (c *Cache) InvalidateBooking(k models.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ek, entry := range c.entries {
		for i := range entry.Bookings {
			if entry.Bookings[i].Key == k {
				delete(c.entries, ek)
				break
			}
		}
	}
}

// Purge removes expired entries and returns how many were dropped.
func (c *Cache) Purge() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for ek, entry := range c.entries {
		if now.Sub(entry.CapturedAt) > c.ttl {
			delete(c.entries, ek)
			dropped++
		}
	}
	return dropped
}

// Entries returns a copy of every entry, expired ones included.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entry.Bookings = cloneBookings(entry.Bookings)
		out = append(out, entry)
	}
	return out
}

func cloneBookings(in []models.Booking) []models.Booking {
	if in == nil {
		return nil
	}
	out := make([]models.Booking, len(in))
	copy(out, in)
	return out
}
