// Package fetch reads booking lists from the record store one page at a time.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"bookingsync/internal/domain"
	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

// ErrInvalidPage is returned for a negative page index.
var ErrInvalidPage = errors.New("page index must not be negative")

// Fetcher translates page requests into record store queries.
type Fetcher struct {
	store    domain.RecordStore
	pageSize int
	faults   domain.FaultSink
	logger   *zerolog.Logger
}

func NewFetcher(store domain.RecordStore, pageSize int, faults domain.FaultSink, logger *zerolog.Logger) *Fetcher {
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Fetcher{
		store:    store,
		pageSize: pageSize,
		faults:   faults,
		logger:   logger,
	}
}

func (f *Fetcher) PageSize() int { return f.pageSize }

// Page is one window of a viewer's bookings.
type Page struct {
	Index    int
	Bookings []models.Booking
	// HasMore is judged on the raw row count, before malformed rows are dropped.
	HasMore bool
}

// FetchPage returns the bookings of page pageIndex for the viewer, newest first.
// A pageSize of 0 uses the fetcher's default.
func (f *Fetcher) FetchPage(ctx context.Context, subjectID string, role models.Role, pageIndex, pageSize int) ([]models.Booking, error) {
	page, err := f.Fetch(ctx, subjectID, role, pageIndex, pageSize)
	if err != nil {
		return nil, err
	}
	return page.Bookings, nil
}

// Fetch is FetchPage with the next-page hint attached.
func (f *Fetcher) Fetch(ctx context.Context, subjectID string, role models.Role, pageIndex, pageSize int) (Page, error) {
	if pageIndex < 0 {
		return Page{}, ErrInvalidPage
	}
	if pageSize <= 0 {
		pageSize = f.pageSize
	}

	from := pageIndex * pageSize
	rows, err := f.store.Query(ctx, models.BookingsTable,
		domain.Filter{Column: role.Column(), Value: subjectID},
		domain.Order{Column: "created_at", Descending: true},
		domain.Range{From: from, To: from + pageSize - 1},
	)
	if err != nil {
		f.logger.Error().Err(err).
			Str("subject_id", subjectID).
			Str("role", string(role)).
			Int("page", pageIndex).
			Msg("fetch page failed")
		return Page{}, fmt.Errorf("fetch page %d: %w", pageIndex, err)
	}

	bookings := make([]models.Booking, 0, len(rows))
	for _, row := range rows {
		b, coerced, err := models.BookingFromRecord(row)
		if err != nil {
			f.faults.Report("fetch", err)
			continue
		}
		if coerced {
			f.faults.Report("fetch", fmt.Errorf("booking %s: unknown status %q coerced to %s", b.Key, row.GetString("status"), b.Status))
		}
		bookings = append(bookings, b)
	}
	return Page{Index: pageIndex, Bookings: bookings, HasMore: HasMore(len(rows), pageSize)}, nil
}

// HasMore reports whether a page of n items suggests another page exists.
// An exact multiple of pageSize costs one extra empty fetch.
func HasMore(n, pageSize int) bool {
	return pageSize > 0 && n == pageSize
}
