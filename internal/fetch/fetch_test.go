package fetch

import (
	"context"
	"errors"
	"testing"

	"bookingsync/internal/domain"
	"bookingsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Query(ctx context.Context, table string, filter domain.Filter, order domain.Order, rng domain.Range) ([]models.Record, error) {
	args := m.Called(ctx, table, filter, order, rng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Record), args.Error(1)
}

func (m *mockStore) Insert(ctx context.Context, table string, rec models.Record) (models.Record, error) {
	args := m.Called(ctx, table, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.Record), args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, table, id string, patch models.Record) error {
	return m.Called(ctx, table, id, patch).Error(0)
}

func (m *mockStore) Subscribe(ctx context.Context, table string, filter domain.Filter) (domain.Subscription, error) {
	args := m.Called(ctx, table, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Subscription), args.Error(1)
}

func rows(ids ...string) []models.Record {
	out := make([]models.Record, len(ids))
	for i, id := range ids {
		out[i] = models.Record{"id": id, "status": "pending"}
	}
	return out
}

func TestFetchPageQuery(t *testing.T) {
	store := new(mockStore)
	f := NewFetcher(store, 20, nil, nil)
	ctx := context.Background()

	order := domain.Order{Column: "created_at", Descending: true}

	t.Run("FirstPageInitiator", func(t *testing.T) {
		store.On("Query", ctx, "bookings",
			domain.Filter{Column: "initiator_id", Value: "s1"}, order, domain.Range{From: 0, To: 19},
		).Return(rows("b1", "b2"), nil).Once()

		got, err := f.FetchPage(ctx, "s1", models.RoleInitiator, 0, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, models.PersistedKey("b1"), got[0].Key)
		store.AssertExpectations(t)
	})

	t.Run("ThirdPageRecipient", func(t *testing.T) {
		store.On("Query", ctx, "bookings",
			domain.Filter{Column: "recipient_id", Value: "o1"}, order, domain.Range{From: 20, To: 29},
		).Return(rows(), nil).Once()

		got, err := f.FetchPage(ctx, "o1", models.RoleRecipient, 2, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
		store.AssertExpectations(t)
	})
}

func TestFetchHasMore(t *testing.T) {
	store := new(mockStore)
	f := NewFetcher(store, 2, nil, nil)
	ctx := context.Background()

	store.On("Query", ctx, "bookings", mock.Anything, mock.Anything, domain.Range{From: 0, To: 1}).
		Return(rows("b1", "b2"), nil).Once()
	store.On("Query", ctx, "bookings", mock.Anything, mock.Anything, domain.Range{From: 2, To: 3}).
		Return(rows(), nil).Once()

	page, err := f.Fetch(ctx, "s1", models.RoleInitiator, 0, 0)
	require.NoError(t, err)
	assert.True(t, page.HasMore)

	// exact multiple: one extra empty fetch, no error
	page, err = f.Fetch(ctx, "s1", models.RoleInitiator, 1, 0)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.Bookings)
	assert.Equal(t, 1, page.Index)
}

func TestFetchStoreError(t *testing.T) {
	store := new(mockStore)
	f := NewFetcher(store, 20, nil, nil)
	ctx := context.Background()

	storeErr := &domain.StoreError{Message: "permission denied", Code: "42501", Hint: "check policy"}
	store.On("Query", ctx, "bookings", mock.Anything, mock.Anything, mock.Anything).Return(nil, storeErr).Once()

	_, err := f.FetchPage(ctx, "s1", models.RoleInitiator, 0, 0)
	require.Error(t, err)
	se, ok := domain.AsStoreError(err)
	require.True(t, ok)
	assert.Equal(t, "42501", se.Code)
	assert.Equal(t, "check policy", se.Hint)
}

func TestFetchInvalidPage(t *testing.T) {
	f := NewFetcher(new(mockStore), 20, nil, nil)
	_, err := f.FetchPage(context.Background(), "s1", models.RoleInitiator, -1, 0)
	assert.True(t, errors.Is(err, ErrInvalidPage))
}

func TestFetchMalformedRows(t *testing.T) {
	store := new(mockStore)
	var faults []domain.Fault
	f := NewFetcher(store, 3, func(fl domain.Fault) { faults = append(faults, fl) }, nil)
	ctx := context.Background()

	store.On("Query", ctx, "bookings", mock.Anything, mock.Anything, mock.Anything).Return([]models.Record{
		{"id": "b1", "status": "pending"},
		{"status": "approved"},
		{"id": "b3", "status": "mystery"},
	}, nil).Once()

	page, err := f.Fetch(ctx, "s1", models.RoleInitiator, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Bookings, 2)
	assert.Equal(t, models.StatusPending, page.Bookings[1].Status)
	assert.True(t, page.HasMore, "raw row count decides the next-page hint")
	assert.Len(t, faults, 2)
}

func TestHasMore(t *testing.T) {
	assert.True(t, HasMore(20, 20))
	assert.False(t, HasMore(19, 20))
	assert.False(t, HasMore(0, 20))
	assert.False(t, HasMore(0, 0))
}
