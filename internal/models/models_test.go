package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Helpers(t *testing.T) {
	now := time.Now()
	rec := Record{
		"int64":  int64(123),
		"int":    123,
		"float":  123.45,
		"number": json.Number("9.5"),
		"string": "hello",
		"numstr": "12.5",
		"time":   "2025-01-01T10:00:00Z",
		"sqlite": "2025-01-01 10:00:00",
		"time_t": now,
		"nil":    nil,
	}

	t.Run("NilRecord", func(t *testing.T) {
		var nilRec Record
		assert.Equal(t, "", nilRec.GetString("any"))
		assert.Equal(t, float64(0), nilRec.GetFloat("any"))
		assert.True(t, nilRec.GetTime("any").IsZero())
		assert.Nil(t, nilRec.GetStringPtr("any"))
	})

	t.Run("GetString", func(t *testing.T) {
		assert.Equal(t, "hello", rec.GetString("string"))
		assert.Equal(t, "123", rec.GetString("int64"))
		assert.Equal(t, "123", rec.GetString("int"))
		assert.Equal(t, "9.5", rec.GetString("number"))
		assert.Equal(t, "", rec.GetString("nil"))
		assert.Equal(t, "", rec.GetString("missing"))
	})

	t.Run("GetFloat", func(t *testing.T) {
		assert.Equal(t, 123.45, rec.GetFloat("float"))
		assert.Equal(t, float64(123), rec.GetFloat("int"))
		assert.Equal(t, 9.5, rec.GetFloat("number"))
		assert.Equal(t, 12.5, rec.GetFloat("numstr"))
		assert.Equal(t, float64(0), rec.GetFloat("string"))
	})

	t.Run("GetTime", func(t *testing.T) {
		assert.Equal(t, 2025, rec.GetTime("time").Year())
		assert.Equal(t, 10, rec.GetTime("sqlite").Hour())
		assert.True(t, now.Equal(rec.GetTime("time_t")))
		assert.True(t, rec.GetTime("string").IsZero())
	})

	t.Run("GetStringPtr", func(t *testing.T) {
		require.NotNil(t, rec.GetStringPtr("string"))
		assert.Equal(t, "hello", *rec.GetStringPtr("string"))
		assert.Nil(t, rec.GetStringPtr("nil"))
	})
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   Status
		wantOK bool
	}{
		{"pending", StatusPending, true},
		{"approved", StatusApproved, true},
		{"rejected", StatusRejected, true},
		{"paid", StatusPaid, true},
		{"cancelled", StatusCancelled, true},
		{"", StatusPending, false},
		{"confirmed", StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseStatus(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestStatusForward(t *testing.T) {
	assert.Equal(t, []Status{StatusApproved, StatusRejected}, StatusPending.Forward())
	assert.Equal(t, []Status{StatusPaid}, StatusApproved.Forward())
	assert.Empty(t, StatusPaid.Forward())
	assert.Empty(t, StatusRejected.Forward())
}

func TestRoleColumn(t *testing.T) {
	assert.Equal(t, "initiator_id", RoleInitiator.Column())
	assert.Equal(t, "recipient_id", RoleRecipient.Column())

	_, ok := ParseRole("owner")
	assert.False(t, ok)
	r, ok := ParseRole("recipient")
	assert.True(t, ok)
	assert.Equal(t, RoleRecipient, r)
}

func TestKey(t *testing.T) {
	persisted := PersistedKey("b1")
	id, ok := persisted.Persisted()
	assert.True(t, ok)
	assert.Equal(t, "b1", id)
	assert.False(t, persisted.IsPending())

	pending := PendingKey("abc")
	assert.Equal(t, "local_abc", pending.String())
	assert.True(t, pending.IsPending())
	_, ok = pending.Persisted()
	assert.False(t, ok)

	assert.Equal(t, pending, PendingKey("local_abc"))
	assert.Equal(t, pending, ParseKey("local_abc"))
	assert.Equal(t, persisted, ParseKey("b1"))

	_, ok = Key{}.Persisted()
	assert.False(t, ok)
}

func TestBookingFromRecord(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Valid", func(t *testing.T) {
		b, coerced, err := BookingFromRecord(Record{
			"id":            "b1",
			"listing_id":    "l1",
			"initiator_id":  "s1",
			"recipient_id":  "o1",
			"status":        "approved",
			"total_price":   150.0,
			"payment_ref":   "pay_1",
			"created_at":    created.Format(time.RFC3339Nano),
			"listing_title": "Room",
		})
		require.NoError(t, err)
		assert.False(t, coerced)
		assert.Equal(t, PersistedKey("b1"), b.Key)
		assert.Equal(t, StatusApproved, b.Status)
		assert.Equal(t, 150.0, b.TotalPrice)
		require.NotNil(t, b.PaymentRef)
		assert.Equal(t, "pay_1", *b.PaymentRef)
		assert.True(t, created.Equal(b.CreatedAt))
		assert.Equal(t, "s1", b.SubjectID(RoleInitiator))
		assert.Equal(t, "o1", b.SubjectID(RoleRecipient))
	})

	t.Run("UnknownStatusCoerced", func(t *testing.T) {
		b, coerced, err := BookingFromRecord(Record{"id": "b2", "status": "weird"})
		require.NoError(t, err)
		assert.True(t, coerced)
		assert.Equal(t, StatusPending, b.Status)
	})

	t.Run("MissingID", func(t *testing.T) {
		_, _, err := BookingFromRecord(Record{"status": "pending"})
		assert.ErrorIs(t, err, ErrMissingID)
	})

	t.Run("RoundTripThroughRecord", func(t *testing.T) {
		ref := "pay_2"
		in := Booking{Key: PersistedKey("b3"), Status: StatusPaid, PaymentRef: &ref, CreatedAt: created, InitiatorID: "s1"}
		out, _, err := BookingFromRecord(in.Record())
		require.NoError(t, err)
		assert.Equal(t, in.Key, out.Key)
		assert.Equal(t, in.Status, out.Status)
		assert.Equal(t, *in.PaymentRef, *out.PaymentRef)
		assert.True(t, created.Equal(out.CreatedAt))
	})
}

func TestPlaceholder(t *testing.T) {
	in := NewBookingInput{ListingID: "l1", InitiatorID: "s1", RecipientID: "o1", TotalPrice: 10}
	now := time.Now()
	b := in.Placeholder("q1", now)

	assert.True(t, b.Key.IsPending())
	assert.Equal(t, "local_q1", b.Key.String())
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, now, b.CreatedAt)
	assert.Equal(t, "o1", b.RecipientID)

	rec := in.Record()
	assert.NotContains(t, rec, "id")
	assert.Equal(t, "pending", rec["status"])
}

func TestKeyJSON(t *testing.T) {
	b := Booking{Key: PendingKey("x"), Status: StatusPending}
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"id":"local_x"`)

	var decoded Booking
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.Key.IsPending())
}
