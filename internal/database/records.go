package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bookingsync/internal/domain"
	"bookingsync/internal/models"

	"github.com/google/uuid"
)

var bookingColumns = []string{
	"id", "listing_id", "initiator_id", "recipient_id", "status", "total_price", "payment_ref",
	"listing_title", "initiator_name", "initiator_phone", "recipient_name", "recipient_phone",
	"created_at", "updated_at",
}

// Колонки, которые можно менять через Update
var mutableColumns = map[string]bool{
	"status":          true,
	"total_price":     true,
	"payment_ref":     true,
	"listing_title":   true,
	"initiator_name":  true,
	"initiator_phone": true,
	"recipient_name":  true,
	"recipient_phone": true,
}

var filterColumns = map[string]bool{
	"id":           true,
	"listing_id":   true,
	"initiator_id": true,
	"recipient_id": true,
	"status":       true,
}

func checkTable(table string) error {
	if table != models.BookingsTable {
		return &domain.StoreError{
			Message: fmt.Sprintf("unknown table %q", table),
			Code:    "undefined_table",
			Hint:    "only " + models.BookingsTable + " is served",
		}
	}
	return nil
}

// Query returns rows of table matching filter, ordered and windowed.
func (db *DB) Query(ctx context.Context, table string, filter domain.Filter, order domain.Order, rng domain.Range) ([]models.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if rng.From < 0 || rng.To < rng.From {
		return nil, &domain.StoreError{
			Message: "invalid range",
			Code:    "invalid_range",
			Details: fmt.Sprintf("range %d-%d", rng.From, rng.To),
		}
	}

	var b strings.Builder
	args := make([]interface{}, 0, 3)
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(bookingColumns, ", "), table)
	if filter.Column != "" {
		if !filterColumns[filter.Column] {
			return nil, &domain.StoreError{Message: "invalid filter", Code: "undefined_column", Details: filter.Column}
		}
		fmt.Fprintf(&b, " WHERE %s = ?", filter.Column)
		args = append(args, filter.Value)
	}
	if order.Column != "" {
		if order.Column != "created_at" && order.Column != "updated_at" {
			return nil, &domain.StoreError{Message: "invalid order", Code: "undefined_column", Details: order.Column}
		}
		direction := "ASC"
		if order.Descending {
			direction = "DESC"
		}
		// id разрывает равенство времени, чтобы окна страниц не пересекались
		fmt.Fprintf(&b, " ORDER BY %s %s, id %s", order.Column, direction, direction)
	}
	b.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, rng.To-rng.From+1, rng.From)

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, storeError("failed to query bookings", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		rec, err := scanBooking(rows)
		if err != nil {
			return nil, storeError("failed to scan booking", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to read bookings", err)
	}
	return records, nil
}

// Insert stores rec, assigning id and created_at when absent, and publishes
// the stored row as an INSERT event.
func (db *DB) Insert(ctx context.Context, table string, rec models.Record) (models.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	id := rec.GetString("id")
	if id == "" {
		id = uuid.NewString()
	}
	now := db.timestamp()
	createdAt := rec.GetString("created_at")
	if createdAt == "" {
		createdAt = now
	}
	status := rec.GetString("status")
	if status == "" {
		status = string(models.StatusPending)
	}

	query := `INSERT INTO bookings (
				id, listing_id, initiator_id, recipient_id, status, total_price, payment_ref,
				listing_title, initiator_name, initiator_phone, recipient_name, recipient_phone,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		id,
		rec.GetString("listing_id"),
		rec.GetString("initiator_id"),
		rec.GetString("recipient_id"),
		status,
		rec.GetFloat("total_price"),
		rec.GetStringPtr("payment_ref"),
		rec.GetString("listing_title"),
		rec.GetString("initiator_name"),
		rec.GetString("initiator_phone"),
		rec.GetString("recipient_name"),
		rec.GetString("recipient_phone"),
		createdAt,
		now,
	)
	if err != nil {
		return nil, storeError("failed to create booking", err)
	}

	stored, err := db.getBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	db.hub.Publish(table, domain.ChangeEvent{Type: domain.EventInsert, New: stored})
	db.logger.Debug().Str("booking_id", id).Msg("Booking inserted")
	return stored, nil
}

// Update applies patch to the row with id and publishes the full row as an
// UPDATE event.
func (db *DB) Update(ctx context.Context, table, id string, patch models.Record) error {
	if err := checkTable(table); err != nil {
		return err
	}

	sets := make([]string, 0, len(patch)+1)
	args := make([]interface{}, 0, len(patch)+2)
	for _, col := range bookingColumns {
		val, ok := patch[col]
		if !ok {
			continue
		}
		if !mutableColumns[col] {
			return &domain.StoreError{Message: "column is read-only", Code: "read_only_column", Details: col}
		}
		if status, ok := val.(models.Status); ok {
			val = string(status)
		}
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	for col := range patch {
		if !contains(bookingColumns, col) {
			return &domain.StoreError{Message: "invalid patch", Code: "undefined_column", Details: col}
		}
	}
	if len(sets) == 0 {
		return &domain.StoreError{Message: "empty patch", Code: "invalid_patch"}
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, db.timestamp(), id)

	query := fmt.Sprintf("UPDATE bookings SET %s WHERE id = ?", strings.Join(sets, ", "))
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError("failed to update booking", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeError("failed to update booking", err)
	}
	if affected == 0 {
		return storeError("failed to update booking", fmt.Errorf("booking %s: %w", id, ErrNotFound))
	}

	stored, err := db.getBooking(ctx, id)
	if err != nil {
		return err
	}
	db.hub.Publish(table, domain.ChangeEvent{Type: domain.EventUpdate, New: stored})
	return nil
}

// Subscribe opens a realtime stream of table changes matching filter.
func (db *DB) Subscribe(ctx context.Context, table string, filter domain.Filter) (domain.Subscription, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if filter.Column != "" && !filterColumns[filter.Column] {
		return nil, &domain.StoreError{Message: "invalid filter", Code: "undefined_column", Details: filter.Column}
	}
	return db.hub.Subscribe(ctx, table, filter), nil
}

func (db *DB) getBooking(ctx context.Context, id string) (models.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM bookings WHERE id = ?", strings.Join(bookingColumns, ", "))
	rec, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeError("failed to get booking", fmt.Errorf("booking %s: %w", id, ErrNotFound))
	}
	if err != nil {
		return nil, storeError("failed to get booking", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row scanner) (models.Record, error) {
	var (
		id, listingID, initiatorID, recipientID, status string
		totalPrice                                      float64
		paymentRef                                      sql.NullString
		listingTitle, initiatorName, initiatorPhone     sql.NullString
		recipientName, recipientPhone                   sql.NullString
		createdAt, updatedAt                            string
	)
	err := row.Scan(
		&id, &listingID, &initiatorID, &recipientID, &status, &totalPrice, &paymentRef,
		&listingTitle, &initiatorName, &initiatorPhone, &recipientName, &recipientPhone,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec := models.Record{
		"id":              id,
		"listing_id":      listingID,
		"initiator_id":    initiatorID,
		"recipient_id":    recipientID,
		"status":          status,
		"total_price":     totalPrice,
		"payment_ref":     nil,
		"listing_title":   listingTitle.String,
		"initiator_name":  initiatorName.String,
		"initiator_phone": initiatorPhone.String,
		"recipient_name":  recipientName.String,
		"recipient_phone": recipientPhone.String,
		"created_at":      createdAt,
		"updated_at":      updatedAt,
	}
	if paymentRef.Valid {
		rec["payment_ref"] = paymentRef.String
	}
	return rec, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
