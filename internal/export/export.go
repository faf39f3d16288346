// Package export writes a held booking list to an Excel workbook.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bookingsync/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var headers = []string{
	"ID", "Status", "Listing", "Initiator", "Initiator phone", "Recipient", "Recipient phone",
	"Total", "Payment ref", "Created", "Sync",
}

// Bookings saves bookings into dir and returns the file path.
func Bookings(dir, subjectID string, role models.Role, bookings []models.Booking, now time.Time) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheetName, "A1", lastHeader, style)

	for i, b := range bookings {
		row := i + 2
		paymentRef := ""
		if b.PaymentRef != nil {
			paymentRef = *b.PaymentRef
		}
		syncState := "synced"
		if b.Key.IsPending() {
			syncState = "pending sync"
		}
		values := []interface{}{
			b.Key.String(), string(b.Status), b.ListingTitle, b.InitiatorName, b.InitiatorPhone,
			b.RecipientName, b.RecipientPhone, b.TotalPrice, paymentRef,
			b.CreatedAt.Format("2006-01-02 15:04"), syncState,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return "", fmt.Errorf("error writing row %d: %w", row, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "K", 18)

	fileName := fmt.Sprintf("bookings_%s_%s_%s.xlsx", role, subjectID, now.Format("20060102_150405"))
	path := filepath.Join(dir, filepath.Base(fileName))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}
