// Package sheets mirrors bookings into a Google Sheets ledger so
// ground staff can review the schedule without API access.
package sheets

import (
	"context"
	"fmt"

	"pitchbook/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Ledger appends booking rows to one sheet of a spreadsheet.
type Ledger struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *zerolog.Logger
}

// NewLedger creates a ledger writing to the named sheet. credsFile is a
// Google service account JSON key.
func NewLedger(ctx context.Context, credsFile, spreadsheetID, sheetName string, logger *zerolog.Logger) (*Ledger, error) {
	service, err := sheets.NewService(ctx, option.WithCredentialsFile(credsFile))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if sheetName == "" {
		sheetName = "Bookings"
	}
	return &Ledger{
		service:       service,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

// AppendBooking appends one row for the booking.
func (l *Ledger) AppendBooking(ctx context.Context, b *models.Booking) error {
	values := &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(b)},
	}
	_, err := l.service.Spreadsheets.Values.
		Append(l.spreadsheetID, l.sheetName+"!A1", values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append booking row: %w", err)
	}
	l.logger.Debug().Int64("booking_id", b.ID).Msg("booking appended to ledger")
	return nil
}

// bookingRowValues flattens a booking into one spreadsheet row.
func bookingRowValues(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		b.BookingNumber,
		b.BookingDate.Format("2006-01-02"),
		hoursLabel(b.Slots),
		b.Status,
		b.CustomerName,
		b.CustomerPhone,
		b.TotalAmount,
		b.AdvancePayment,
		b.RemainingPayment,
		b.CreatedAt.Format("2006-01-02 15:04:05"),
		b.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// hoursLabel renders held hours as "18:00-21:00, 23:00-00:00" style
// ranges. Slots are stored sorted by hour.
func hoursLabel(slots []models.BookingSlot) string {
	if len(slots) == 0 {
		return ""
	}
	var out string
	start := slots[0].SlotHour
	prev := start
	flush := func(endHour int) {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%02d:00-%02d:00", start, (endHour+1)%24)
	}
	for _, s := range slots[1:] {
		if s.SlotHour == prev+1 {
			prev = s.SlotHour
			continue
		}
		flush(prev)
		start = s.SlotHour
		prev = s.SlotHour
	}
	flush(prev)
	return out
}
