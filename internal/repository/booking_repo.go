package repository

import (
	"context"
	"time"

	"github.com/saeid-a/ChefConnectBack/internal/models"
)

type BookingRepository struct {
	db DBTX
}

func NewBookingRepository(db DBTX) *BookingRepository {
	return &BookingRepository{db: db}
}

type CreateBookingInput struct {
	ClientID         int64
	ChefID           int64
	ServiceType      string
	BookingDate      time.Time
	DurationHours    int
	NumberOfGuests   int
	ServiceAddress   string
	TotalAmount      float64
	ConfirmationCode string
	ClientNotes      *string
}

const bookingColumns = `
	id, client_id, chef_id, service_type, booking_date, duration_hours,
	number_of_guests, service_address, total_amount, status,
	confirmation_code, client_notes, created_at, updated_at
`

func (r *BookingRepository) Create(ctx context.Context, input CreateBookingInput) (*models.Booking, error) {
	query := `
		INSERT INTO bookings (
			client_id, chef_id, service_type, booking_date, duration_hours,
			number_of_guests, service_address, total_amount, confirmation_code, client_notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + bookingColumns

	row := r.db.QueryRow(ctx, query,
		input.ClientID,
		input.ChefID,
		input.ServiceType,
		input.BookingDate,
		input.DurationHours,
		input.NumberOfGuests,
		input.ServiceAddress,
		input.TotalAmount,
		input.ConfirmationCode,
		input.ClientNotes,
	)
	return scanBooking(row)
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.db.QueryRow(ctx, query, id))
}

func (r *BookingRepository) ListForUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE client_id = $1 OR chef_id = $1
		ORDER BY booking_date DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bookings, nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id int64, status string) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns

	return scanBooking(r.db.QueryRow(ctx, query, id, status))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var booking models.Booking
	err := row.Scan(
		&booking.ID,
		&booking.ClientID,
		&booking.ChefID,
		&booking.ServiceType,
		&booking.BookingDate,
		&booking.DurationHours,
		&booking.NumberOfGuests,
		&booking.ServiceAddress,
		&booking.TotalAmount,
		&booking.Status,
		&booking.ConfirmationCode,
		&booking.ClientNotes,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}
