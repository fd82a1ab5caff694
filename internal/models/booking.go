package models

import "time"

const (
	BookingStatusPending    = "pending"
	BookingStatusConfirmed  = "confirmed"
	BookingStatusInProgress = "in_progress"
	BookingStatusCompleted  = "completed"
	BookingStatusCancelled  = "cancelled"
)

type Booking struct {
	ID               int64     `json:"id"`
	ClientID         int64     `json:"client_id"`
	ChefID           int64     `json:"chef_id"`
	ServiceType      string    `json:"service_type"`
	BookingDate      time.Time `json:"booking_date"`
	DurationHours    int       `json:"duration_hours"`
	NumberOfGuests   int       `json:"number_of_guests"`
	ServiceAddress   string    `json:"service_address"`
	TotalAmount      float64   `json:"total_amount"`
	Status           string    `json:"status"`
	ConfirmationCode string    `json:"confirmation_code"`
	ClientNotes      *string   `json:"client_notes"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
