package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/ChefConnectBack/internal/models"
	"github.com/saeid-a/ChefConnectBack/internal/repository"
)

var validServiceTypes = map[string]struct{}{
	"personal_meal":  {},
	"event_catering": {},
	"cooking_class":  {},
	"meal_prep":      {},
}

// bookingTransitions lists the legal status moves.
var bookingTransitions = map[string][]string{
	models.BookingStatusPending:    {models.BookingStatusConfirmed, models.BookingStatusCancelled},
	models.BookingStatusConfirmed:  {models.BookingStatusInProgress, models.BookingStatusCancelled},
	models.BookingStatusInProgress: {models.BookingStatusCompleted},
}

type bookingStore interface {
	Create(ctx context.Context, input repository.CreateBookingInput) (*models.Booking, error)
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	ListForUser(ctx context.Context, userID int64) ([]models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*models.Booking, error)
}

type BookingService struct {
	bookingRepo bookingStore
	userRepo    userReader
}

func NewBookingService(bookingRepo bookingStore, userRepo userReader) *BookingService {
	return &BookingService{
		bookingRepo: bookingRepo,
		userRepo:    userRepo,
	}
}

type CreateBookingInput struct {
	ChefID         int64
	ServiceType    string
	BookingDate    time.Time
	DurationHours  int
	NumberOfGuests int
	ServiceAddress string
	TotalAmount    float64
	ClientNotes    *string
}

func (s *BookingService) CreateBooking(
	ctx context.Context,
	clientID int64,
	role string,
	input CreateBookingInput,
) (*models.Booking, error) {
	if role != models.RoleClient {
		return nil, ErrForbidden
	}
	if input.ChefID <= 0 || input.ChefID == clientID {
		return nil, ErrInvalidInput
	}
	if _, ok := validServiceTypes[input.ServiceType]; !ok {
		return nil, ErrInvalidInput
	}
	if input.DurationHours <= 0 || input.NumberOfGuests <= 0 || input.TotalAmount < 0 {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(input.ServiceAddress) == "" {
		return nil, ErrInvalidInput
	}
	if input.BookingDate.Before(time.Now().Add(-1 * time.Minute)) {
		return nil, ErrInvalidInput
	}

	chef, err := s.userRepo.GetByID(ctx, input.ChefID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChefNotFound
		}
		return nil, err
	}
	if chef.Role != models.RoleChef {
		return nil, ErrInvalidInput
	}

	return s.bookingRepo.Create(ctx, repository.CreateBookingInput{
		ClientID:         clientID,
		ChefID:           input.ChefID,
		ServiceType:      input.ServiceType,
		BookingDate:      input.BookingDate,
		DurationHours:    input.DurationHours,
		NumberOfGuests:   input.NumberOfGuests,
		ServiceAddress:   strings.TrimSpace(input.ServiceAddress),
		TotalAmount:      input.TotalAmount,
		ConfirmationCode: newConfirmationCode(),
		ClientNotes:      input.ClientNotes,
	})
}

func (s *BookingService) ListBookings(ctx context.Context, actorID int64) ([]models.Booking, error) {
	return s.bookingRepo.ListForUser(ctx, actorID)
}

func (s *BookingService) GetBooking(
	ctx context.Context,
	actorID int64,
	bookingID int64,
) (*models.Booking, error) {
	if bookingID <= 0 {
		return nil, ErrInvalidInput
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.ClientID != actorID && booking.ChefID != actorID {
		return nil, ErrForbidden
	}

	return booking, nil
}

// UpdateStatus moves a booking along its lifecycle. The chef drives
// confirmation and fulfilment; either side may cancel while cancellation
// is still legal.
func (s *BookingService) UpdateStatus(
	ctx context.Context,
	actorID int64,
	bookingID int64,
	status string,
) (*models.Booking, error) {
	booking, err := s.GetBooking(ctx, actorID, bookingID)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(booking.Status, status) {
		return nil, ErrInvalidStatus
	}
	if status != models.BookingStatusCancelled && actorID != booking.ChefID {
		return nil, ErrForbidden
	}

	return s.bookingRepo.UpdateStatus(ctx, booking.ID, status)
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range bookingTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func newConfirmationCode() string {
	return "CHEF-" + strings.ToUpper(uuid.NewString()[:8])
}
