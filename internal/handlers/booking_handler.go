package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/ChefConnectBack/internal/models"
	"github.com/saeid-a/ChefConnectBack/internal/services"
)

type bookingApplicationService interface {
	CreateBooking(ctx context.Context, clientID int64, role string, input services.CreateBookingInput) (*models.Booking, error)
	ListBookings(ctx context.Context, actorID int64) ([]models.Booking, error)
	GetBooking(ctx context.Context, actorID int64, bookingID int64) (*models.Booking, error)
	UpdateStatus(ctx context.Context, actorID int64, bookingID int64, status string) (*models.Booking, error)
}

type BookingHandler struct {
	service bookingApplicationService
}

func NewBookingHandler(service bookingApplicationService) *BookingHandler {
	return &BookingHandler{service: service}
}

type createBookingRequest struct {
	ChefID         int64     `json:"chef_id"`
	ServiceType    string    `json:"service_type"`
	BookingDate    time.Time `json:"booking_date"`
	DurationHours  int       `json:"duration_hours"`
	NumberOfGuests int       `json:"number_of_guests"`
	ServiceAddress string    `json:"service_address"`
	TotalAmount    float64   `json:"total_amount"`
	ClientNotes    *string   `json:"client_notes"`
}

type updateBookingStatusRequest struct {
	Status string `json:"status"`
}

func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	actorID, role, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	var req createBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	booking, err := h.service.CreateBooking(c.Context(), actorID, role, services.CreateBookingInput{
		ChefID:         req.ChefID,
		ServiceType:    req.ServiceType,
		BookingDate:    req.BookingDate,
		DurationHours:  req.DurationHours,
		NumberOfGuests: req.NumberOfGuests,
		ServiceAddress: req.ServiceAddress,
		TotalAmount:    req.TotalAmount,
		ClientNotes:    req.ClientNotes,
	})
	if err != nil {
		return mapBookingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"booking": booking})
}

func (h *BookingHandler) ListBookings(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	bookings, err := h.service.ListBookings(c.Context(), actorID)
	if err != nil {
		return mapBookingError(c, err)
	}

	return c.JSON(fiber.Map{"bookings": bookings})
}

func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	bookingID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || bookingID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}

	booking, err := h.service.GetBooking(c.Context(), actorID, bookingID)
	if err != nil {
		return mapBookingError(c, err)
	}

	return c.JSON(fiber.Map{"booking": booking})
}

func (h *BookingHandler) UpdateStatus(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	bookingID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || bookingID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking id"})
	}

	var req updateBookingStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	booking, err := h.service.UpdateStatus(c.Context(), actorID, bookingID, req.Status)
	if err != nil {
		return mapBookingError(c, err)
	}

	return c.JSON(fiber.Map{"booking": booking})
}

func mapBookingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status transition"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrChefNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Chef not found"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process booking request"})
	}
}
