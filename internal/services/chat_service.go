package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saeid-a/ChefConnectBack/internal/models"
	"github.com/saeid-a/ChefConnectBack/internal/repository"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidContent  = errors.New("invalid content")
	ErrInactiveRoom    = errors.New("room is inactive")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrBookingNotFound = errors.New("booking not found")
	ErrChefNotFound    = errors.New("chef not found")
)

// RoomExistsError is the conflict raised when room creation would violate
// uniqueness; it carries the id of the room that already covers the pair
// or booking so callers can recover.
type RoomExistsError struct {
	RoomID int64
}

func (e *RoomExistsError) Error() string {
	return fmt.Sprintf("chat room %d already exists", e.RoomID)
}

func (e *RoomExistsError) Is(target error) bool {
	return target == ErrConflict
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type bookingReader interface {
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
}

type ChatService struct {
	db             *pgxpool.Pool
	roomRepo       *repository.ChatRoomRepository
	messageRepo    *repository.MessageRepository
	readStatusRepo *repository.ReadStatusRepository
	bookingRepo    bookingReader
	userRepo       userReader
}

func NewChatService(
	db *pgxpool.Pool,
	roomRepo *repository.ChatRoomRepository,
	messageRepo *repository.MessageRepository,
	readStatusRepo *repository.ReadStatusRepository,
	bookingRepo bookingReader,
	userRepo userReader,
) *ChatService {
	return &ChatService{
		db:             db,
		roomRepo:       roomRepo,
		messageRepo:    messageRepo,
		readStatusRepo: readStatusRepo,
		bookingRepo:    bookingRepo,
		userRepo:       userRepo,
	}
}

// CreateRoom derives a room from a booking: the participants are the
// booking's client and chef, and the requester must be one of them.
func (s *ChatService) CreateRoom(
	ctx context.Context,
	actorID int64,
	bookingID int64,
) (*models.ChatRoom, error) {
	if bookingID <= 0 {
		return nil, ErrInvalidInput
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if booking.ClientID != actorID && booking.ChefID != actorID {
		return nil, ErrForbidden
	}

	room, err := s.roomRepo.Create(ctx, booking.ClientID, booking.ChefID, &bookingID)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, s.roomConflict(ctx, booking.ClientID, booking.ChefID, &bookingID)
		}
		return nil, err
	}

	return room, nil
}

// CreateDirectRoom opens an ad-hoc room between a client and a chef with
// no booking attached. Only the client side may initiate.
func (s *ChatService) CreateDirectRoom(
	ctx context.Context,
	actorID int64,
	role string,
	chefID int64,
) (*models.ChatRoom, error) {
	if role != models.RoleClient {
		return nil, ErrForbidden
	}
	if chefID <= 0 || chefID == actorID {
		return nil, ErrInvalidInput
	}

	chef, err := s.userRepo.GetByID(ctx, chefID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChefNotFound
		}
		return nil, err
	}
	if chef.Role != models.RoleChef {
		return nil, ErrInvalidInput
	}

	room, err := s.roomRepo.Create(ctx, actorID, chefID, nil)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, s.roomConflict(ctx, actorID, chefID, nil)
		}
		return nil, err
	}

	return room, nil
}

func (s *ChatService) roomConflict(
	ctx context.Context,
	clientID int64,
	chefID int64,
	bookingID *int64,
) error {
	var existing *models.ChatRoom
	var err error
	if bookingID != nil {
		existing, err = s.roomRepo.GetByBookingID(ctx, *bookingID)
	} else {
		existing, err = s.roomRepo.GetByPair(ctx, clientID, chefID)
	}
	if err != nil {
		return ErrConflict
	}
	return &RoomExistsError{RoomID: existing.ID}
}

func (s *ChatService) ListRooms(
	ctx context.Context,
	actorID int64,
	role string,
) ([]models.RoomSummary, error) {
	if role != models.RoleClient && role != models.RoleChef {
		return nil, ErrForbidden
	}

	return s.roomRepo.ListForParticipant(ctx, actorID)
}

// GetRoom returns the room when the actor is a participant. Unknown rooms
// propagate pgx.ErrNoRows; rooms the actor does not belong to are
// forbidden, not hidden.
func (s *ChatService) GetRoom(
	ctx context.Context,
	actorID int64,
	roomID int64,
) (*models.ChatRoom, error) {
	if roomID <= 0 {
		return nil, ErrInvalidInput
	}

	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(actorID) {
		return nil, ErrForbidden
	}

	return room, nil
}

// DeactivateRoom closes the room for new messages. The message log is
// retained.
func (s *ChatService) DeactivateRoom(ctx context.Context, actorID int64, roomID int64) error {
	room, err := s.GetRoom(ctx, actorID, roomID)
	if err != nil {
		return err
	}

	return s.roomRepo.Deactivate(ctx, room.ID)
}

type PostMessageInput struct {
	RoomID      int64
	Kind        models.MessageKind
	Content     string
	Attachment  *string
	ClientNonce *string
}

type ChatDelivery struct {
	Room        *models.ChatRoom
	Message     *models.Message
	RecipientID int64
}

// PostMessage appends a message to the room's log. The insert and the
// room's recency bump commit in one transaction; callers must only fan
// out the returned message after this call succeeds.
func (s *ChatService) PostMessage(
	ctx context.Context,
	actorID int64,
	input PostMessageInput,
) (*ChatDelivery, error) {
	content, err := validateMessageContent(input.Kind, input.Content, input.Attachment)
	if err != nil {
		return nil, err
	}

	room, err := s.roomRepo.GetByID(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(actorID) {
		return nil, ErrForbidden
	}
	if !room.IsActive {
		return nil, ErrInactiveRoom
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txRoomRepo := repository.NewChatRoomRepository(tx)

	message, err := txMessageRepo.Create(ctx, repository.CreateMessageInput{
		RoomID:      room.ID,
		SenderID:    actorID,
		Kind:        input.Kind,
		Content:     content,
		Attachment:  input.Attachment,
		ClientNonce: input.ClientNonce,
	})
	if err != nil {
		return nil, err
	}

	if err := txRoomRepo.Touch(ctx, room.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &ChatDelivery{
		Room:        room,
		Message:     message,
		RecipientID: room.OtherParticipant(actorID),
	}, nil
}

// EditMessage rewrites the content of the actor's own text message.
// Deleted messages cannot be edited; the Edited state is sticky.
func (s *ChatService) EditMessage(
	ctx context.Context,
	actorID int64,
	messageID int64,
	content string,
) (*models.Message, error) {
	trimmed := strings.TrimSpace(content)
	if messageID <= 0 || trimmed == "" {
		return nil, ErrInvalidContent
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != actorID {
		return nil, ErrForbidden
	}
	if !message.Editable() {
		return nil, ErrInvalidContent
	}

	return s.messageRepo.UpdateContent(ctx, message.ID, trimmed)
}

// DeleteMessage soft-deletes the actor's own message. Content stays in
// storage for audit but is redacted on every read path.
func (s *ChatService) DeleteMessage(
	ctx context.Context,
	actorID int64,
	messageID int64,
) (*models.Message, error) {
	if messageID <= 0 {
		return nil, ErrInvalidInput
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != actorID {
		return nil, ErrForbidden
	}
	if message.IsDeleted {
		return redacted(message), nil
	}

	deleted, err := s.messageRepo.SoftDelete(ctx, message.ID)
	if err != nil {
		return nil, err
	}

	return redacted(deleted), nil
}

// ListMessages pages the room's log newest first. before is the id of a
// message from a previous page, or 0 for the newest page.
func (s *ChatService) ListMessages(
	ctx context.Context,
	actorID int64,
	roomID int64,
	before int64,
	limit int,
) ([]models.Message, error) {
	if roomID <= 0 || limit <= 0 || before < 0 {
		return nil, ErrInvalidInput
	}

	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(actorID) {
		return nil, ErrForbidden
	}

	var beforeCreatedAt *time.Time
	var beforeID int64
	if before > 0 {
		cursor, err := s.messageRepo.GetByID(ctx, before)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrInvalidInput
			}
			return nil, err
		}
		if cursor.RoomID != room.ID {
			return nil, ErrInvalidInput
		}
		beforeCreatedAt = &cursor.CreatedAt
		beforeID = cursor.ID
	}

	messages, err := s.messageRepo.ListByRoom(ctx, room.ID, beforeCreatedAt, beforeID, limit)
	if err != nil {
		return nil, err
	}

	for i := range messages {
		messages[i].Redact()
	}

	return messages, nil
}

type ReadReceipt struct {
	Status *models.MessageReadStatus
	// SenderID is the author of the message that was read; read_receipt
	// events target this user's connections.
	SenderID int64
	RoomID   int64
	// First is false when the (message, user) pair was already recorded;
	// repeat marks are a no-op and emit nothing.
	First bool
}

// MarkMessageRead records that the actor has read the message. The call is
// idempotent; the first read by a non-sender also sets the message's
// aggregate read flag.
func (s *ChatService) MarkMessageRead(
	ctx context.Context,
	actorID int64,
	messageID int64,
) (*ReadReceipt, error) {
	if messageID <= 0 {
		return nil, ErrInvalidInput
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	room, err := s.roomRepo.GetByID(ctx, message.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(actorID) {
		return nil, ErrForbidden
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txReadStatusRepo := repository.NewReadStatusRepository(tx)
	txMessageRepo := repository.NewMessageRepository(tx)

	status, created, err := txReadStatusRepo.Create(ctx, message.ID, actorID)
	if err != nil {
		return nil, err
	}

	if created && message.SenderID != actorID {
		if err := txMessageRepo.MarkRead(ctx, message.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &ReadReceipt{
		Status:   status,
		SenderID: message.SenderID,
		RoomID:   message.RoomID,
		First:    created && message.SenderID != actorID,
	}, nil
}

type BulkReadReceipt struct {
	Count      int
	MessageIDs []int64
	// RecipientID is the room's other participant, the sender of every
	// message the actor just read.
	RecipientID int64
	RoomID      int64
}

// MarkAllRead marks every unread message in the room not sent by the
// actor. Safe to repeat: the second call finds nothing unread and returns
// zero.
func (s *ChatService) MarkAllRead(
	ctx context.Context,
	actorID int64,
	roomID int64,
) (*BulkReadReceipt, error) {
	room, err := s.GetRoom(ctx, actorID, roomID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txReadStatusRepo := repository.NewReadStatusRepository(tx)
	txMessageRepo := repository.NewMessageRepository(tx)

	messageIDs, err := txReadStatusRepo.CreateForRoom(ctx, room.ID, actorID)
	if err != nil {
		return nil, err
	}

	if err := txMessageRepo.MarkReadMany(ctx, messageIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &BulkReadReceipt{
		Count:       len(messageIDs),
		MessageIDs:  messageIDs,
		RecipientID: room.OtherParticipant(actorID),
		RoomID:      room.ID,
	}, nil
}

// validateMessageContent checks the kind/payload pairing at the ledger
// boundary: text needs non-blank content, image and file need an
// attachment reference, and system messages are reserved for
// server-generated rows.
func validateMessageContent(
	kind models.MessageKind,
	content string,
	attachment *string,
) (string, error) {
	if !kind.Valid() || kind == models.MessageKindSystem {
		return "", ErrInvalidContent
	}

	trimmed := strings.TrimSpace(content)
	switch kind {
	case models.MessageKindText:
		if trimmed == "" {
			return "", ErrInvalidContent
		}
	case models.MessageKindImage, models.MessageKindFile:
		if attachment == nil || strings.TrimSpace(*attachment) == "" {
			return "", ErrInvalidContent
		}
	}

	return trimmed, nil
}

func redacted(message *models.Message) *models.Message {
	message.Redact()
	return message
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
