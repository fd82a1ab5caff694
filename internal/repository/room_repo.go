package repository

import (
	"context"
	"database/sql"

	"github.com/saeid-a/ChefConnectBack/internal/models"
)

type ChatRoomRepository struct {
	db DBTX
}

func NewChatRoomRepository(db DBTX) *ChatRoomRepository {
	return &ChatRoomRepository{db: db}
}

const roomColumns = `id, booking_id, client_id, chef_id, is_active, created_at, updated_at`

// Create inserts a room. Uniqueness over (client, chef, booking), one room
// per booking, and one ad-hoc room per pair are all enforced by indexes;
// violations surface as a unique-violation error.
func (r *ChatRoomRepository) Create(
	ctx context.Context,
	clientID int64,
	chefID int64,
	bookingID *int64,
) (*models.ChatRoom, error) {
	query := `
		INSERT INTO chat_rooms (booking_id, client_id, chef_id)
		VALUES ($1, $2, $3)
		RETURNING ` + roomColumns

	return scanRoom(r.db.QueryRow(ctx, query, bookingID, clientID, chefID))
}

func (r *ChatRoomRepository) GetByID(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE id = $1`
	return scanRoom(r.db.QueryRow(ctx, query, roomID))
}

func (r *ChatRoomRepository) GetByBookingID(ctx context.Context, bookingID int64) (*models.ChatRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE booking_id = $1`
	return scanRoom(r.db.QueryRow(ctx, query, bookingID))
}

func (r *ChatRoomRepository) GetByPair(ctx context.Context, clientID, chefID int64) (*models.ChatRoom, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE client_id = $1 AND chef_id = $2 AND booking_id IS NULL
	`
	return scanRoom(r.db.QueryRow(ctx, query, clientID, chefID))
}

// ListForParticipant returns every room the user belongs to, newest
// activity first, with the latest visible message and the count of
// messages the user has not read (not theirs, not deleted, no read-status
// row).
func (r *ChatRoomRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
) ([]models.RoomSummary, error) {
	query := `
		SELECT
			r.id,
			r.booking_id,
			r.client_id,
			r.chef_id,
			r.is_active,
			r.created_at,
			r.updated_at,
			lm.id,
			lm.room_id,
			lm.sender_id,
			lm.kind,
			lm.content,
			lm.attachment,
			lm.is_read,
			lm.is_edited,
			lm.is_deleted,
			lm.created_at,
			lm.updated_at,
			lm.read_at,
			COALESCE(uc.unread_count, 0)
		FROM chat_rooms r
		LEFT JOIN LATERAL (
			SELECT id, room_id, sender_id, kind, content, attachment,
			       is_read, is_edited, is_deleted, created_at, updated_at, read_at
			FROM messages
			WHERE room_id = r.id AND is_deleted = FALSE
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages m
			WHERE m.room_id = r.id
			  AND m.sender_id <> $1
			  AND m.is_deleted = FALSE
			  AND NOT EXISTS (
				SELECT 1 FROM message_read_statuses rs
				WHERE rs.message_id = m.id AND rs.user_id = $1
			  )
		) uc ON TRUE
		WHERE r.client_id = $1 OR r.chef_id = $1
		ORDER BY r.updated_at DESC, r.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.RoomSummary, 0)
	for rows.Next() {
		var summary models.RoomSummary
		var messageID sql.NullInt64
		var messageRoomID sql.NullInt64
		var messageSenderID sql.NullInt64
		var messageKind sql.NullString
		var messageContent sql.NullString
		var messageAttachment *string
		var messageIsRead sql.NullBool
		var messageIsEdited sql.NullBool
		var messageIsDeleted sql.NullBool
		var messageCreatedAt sql.NullTime
		var messageUpdatedAt sql.NullTime
		var messageReadAt sql.NullTime

		if err := rows.Scan(
			&summary.ID,
			&summary.BookingID,
			&summary.ClientID,
			&summary.ChefID,
			&summary.IsActive,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&messageID,
			&messageRoomID,
			&messageSenderID,
			&messageKind,
			&messageContent,
			&messageAttachment,
			&messageIsRead,
			&messageIsEdited,
			&messageIsDeleted,
			&messageCreatedAt,
			&messageUpdatedAt,
			&messageReadAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		if messageID.Valid {
			message := &models.Message{
				ID:         messageID.Int64,
				RoomID:     messageRoomID.Int64,
				SenderID:   messageSenderID.Int64,
				Kind:       models.MessageKind(messageKind.String),
				Content:    messageContent.String,
				Attachment: messageAttachment,
				IsRead:     messageIsRead.Bool,
				IsEdited:   messageIsEdited.Bool,
				IsDeleted:  messageIsDeleted.Bool,
				CreatedAt:  messageCreatedAt.Time,
				UpdatedAt:  messageUpdatedAt.Time,
			}
			if messageReadAt.Valid {
				readAt := messageReadAt.Time
				message.ReadAt = &readAt
			}
			summary.LastMessage = message
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *ChatRoomRepository) Deactivate(ctx context.Context, roomID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_rooms
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
	`, roomID)
	return err
}

// Touch advances updated_at so room lists sort by latest activity.
func (r *ChatRoomRepository) Touch(ctx context.Context, roomID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_rooms
		SET updated_at = NOW()
		WHERE id = $1
	`, roomID)
	return err
}

func scanRoom(row rowScanner) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := row.Scan(
		&room.ID,
		&room.BookingID,
		&room.ClientID,
		&room.ChefID,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}
