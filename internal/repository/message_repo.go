package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/ChefConnectBack/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `
	id, room_id, sender_id, kind, content, attachment,
	is_read, is_edited, is_deleted, created_at, updated_at, read_at
`

type CreateMessageInput struct {
	RoomID      int64
	SenderID    int64
	Kind        models.MessageKind
	Content     string
	Attachment  *string
	ClientNonce *string
}

// Create appends a message to the room's log. When a client nonce is
// supplied, a retried submission hits the partial unique index on
// (room_id, sender_id, client_nonce) and the originally persisted row is
// returned instead of a second insert.
func (r *MessageRepository) Create(ctx context.Context, input CreateMessageInput) (*models.Message, error) {
	query := `
		INSERT INTO messages (room_id, sender_id, kind, content, attachment, client_nonce)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, sender_id, client_nonce) WHERE client_nonce IS NOT NULL
		DO NOTHING
		RETURNING ` + messageColumns

	message, err := scanMessage(r.db.QueryRow(ctx, query,
		input.RoomID,
		input.SenderID,
		input.Kind,
		input.Content,
		input.Attachment,
		input.ClientNonce,
	))
	if err == nil {
		return message, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || input.ClientNonce == nil {
		return nil, err
	}

	// Conflict on the nonce: the submission was already persisted.
	return r.getByNonce(ctx, input.RoomID, input.SenderID, *input.ClientNonce)
}

func (r *MessageRepository) getByNonce(
	ctx context.Context,
	roomID int64,
	senderID int64,
	nonce string,
) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = $1 AND sender_id = $2 AND client_nonce = $3
	`
	return scanMessage(r.db.QueryRow(ctx, query, roomID, senderID, nonce))
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return scanMessage(r.db.QueryRow(ctx, query, messageID))
}

// ListByRoom pages the room's log newest first. The keyset boundary is the
// (created_at, id) pair of the cursor message, so concurrent inserts can
// never duplicate or skip rows between pages.
func (r *MessageRepository) ListByRoom(
	ctx context.Context,
	roomID int64,
	beforeCreatedAt *time.Time,
	beforeID int64,
	limit int,
) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = $1
		  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, roomID, beforeCreatedAt, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *MessageRepository) UpdateContent(
	ctx context.Context,
	messageID int64,
	content string,
) (*models.Message, error) {
	query := `
		UPDATE messages
		SET content = $2, is_edited = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + messageColumns

	return scanMessage(r.db.QueryRow(ctx, query, messageID, content))
}

func (r *MessageRepository) SoftDelete(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `
		UPDATE messages
		SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + messageColumns

	return scanMessage(r.db.QueryRow(ctx, query, messageID))
}

// MarkRead sets the aggregate read flag. It is set on the first read by a
// non-sender and never cleared.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND is_read = FALSE
	`, messageID)
	return err
}

// MarkReadMany is the bulk form of MarkRead used by mark-all-read.
func (r *MessageRepository) MarkReadMany(ctx context.Context, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = NOW()
		WHERE id = ANY($1) AND is_read = FALSE
	`, messageIDs)
	return err
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var message models.Message
	err := row.Scan(
		&message.ID,
		&message.RoomID,
		&message.SenderID,
		&message.Kind,
		&message.Content,
		&message.Attachment,
		&message.IsRead,
		&message.IsEdited,
		&message.IsDeleted,
		&message.CreatedAt,
		&message.UpdatedAt,
		&message.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return &message, nil
}
