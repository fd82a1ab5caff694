package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/ChefConnectBack/internal/models"
)

type ReadStatusRepository struct {
	db DBTX
}

func NewReadStatusRepository(db DBTX) *ReadStatusRepository {
	return &ReadStatusRepository{db: db}
}

// Create records that user has read the message. The (message, user) row
// is created at most once; a repeat returns the existing row with
// created=false.
func (r *ReadStatusRepository) Create(
	ctx context.Context,
	messageID int64,
	userID int64,
) (*models.MessageReadStatus, bool, error) {
	query := `
		INSERT INTO message_read_statuses (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING id, message_id, user_id, read_at
	`

	status, err := scanReadStatus(r.db.QueryRow(ctx, query, messageID, userID))
	if err == nil {
		return status, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	status, err = r.get(ctx, messageID, userID)
	if err != nil {
		return nil, false, err
	}
	return status, false, nil
}

func (r *ReadStatusRepository) get(
	ctx context.Context,
	messageID int64,
	userID int64,
) (*models.MessageReadStatus, error) {
	query := `
		SELECT id, message_id, user_id, read_at
		FROM message_read_statuses
		WHERE message_id = $1 AND user_id = $2
	`
	return scanReadStatus(r.db.QueryRow(ctx, query, messageID, userID))
}

// CreateForRoom inserts read statuses for every message in the room the
// user has not read and did not send, returning the newly covered message
// ids. Re-running inserts nothing.
func (r *ReadStatusRepository) CreateForRoom(
	ctx context.Context,
	roomID int64,
	userID int64,
) ([]int64, error) {
	query := `
		INSERT INTO message_read_statuses (message_id, user_id)
		SELECT m.id, $2
		FROM messages m
		WHERE m.room_id = $1
		  AND m.sender_id <> $2
		  AND m.is_deleted = FALSE
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING message_id
	`

	rows, err := r.db.Query(ctx, query, roomID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messageIDs := make([]int64, 0)
	for rows.Next() {
		var messageID int64
		if err := rows.Scan(&messageID); err != nil {
			return nil, err
		}
		messageIDs = append(messageIDs, messageID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messageIDs, nil
}

func scanReadStatus(row rowScanner) (*models.MessageReadStatus, error) {
	var status models.MessageReadStatus
	err := row.Scan(&status.ID, &status.MessageID, &status.UserID, &status.ReadAt)
	if err != nil {
		return nil, err
	}
	return &status, nil
}
