package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jasonhq/relay/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, channel_id, sender_id, content, file_url, file_name,
			is_edited, is_ai_generated, nonce, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.ChannelID, msg.SenderID, msg.Content, msg.FileURL, msg.FileName,
		msg.IsEdited, msg.IsAiGenerated, msg.Nonce, msg.CreatedAt,
	)
	return err
}

// The sender join is LEFT because the reserved bot sender has no user row.
const messageSelect = `
	SELECT m.id, m.channel_id, m.sender_id, m.content, m.file_url, m.file_name,
		m.is_edited, m.is_ai_generated, m.nonce, m.deleted_at, m.created_at,
		COALESCE(u.username, m.sender_id), COALESCE(u.display_name, m.sender_id)
	FROM messages m
	LEFT JOIN users u ON m.sender_id = u.id`

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.pool.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id).Scan(
		&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Content, &msg.FileURL, &msg.FileName,
		&msg.IsEdited, &msg.IsAiGenerated, &msg.Nonce, &msg.DeletedAt, &msg.CreatedAt,
		&msg.SenderUsername, &msg.SenderDisplayName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepo) ListByChannel(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	query := messageSelect + `
		WHERE m.channel_id = $1 AND m.deleted_at IS NULL
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Content, &msg.FileURL, &msg.FileName,
			&msg.IsEdited, &msg.IsAiGenerated, &msg.Nonce, &msg.DeletedAt, &msg.CreatedAt,
			&msg.SenderUsername, &msg.SenderDisplayName,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	// The query is newest-first; flip to chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, rows.Err()
}

func (r *MessageRepo) Update(ctx context.Context, msg *domain.Message) error {
	query := `UPDATE messages SET content = $1, is_edited = TRUE WHERE id = $2`
	_, err := r.pool.Exec(ctx, query, msg.Content, msg.ID)
	return err
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE messages SET deleted_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}
