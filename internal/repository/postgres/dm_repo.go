package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jasonhq/relay/internal/domain"
)

type DMRepo struct {
	pool *pgxpool.Pool
}

func NewDMRepo(pool *pgxpool.Pool) *DMRepo {
	return &DMRepo{pool: pool}
}

func (r *DMRepo) Create(ctx context.Context, dm *domain.DirectMessage) error {
	query := `
		INSERT INTO direct_messages (id, sender_id, receiver_id, content, file_url,
			file_name, is_read, is_ai_generated, nonce, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		dm.ID, dm.SenderID, dm.ReceiverID, dm.Content, dm.FileURL, dm.FileName,
		dm.IsRead, dm.IsAiGenerated, dm.Nonce, dm.CreatedAt,
	)
	return err
}

const dmSelect = `
	SELECT d.id, d.sender_id, d.receiver_id, d.content, d.file_url, d.file_name,
		d.is_read, d.is_ai_generated, d.nonce, d.deleted_at, d.created_at,
		COALESCE(u.username, d.sender_id), COALESCE(u.display_name, d.sender_id)
	FROM direct_messages d
	LEFT JOIN users u ON d.sender_id = u.id`

func (r *DMRepo) GetByID(ctx context.Context, id string) (*domain.DirectMessage, error) {
	var dm domain.DirectMessage
	err := r.pool.QueryRow(ctx, dmSelect+` WHERE d.id = $1`, id).Scan(
		&dm.ID, &dm.SenderID, &dm.ReceiverID, &dm.Content, &dm.FileURL, &dm.FileName,
		&dm.IsRead, &dm.IsAiGenerated, &dm.Nonce, &dm.DeletedAt, &dm.CreatedAt,
		&dm.SenderUsername, &dm.SenderDisplayName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dm, nil
}

func (r *DMRepo) ListBetween(ctx context.Context, userA, userB string, limit int) ([]domain.DirectMessage, error) {
	query := dmSelect + `
		WHERE d.deleted_at IS NULL
			AND ((d.sender_id = $1 AND d.receiver_id = $2)
				OR (d.sender_id = $2 AND d.receiver_id = $1))
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT $3`
	rows, err := r.pool.Query(ctx, query, userA, userB, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.DirectMessage
	for rows.Next() {
		var dm domain.DirectMessage
		if err := rows.Scan(
			&dm.ID, &dm.SenderID, &dm.ReceiverID, &dm.Content, &dm.FileURL, &dm.FileName,
			&dm.IsRead, &dm.IsAiGenerated, &dm.Nonce, &dm.DeletedAt, &dm.CreatedAt,
			&dm.SenderUsername, &dm.SenderDisplayName,
		); err != nil {
			return nil, err
		}
		messages = append(messages, dm)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, rows.Err()
}

func (r *DMRepo) MarkRead(ctx context.Context, readerID, senderID string) error {
	query := `
		UPDATE direct_messages SET is_read = TRUE
		WHERE receiver_id = $1 AND sender_id = $2 AND NOT is_read`
	_, err := r.pool.Exec(ctx, query, readerID, senderID)
	return err
}

func (r *DMRepo) Conversations(ctx context.Context, userID string) ([]domain.DMConversation, error) {
	// One row per counterpart: latest message plus unread-from-them count.
	query := `
		SELECT other_id,
			COALESCE(u.username, other_id),
			COALESCE(u.display_name, other_id),
			last.content, last.created_at,
			(SELECT COUNT(*) FROM direct_messages x
				WHERE x.receiver_id = $1 AND x.sender_id = other_id
					AND NOT x.is_read AND x.deleted_at IS NULL) AS unread
		FROM (
			SELECT DISTINCT ON (other_id) *
			FROM (
				SELECT d.*,
					CASE WHEN d.sender_id = $1 THEN d.receiver_id ELSE d.sender_id END AS other_id
				FROM direct_messages d
				WHERE (d.sender_id = $1 OR d.receiver_id = $1) AND d.deleted_at IS NULL
			) t
			ORDER BY other_id, created_at DESC, id DESC
		) last
		LEFT JOIN users u ON u.id = last.other_id
		ORDER BY last.created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.DMConversation
	for rows.Next() {
		var c domain.DMConversation
		if err := rows.Scan(
			&c.OtherUserID, &c.OtherUserUsername, &c.OtherUserDisplayName,
			&c.LastMessage, &c.LastMessageAt, &c.UnreadCount,
		); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (r *DMRepo) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	query := `
		SELECT sender_id, COUNT(*)
		FROM direct_messages
		WHERE receiver_id = $1 AND NOT is_read AND deleted_at IS NULL
		GROUP BY sender_id`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sender string
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, err
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}
