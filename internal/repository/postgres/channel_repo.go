package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jasonhq/relay/internal/domain"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	query := `
		INSERT INTO channels (id, name, description, tier, is_private, is_archived, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		ch.ID, ch.Name, ch.Description, ch.Tier, ch.IsPrivate, ch.IsArchived,
		ch.CreatedBy, ch.CreatedAt,
	)
	return err
}

func (r *ChannelRepo) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	query := `
		SELECT id, name, description, tier, is_private, is_archived, created_by, created_at
		FROM channels WHERE id = $1`
	var ch domain.Channel
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ch.ID, &ch.Name, &ch.Description, &ch.Tier, &ch.IsPrivate, &ch.IsArchived,
		&ch.CreatedBy, &ch.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *ChannelRepo) List(ctx context.Context, forUserID string, filter domain.ChannelFilter) ([]domain.Channel, error) {
	query := `
		SELECT c.id, c.name, c.description, c.tier, c.is_private, c.is_archived,
			c.created_by, c.created_at,
			cm.user_id IS NOT NULL AS is_member,
			COALESCE(cm.role, '') AS member_role
		FROM channels c
		LEFT JOIN channel_members cm ON cm.channel_id = c.id AND cm.user_id = $1
		WHERE ($2 = '' OR c.name ILIKE '%' || $2 || '%')
			AND ($3 = '' OR c.tier = $3)
			AND ($4 OR NOT c.is_private)
			AND ($5 OR NOT c.is_archived)
		ORDER BY c.name`
	tier := ""
	if filter.Tier != nil {
		tier = string(*filter.Tier)
	}
	rows, err := r.pool.Query(ctx, query,
		forUserID, filter.Search, tier, filter.ShowPrivate, filter.ShowArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(
			&ch.ID, &ch.Name, &ch.Description, &ch.Tier, &ch.IsPrivate, &ch.IsArchived,
			&ch.CreatedBy, &ch.CreatedAt, &ch.IsMember, &ch.MemberRole,
		); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (r *ChannelRepo) Archive(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE channels SET is_archived = TRUE WHERE id = $1`, id)
	return err
}

func (r *ChannelRepo) AddMember(ctx context.Context, m *domain.ChannelMember) error {
	query := `
		INSERT INTO channel_members (channel_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, m.ChannelID, m.UserID, m.Role, m.JoinedAt)
	return err
}

func (r *ChannelRepo) RemoveMember(ctx context.Context, channelID, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID)
	return err
}

func (r *ChannelRepo) GetMember(ctx context.Context, channelID, userID string) (*domain.ChannelMember, error) {
	query := `
		SELECT channel_id, user_id, role, joined_at
		FROM channel_members WHERE channel_id = $1 AND user_id = $2`
	var m domain.ChannelMember
	err := r.pool.QueryRow(ctx, query, channelID, userID).Scan(
		&m.ChannelID, &m.UserID, &m.Role, &m.JoinedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ChannelRepo) ListMembers(ctx context.Context, channelID string) ([]domain.ChannelMember, error) {
	query := `
		SELECT cm.channel_id, cm.user_id, cm.role, cm.joined_at, u.username, u.display_name
		FROM channel_members cm
		JOIN users u ON cm.user_id = u.id
		WHERE cm.channel_id = $1
		ORDER BY u.username`
	rows, err := r.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.ChannelMember
	for rows.Next() {
		var m domain.ChannelMember
		if err := rows.Scan(
			&m.ChannelID, &m.UserID, &m.Role, &m.JoinedAt, &m.Username, &m.DisplayName,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
