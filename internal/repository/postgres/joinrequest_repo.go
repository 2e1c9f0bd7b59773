package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jasonhq/relay/internal/domain"
)

type JoinRequestRepo struct {
	pool *pgxpool.Pool
}

func NewJoinRequestRepo(pool *pgxpool.Pool) *JoinRequestRepo {
	return &JoinRequestRepo{pool: pool}
}

func (r *JoinRequestRepo) Create(ctx context.Context, req *domain.JoinRequest) error {
	query := `
		INSERT INTO join_requests (id, channel_id, user_id, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query,
		req.ID, req.ChannelID, req.UserID, req.Message, req.Status, req.CreatedAt,
	)
	return err
}

const joinRequestSelect = `
	SELECT jr.id, jr.channel_id, jr.user_id, jr.message, jr.status, jr.created_at,
		u.username, u.display_name, c.name
	FROM join_requests jr
	JOIN users u ON jr.user_id = u.id
	JOIN channels c ON jr.channel_id = c.id`

func (r *JoinRequestRepo) GetByID(ctx context.Context, id string) (*domain.JoinRequest, error) {
	var req domain.JoinRequest
	err := r.pool.QueryRow(ctx, joinRequestSelect+` WHERE jr.id = $1`, id).Scan(
		&req.ID, &req.ChannelID, &req.UserID, &req.Message, &req.Status, &req.CreatedAt,
		&req.Username, &req.DisplayName, &req.ChannelName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *JoinRequestRepo) GetPending(ctx context.Context, channelID, userID string) (*domain.JoinRequest, error) {
	query := joinRequestSelect + `
		WHERE jr.channel_id = $1 AND jr.user_id = $2 AND jr.status = 'pending'`
	var req domain.JoinRequest
	err := r.pool.QueryRow(ctx, query, channelID, userID).Scan(
		&req.ID, &req.ChannelID, &req.UserID, &req.Message, &req.Status, &req.CreatedAt,
		&req.Username, &req.DisplayName, &req.ChannelName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *JoinRequestRepo) ListPending(ctx context.Context, channelID string) ([]domain.JoinRequest, error) {
	query := joinRequestSelect + `
		WHERE jr.channel_id = $1 AND jr.status = 'pending'
		ORDER BY jr.created_at`
	rows, err := r.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []domain.JoinRequest
	for rows.Next() {
		var req domain.JoinRequest
		if err := rows.Scan(
			&req.ID, &req.ChannelID, &req.UserID, &req.Message, &req.Status, &req.CreatedAt,
			&req.Username, &req.DisplayName, &req.ChannelName,
		); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *JoinRequestRepo) UpdateStatus(ctx context.Context, id string, status domain.JoinRequestStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE join_requests SET status = $1 WHERE id = $2`, status, id)
	return err
}
