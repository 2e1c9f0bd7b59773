package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jasonhq/relay/internal/domain"
)

type UploadRepo struct {
	pool *pgxpool.Pool
}

func NewUploadRepo(pool *pgxpool.Pool) *UploadRepo {
	return &UploadRepo{pool: pool}
}

func (r *UploadRepo) Create(ctx context.Context, up *domain.Upload) error {
	query := `
		INSERT INTO uploads (id, user_id, file_name, file_url, content_type,
			is_resume, parse_status, parsed_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		up.ID, up.UserID, up.FileName, up.FileURL, up.ContentType,
		up.IsResume, up.ParseStatus, up.ParsedData, up.CreatedAt,
	)
	return err
}

const uploadColumns = `id, user_id, file_name, file_url, content_type,
	is_resume, parse_status, parsed_data, created_at`

func (r *UploadRepo) GetByID(ctx context.Context, id string) (*domain.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`
	var up domain.Upload
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&up.ID, &up.UserID, &up.FileName, &up.FileURL, &up.ContentType,
		&up.IsResume, &up.ParseStatus, &up.ParsedData, &up.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &up, nil
}

func (r *UploadRepo) ListByUser(ctx context.Context, userID string) ([]domain.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []domain.Upload
	for rows.Next() {
		var up domain.Upload
		if err := rows.Scan(
			&up.ID, &up.UserID, &up.FileName, &up.FileURL, &up.ContentType,
			&up.IsResume, &up.ParseStatus, &up.ParsedData, &up.CreatedAt,
		); err != nil {
			return nil, err
		}
		uploads = append(uploads, up)
	}
	return uploads, rows.Err()
}

func (r *UploadRepo) SetParseResult(ctx context.Context, id string, status domain.ParseStatus, data json.RawMessage) error {
	query := `UPDATE uploads SET parse_status = $1, parsed_data = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, query, status, data, id)
	return err
}
