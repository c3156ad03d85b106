package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repairdesk/repairdesk/internal/domain"
)

// NotificationRepository persists outbound push records.
type NotificationRepository interface {
	Create(ctx context.Context, record *domain.NotificationRecord) error
	// ListRetryable returns FAILED records below maxRetries, oldest first.
	ListRetryable(ctx context.Context, maxRetries, limit int) ([]domain.NotificationRecord, error)
	// RecordRetry stores a retry outcome and increments retry_count. It
	// returns pgx.ErrNoRows if the record already reached maxRetries.
	RecordRetry(ctx context.Context, id int64, status domain.NotificationStatus, errMsg *string, maxRetries int) error
	ListByLineUserID(ctx context.Context, lineUserID string, limit int) ([]domain.NotificationRecord, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository constructs repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

const notificationColumns = `id, line_user_id, type, title, message, action_url, status, error_message, retry_count, retry_key, created_at, updated_at`

func (r *notificationRepository) Create(ctx context.Context, record *domain.NotificationRecord) error {
	const query = `
        INSERT INTO line_notifications (line_user_id, type, title, message, action_url, status, error_message, retry_count, retry_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		record.LineUserID,
		record.Type,
		record.Title,
		record.Message,
		record.ActionURL,
		record.Status,
		record.ErrorMessage,
		record.RetryCount,
		record.RetryKey,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
}

func (r *notificationRepository) ListRetryable(ctx context.Context, maxRetries, limit int) ([]domain.NotificationRecord, error) {
	const query = `SELECT ` + notificationColumns + `
        FROM line_notifications
        WHERE status='FAILED' AND retry_count < $1
        ORDER BY created_at ASC, id ASC
        LIMIT $2`
	return r.list(ctx, query, maxRetries, limit)
}

func (r *notificationRepository) RecordRetry(ctx context.Context, id int64, status domain.NotificationStatus, errMsg *string, maxRetries int) error {
	const query = `
        UPDATE line_notifications
        SET status=$1, error_message=COALESCE($2, error_message), retry_count=retry_count+1, updated_at=NOW()
        WHERE id=$3 AND retry_count < $4`
	cmd, err := r.pool.Exec(ctx, query, status, errMsg, id, maxRetries)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) ListByLineUserID(ctx context.Context, lineUserID string, limit int) ([]domain.NotificationRecord, error) {
	const query = `SELECT ` + notificationColumns + `
        FROM line_notifications WHERE line_user_id=$1
        ORDER BY created_at DESC, id DESC
        LIMIT $2`
	return r.list(ctx, query, lineUserID, limit)
}

func (r *notificationRepository) list(ctx context.Context, query string, args ...any) ([]domain.NotificationRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.NotificationRecord
	for rows.Next() {
		var record domain.NotificationRecord
		if err := rows.Scan(
			&record.ID,
			&record.LineUserID,
			&record.Type,
			&record.Title,
			&record.Message,
			&record.ActionURL,
			&record.Status,
			&record.ErrorMessage,
			&record.RetryCount,
			&record.RetryKey,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}
