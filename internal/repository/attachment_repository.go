package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repairdesk/repairdesk/internal/domain"
)

// AttachmentRepository persists attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *domain.Attachment) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.Attachment, error)
}

type attachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepository{pool: pool}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO attachments (ticket_id, file_name, file_url, storage_key, file_size, mime_type)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		attachment.TicketID,
		attachment.FileName,
		attachment.FileURL,
		attachment.StorageKey,
		attachment.FileSize,
		attachment.MimeType,
	).Scan(&attachment.ID, &attachment.CreatedAt)
}

func (r *attachmentRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.Attachment, error) {
	const query = `
        SELECT id, ticket_id, file_name, file_url, storage_key, file_size, mime_type, created_at
        FROM attachments WHERE ticket_id=$1 ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var attachment domain.Attachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.TicketID,
			&attachment.FileName,
			&attachment.FileURL,
			&attachment.StorageKey,
			&attachment.FileSize,
			&attachment.MimeType,
			&attachment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}
