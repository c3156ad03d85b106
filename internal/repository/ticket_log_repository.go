package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repairdesk/repairdesk/internal/domain"
)

// TicketLogRepository stores ticket history entries.
type TicketLogRepository interface {
	Create(ctx context.Context, entry *domain.TicketLog) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketLog, error)
}

type ticketLogRepository struct {
	pool *pgxpool.Pool
}

// NewTicketLogRepository builds repository.
func NewTicketLogRepository(pool *pgxpool.Pool) TicketLogRepository {
	return &ticketLogRepository{pool: pool}
}

func (r *ticketLogRepository) Create(ctx context.Context, entry *domain.TicketLog) error {
	const query = `
        INSERT INTO ticket_logs (ticket_id, actor_id, action, old_value, new_value, comment)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.ActorID,
		entry.Action,
		entry.OldValue,
		entry.NewValue,
		entry.Comment,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// ListByTicket returns entries oldest first with the acting user attached.
func (r *ticketLogRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketLog, error) {
	const query = `
        SELECT l.id, l.ticket_id, l.actor_id, l.action, l.old_value, l.new_value, l.comment, l.created_at,
               u.name, u.email, u.role
        FROM ticket_logs l
        LEFT JOIN users u ON u.id = l.actor_id
        WHERE l.ticket_id=$1
        ORDER BY l.created_at ASC, l.id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketLog
	for rows.Next() {
		var (
			entry             domain.TicketLog
			name, email, role *string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ActorID,
			&entry.Action,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Comment,
			&entry.CreatedAt,
			&name,
			&email,
			&role,
		); err != nil {
			return nil, err
		}
		if entry.ActorID != nil && name != nil {
			entry.Actor = &domain.UserSummary{ID: *entry.ActorID, Name: *name, Email: deref(email), Role: domain.Role(deref(role))}
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
