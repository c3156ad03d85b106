package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repairdesk/repairdesk/internal/domain"
)

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	UserID   *int64
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Delete(ctx context.Context, id int64) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketSelect = `
        SELECT t.id, t.code, t.title, t.description, t.equipment_name, t.equipment_id, t.location,
               t.category, t.problem_category, t.problem_subcategory, t.priority, t.status,
               t.user_id, t.assignee_id, t.notes, t.required_date, t.created_at, t.updated_at,
               o.id, o.name, o.email, o.role,
               a.id, a.name, a.email, a.role
        FROM tickets t
        JOIN users o ON o.id = t.user_id
        LEFT JOIN users a ON a.id = t.assignee_id`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (code, title, description, equipment_name, equipment_id, location, category,
            problem_category, problem_subcategory, priority, status, user_id, assignee_id, notes, required_date)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Code,
		ticket.Title,
		ticket.Description,
		ticket.EquipmentName,
		ticket.EquipmentID,
		ticket.Location,
		ticket.Category,
		ticket.ProblemCategory,
		ticket.ProblemSubcategory,
		ticket.Priority,
		ticket.Status,
		ticket.UserID,
		ticket.AssigneeID,
		ticket.Notes,
		ticket.RequiredDate,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	return translateError(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, equipment_name=$3, equipment_id=$4, location=$5,
            category=$6, problem_category=$7, problem_subcategory=$8, priority=$9, status=$10,
            assignee_id=$11, notes=$12, required_date=$13, updated_at=NOW()
        WHERE id=$14
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.EquipmentName,
		ticket.EquipmentID,
		ticket.Location,
		ticket.Category,
		ticket.ProblemCategory,
		ticket.ProblemSubcategory,
		ticket.Priority,
		ticket.Status,
		ticket.AssigneeID,
		ticket.Notes,
		ticket.RequiredDate,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return translateError(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	return scanTicket(r.pool.QueryRow(ctx, ticketSelect+` WHERE t.id=$1`, id))
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("t.user_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}

	query := ticketSelect + " WHERE " + strings.Join(clauses, " AND ") + " ORDER BY t.created_at DESC, t.id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, rows.Err()
}

// Delete removes the ticket; attachments and logs cascade.
func (r *ticketRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket        domain.Ticket
		owner         domain.UserSummary
		ownerRole     string
		assigneeID    *int64
		assigneeName  *string
		assigneeEmail *string
		assigneeRole  *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Code,
		&ticket.Title,
		&ticket.Description,
		&ticket.EquipmentName,
		&ticket.EquipmentID,
		&ticket.Location,
		&ticket.Category,
		&ticket.ProblemCategory,
		&ticket.ProblemSubcategory,
		&ticket.Priority,
		&ticket.Status,
		&ticket.UserID,
		&ticket.AssigneeID,
		&ticket.Notes,
		&ticket.RequiredDate,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&owner.ID,
		&owner.Name,
		&owner.Email,
		&ownerRole,
		&assigneeID,
		&assigneeName,
		&assigneeEmail,
		&assigneeRole,
	); err != nil {
		return nil, err
	}
	owner.Role = domain.Role(ownerRole)
	ticket.Owner = &owner
	if assigneeID != nil {
		ticket.Assignee = &domain.UserSummary{
			ID:    *assigneeID,
			Name:  deref(assigneeName),
			Email: deref(assigneeEmail),
			Role:  domain.Role(deref(assigneeRole)),
		}
	}
	return &ticket, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
