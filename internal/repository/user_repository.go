package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repairdesk/repairdesk/internal/domain"
)

// UserRepository defines persistence access for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetGuestByLineID finds the guest user synthesized for a LINE user id.
	GetGuestByLineID(ctx context.Context, lineUserID string) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, email, password_hash, role, phone_number, line_id, is_guest, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email, password_hash, role, phone_number, line_id, is_guest)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.PhoneNumber,
		user.LineID,
		user.IsGuest,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return translateError(err)
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.fetchOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchOne(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (r *userRepository) GetGuestByLineID(ctx context.Context, lineUserID string) (*domain.User, error) {
	return r.fetchOne(ctx, `SELECT `+userColumns+` FROM users WHERE line_id=$1 AND is_guest ORDER BY id LIMIT 1`, lineUserID)
}

func (r *userRepository) fetchOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.PhoneNumber,
		&user.LineID,
		&user.IsGuest,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
