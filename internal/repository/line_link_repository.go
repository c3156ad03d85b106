package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repairdesk/repairdesk/internal/domain"
)

// LineLinkRepository manages LINE account link rows and their single-use tokens.
type LineLinkRepository interface {
	// UpsertPending stores a fresh PENDING row for the user. It returns
	// pgx.ErrNoRows when the user already has a VERIFIED link.
	UpsertPending(ctx context.Context, userID int64, token string, expiresAt time.Time) (*domain.LineAccountLink, error)
	GetByUserID(ctx context.Context, userID int64) (*domain.LineAccountLink, error)
	GetVerifiedByLineUserID(ctx context.Context, lineUserID string) (*domain.LineAccountLink, error)
	// Verify consumes the token in one conditional update. It returns
	// pgx.ErrNoRows when no unexpired PENDING row carries the token.
	Verify(ctx context.Context, userID int64, lineUserID, token string, now time.Time) (*domain.LineAccountLink, error)
	Unlink(ctx context.Context, userID int64) (int64, error)
	UnlinkByLineUserID(ctx context.Context, lineUserID string) (int64, error)
}

type lineLinkRepository struct {
	pool *pgxpool.Pool
}

// NewLineLinkRepository constructs repository.
func NewLineLinkRepository(pool *pgxpool.Pool) LineLinkRepository {
	return &lineLinkRepository{pool: pool}
}

const linkColumns = `id, user_id, line_user_id, status, verification_token, token_expires_at, linked_at, created_at, updated_at`

func (r *lineLinkRepository) UpsertPending(ctx context.Context, userID int64, token string, expiresAt time.Time) (*domain.LineAccountLink, error) {
	const query = `
        INSERT INTO line_account_links (user_id, status, verification_token, token_expires_at)
        VALUES ($1, 'PENDING', $2, $3)
        ON CONFLICT (user_id) DO UPDATE
            SET status='PENDING', line_user_id=NULL, verification_token=EXCLUDED.verification_token,
                token_expires_at=EXCLUDED.token_expires_at, linked_at=NULL, updated_at=NOW()
            WHERE line_account_links.status <> 'VERIFIED'
        RETURNING ` + linkColumns
	return scanLink(r.pool.QueryRow(ctx, query, userID, token, expiresAt))
}

func (r *lineLinkRepository) GetByUserID(ctx context.Context, userID int64) (*domain.LineAccountLink, error) {
	return scanLink(r.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM line_account_links WHERE user_id=$1`, userID))
}

func (r *lineLinkRepository) GetVerifiedByLineUserID(ctx context.Context, lineUserID string) (*domain.LineAccountLink, error) {
	const query = `SELECT ` + linkColumns + ` FROM line_account_links WHERE line_user_id=$1 AND status='VERIFIED'`
	return scanLink(r.pool.QueryRow(ctx, query, lineUserID))
}

func (r *lineLinkRepository) Verify(ctx context.Context, userID int64, lineUserID, token string, now time.Time) (*domain.LineAccountLink, error) {
	const query = `
        UPDATE line_account_links
        SET status='VERIFIED', line_user_id=$1, verification_token=NULL, token_expires_at=NULL,
            linked_at=$4, updated_at=NOW()
        WHERE user_id=$2 AND status='PENDING' AND verification_token=$3 AND token_expires_at > $4
        RETURNING ` + linkColumns
	link, err := scanLink(r.pool.QueryRow(ctx, query, lineUserID, userID, token, now))
	if err != nil {
		return nil, translateError(err)
	}
	return link, nil
}

func (r *lineLinkRepository) Unlink(ctx context.Context, userID int64) (int64, error) {
	const query = `
        UPDATE line_account_links SET status='UNLINKED', updated_at=NOW()
        WHERE user_id=$1 AND status='VERIFIED'`
	cmd, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *lineLinkRepository) UnlinkByLineUserID(ctx context.Context, lineUserID string) (int64, error) {
	const query = `
        UPDATE line_account_links SET status='UNLINKED', updated_at=NOW()
        WHERE line_user_id=$1 AND status <> 'UNLINKED'`
	cmd, err := r.pool.Exec(ctx, query, lineUserID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanLink(row pgx.Row) (*domain.LineAccountLink, error) {
	var link domain.LineAccountLink
	if err := row.Scan(
		&link.ID,
		&link.UserID,
		&link.LineUserID,
		&link.Status,
		&link.VerificationToken,
		&link.TokenExpiresAt,
		&link.LinkedAt,
		&link.CreatedAt,
		&link.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &link, nil
}
