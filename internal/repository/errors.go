package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned when an insert or update violates a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolation = "23505"

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
