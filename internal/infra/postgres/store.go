// Package postgres implements the service store interfaces on a pgx pool.
// Per-session serialization uses SELECT ... FOR UPDATE on the session row;
// duplicate joins, duplicate answers and join-code collisions surface as
// unique-index violations translated to CodeAlreadyExists.
package postgres

import (
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Laurent-studi/quizlive/internal/errors"
)

const codeUniqueViolation = "23505"

type Store struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db, now: time.Now}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func notFound(err error, format string, args ...any) error {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.CodeNotFound, errors.WithMessagef(format, args...))
	}
	return err
}
