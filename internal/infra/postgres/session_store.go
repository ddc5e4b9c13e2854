package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/errors"
)

const sessionColumns = `session_id, quiz_id, owner_id, join_code, status, mode,
current_question_index, question_count, settings, created_at, started_at, ended_at`

func (s *Store) InsertSession(ctx context.Context, ss *domain.Session) error {
	const stmt = `
INSERT INTO sessions (session_id, quiz_id, owner_id, join_code, status, mode,
	current_question_index, question_count, settings, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	settings, err := json.Marshal(ss.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	_, err = s.db.Exec(ctx, stmt,
		ss.SessionID, ss.QuizID, ss.OwnerID, ss.JoinCode, ss.Status, ss.Mode,
		ss.CurrentQuestionIndex, ss.QuestionCount, settings, ss.CreatedAt)
	if isUniqueViolation(err) {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("join code %s is taken", ss.JoinCode),
			errors.WithCause(err))
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	const stmt = `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1;`

	ss, err := scanSession(s.db.QueryRow(ctx, stmt, sessionID))
	if err != nil {
		return nil, notFound(err, "session not found: session=%s", sessionID)
	}
	return ss, nil
}

func (s *Store) GetSessionByCode(ctx context.Context, code string) (*domain.Session, error) {
	const stmt = `SELECT ` + sessionColumns + `
FROM sessions
WHERE join_code = $1 AND status NOT IN ('completed', 'cancelled');`

	ss, err := scanSession(s.db.QueryRow(ctx, stmt, code))
	if err != nil {
		return nil, notFound(err, "session not found: code=%s", code)
	}
	return ss, nil
}

// UpdateSession locks the session row, applies fn and writes the mutable
// columns back inside one transaction. Concurrent transitions on the same
// session serialize on the row lock.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, fn func(*domain.Session) error) (_ *domain.Session, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const selStmt = `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1 FOR UPDATE;`

	ss, err := scanSession(tx.QueryRow(ctx, selStmt, sessionID))
	if err != nil {
		return nil, notFound(err, "session not found: session=%s", sessionID)
	}

	if err = fn(ss); err != nil {
		return nil, err
	}

	const updStmt = `
UPDATE sessions
SET status = $2, current_question_index = $3, started_at = $4, ended_at = $5
WHERE session_id = $1;`

	_, err = tx.Exec(ctx, updStmt, ss.SessionID, ss.Status, ss.CurrentQuestionIndex, ss.StartedAt, ss.EndedAt)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ss, nil
}

func scanSession(r pgx.Row) (*domain.Session, error) {
	var (
		ss       domain.Session
		settings []byte
	)
	err := r.Scan(&ss.SessionID, &ss.QuizID, &ss.OwnerID, &ss.JoinCode, &ss.Status, &ss.Mode,
		&ss.CurrentQuestionIndex, &ss.QuestionCount, &settings, &ss.CreatedAt, &ss.StartedAt, &ss.EndedAt)
	if err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &ss.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return &ss, nil
}
