package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/errors"
	"github.com/Laurent-studi/quizlive/internal/leaderboard"
)

const participantColumns = `participant_id, session_id, user_id, display_name,
score, active, eliminated_at, position, joined_at`

func (s *Store) InsertParticipant(ctx context.Context, p *domain.Participant) error {
	const stmt = `
INSERT INTO participants (participant_id, session_id, user_id, display_name, score, active, joined_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := s.db.Exec(ctx, stmt,
		p.ParticipantID, p.SessionID, nullable(p.UserID), p.DisplayName, p.Score, p.Active, p.JoinedAt)
	if isUniqueViolation(err) {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("participant already joined: session=%s", p.SessionID),
			errors.WithCause(err))
	}
	return err
}

func (s *Store) GetParticipant(ctx context.Context, participantID string) (*domain.Participant, error) {
	const stmt = `SELECT ` + participantColumns + ` FROM participants WHERE participant_id = $1;`

	p, err := scanParticipant(s.db.QueryRow(ctx, stmt, participantID))
	if err != nil {
		return nil, notFound(err, "participant not found: participant=%s", participantID)
	}
	return p, nil
}

func (s *Store) FindByIdentity(ctx context.Context, sessionID string, id domain.Identity) (*domain.Participant, error) {
	// Authenticated identities match on user_id, anonymous ones on display
	// name among rows without a user. Prefer the row that is still active.
	const authStmt = `SELECT ` + participantColumns + `
FROM participants
WHERE session_id = $1 AND user_id = $2
ORDER BY active DESC, joined_at DESC
LIMIT 1;`

	const anonStmt = `SELECT ` + participantColumns + `
FROM participants
WHERE session_id = $1 AND user_id IS NULL AND display_name = $2
ORDER BY active DESC, joined_at DESC
LIMIT 1;`

	var row pgx.Row
	if id.Anonymous() {
		row = s.db.QueryRow(ctx, anonStmt, sessionID, id.DisplayName)
	} else {
		row = s.db.QueryRow(ctx, authStmt, sessionID, id.UserID)
	}

	p, err := scanParticipant(row)
	if err != nil {
		return nil, notFound(err, "participant not found: session=%s", sessionID)
	}
	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	const stmt = `SELECT ` + participantColumns + `
FROM participants
WHERE session_id = $1
ORDER BY joined_at ASC;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Participant, error) {
		p, err := scanParticipant(r)
		if err != nil {
			return domain.Participant{}, err
		}
		return *p, nil
	})
}

func (s *Store) CountActive(ctx context.Context, sessionID string) (int, error) {
	const stmt = `
SELECT COUNT(*) FROM participants
WHERE session_id = $1 AND active AND eliminated_at IS NULL;`

	var count int
	if err := s.db.QueryRow(ctx, stmt, sessionID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) SetActive(ctx context.Context, participantID string, active bool) error {
	const stmt = `UPDATE participants SET active = $2 WHERE participant_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, participantID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("participant not found: participant=%s", participantID))
	}
	return nil
}

// ApplyPoints is a single atomic increment clamped at zero; two participants
// scoring concurrently never contend with each other.
func (s *Store) ApplyPoints(ctx context.Context, participantID string, delta int) (int, error) {
	const stmt = `
UPDATE participants
SET score = GREATEST(0, score + $2)
WHERE participant_id = $1
RETURNING score;`

	var total int
	err := s.db.QueryRow(ctx, stmt, participantID, delta).Scan(&total)
	if err != nil {
		return 0, notFound(err, "participant not found: participant=%s", participantID)
	}
	return total, nil
}

// RecordAnswer inserts the answer row and applies its points in one
// transaction. The UNIQUE(participant_id, question_id) index rejects
// resubmissions before any score change.
func (s *Store) RecordAnswer(ctx context.Context, a *domain.SubmittedAnswer, delta int) (_ int, err error) {
	choiceIDs, err := json.Marshal(a.ChoiceIDs)
	if err != nil {
		return 0, fmt.Errorf("marshal choice ids: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const insStmt = `
INSERT INTO submitted_answers (answer_id, participant_id, question_id, choice_ids,
	response_time, classification, points_earned, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err = tx.Exec(ctx, insStmt,
		a.AnswerID, a.ParticipantID, a.QuestionID, choiceIDs,
		a.ResponseTime, a.Classification, a.PointsEarned, a.CreatedAt)
	if isUniqueViolation(err) {
		return 0, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("answer exists: participant=%s question=%s", a.ParticipantID, a.QuestionID),
			errors.WithCause(err))
	}
	if err != nil {
		return 0, fmt.Errorf("insert answer: %w", err)
	}

	const updStmt = `
UPDATE participants
SET score = GREATEST(0, score + $2)
WHERE participant_id = $1
RETURNING score;`

	var total int
	if err = tx.QueryRow(ctx, updStmt, a.ParticipantID, delta).Scan(&total); err != nil {
		return 0, notFound(err, "participant not found: participant=%s", a.ParticipantID)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) VoidAnswers(ctx context.Context, sessionID string) error {
	const stmt = `
UPDATE submitted_answers
SET void = TRUE
WHERE participant_id IN (SELECT participant_id FROM participants WHERE session_id = $1);`

	_, err := s.db.Exec(ctx, stmt, sessionID)
	return err
}

func (s *Store) AnswerStats(ctx context.Context, sessionID string) (map[string]leaderboard.AnswerStats, error) {
	const stmt = `
SELECT p.participant_id, COALESCE(SUM(a.response_time), 0), MAX(a.created_at)
FROM participants p
LEFT JOIN submitted_answers a ON a.participant_id = p.participant_id AND NOT a.void
WHERE p.session_id = $1
GROUP BY p.participant_id;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]leaderboard.AnswerStats)
	for rows.Next() {
		var (
			pid  string
			st   leaderboard.AnswerStats
			last *time.Time
		)
		if err := rows.Scan(&pid, &st.TotalResponseTime, &last); err != nil {
			return nil, err
		}
		if last != nil {
			st.LastAnswerAt = *last
		}
		stats[pid] = st
	}
	return stats, rows.Err()
}

func scanParticipant(r pgx.Row) (*domain.Participant, error) {
	var (
		p        domain.Participant
		userID   *string
		position *int
	)
	err := r.Scan(&p.ParticipantID, &p.SessionID, &userID, &p.DisplayName,
		&p.Score, &p.Active, &p.EliminatedAt, &position, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	if userID != nil {
		p.UserID = *userID
	}
	if position != nil {
		p.Position = *position
	}
	return &p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
