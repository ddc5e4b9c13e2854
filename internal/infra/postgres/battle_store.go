package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/errors"
)

// EliminateLowest performs one Battle Royale elimination as a single
// transaction. The session row lock serializes concurrent ticks, so two
// callers can never eliminate two participants for one slot.
func (s *Store) EliminateLowest(ctx context.Context, sessionID string) (_ *domain.Elimination, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const lockStmt = `SELECT status FROM sessions WHERE session_id = $1 FOR UPDATE;`

	var status domain.SessionStatus
	if err = tx.QueryRow(ctx, lockStmt, sessionID).Scan(&status); err != nil {
		return nil, notFound(err, "session not found: session=%s", sessionID)
	}
	if status != domain.StatusActive {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("cannot eliminate: session=%s status=%s", sessionID, status))
	}

	const countStmt = `
SELECT COUNT(*) FROM participants
WHERE session_id = $1 AND active AND eliminated_at IS NULL;`

	var count int
	if err = tx.QueryRow(ctx, countStmt, sessionID).Scan(&count); err != nil {
		return nil, err
	}
	if count < 2 {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("nothing to eliminate: session=%s has %d active participants", sessionID, count))
	}

	// Lowest score loses; on a tie the latest joiner goes first. Position
	// counts down from the field size, so the first player out of N gets N.
	const elimStmt = `
UPDATE participants
SET eliminated_at = NOW(), position = $2
WHERE participant_id = (
	SELECT participant_id FROM participants
	WHERE session_id = $1 AND active AND eliminated_at IS NULL
	ORDER BY score ASC, joined_at DESC
	LIMIT 1
)
RETURNING ` + participantColumns + `;`

	loser, err := scanParticipant(tx.QueryRow(ctx, elimStmt, sessionID, count))
	if err != nil {
		return nil, fmt.Errorf("eliminate participant: %w", err)
	}

	elim := &domain.Elimination{
		SessionID:     sessionID,
		Eliminated:    *loser,
		Remaining:     count - 1,
		SessionStatus: domain.StatusActive,
	}

	if elim.Remaining == 1 {
		const winStmt = `
UPDATE participants
SET position = 1
WHERE session_id = $1 AND active AND eliminated_at IS NULL
RETURNING ` + participantColumns + `;`

		winner, err := scanParticipant(tx.QueryRow(ctx, winStmt, sessionID))
		if err != nil {
			return nil, fmt.Errorf("assign winner: %w", err)
		}
		elim.Winner = winner

		const endStmt = `
UPDATE sessions SET status = $2, ended_at = NOW() WHERE session_id = $1;`

		if _, err = tx.Exec(ctx, endStmt, sessionID, domain.StatusCompleted); err != nil {
			return nil, fmt.Errorf("complete session: %w", err)
		}
		elim.SessionStatus = domain.StatusCompleted
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return elim, nil
}
