// Package battle implements the Battle Royale elimination scheduler: each
// tick removes the lowest-scoring active participant until one remains.
// The cadence is owned by an external trigger calling the eliminate
// endpoint; nothing here runs on a timer.
package battle

import (
	"context"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/errors"
	"github.com/Laurent-studi/quizlive/internal/event"
)

// Store executes one elimination as a single atomic operation under the
// session's exclusive guard: select the active participant with the lowest
// score (ties broken by latest join), stamp eliminated_at and position, and
// complete the session with the survivor at position 1 when only one
// participant is left afterwards. Fewer than two active participants fail
// with CodeFailedPrecondition.
type Store interface {
	EliminateLowest(ctx context.Context, sessionID string) (*domain.Elimination, error)
}

type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
}

type Config struct {
	Store    Store
	Sessions Sessions
	EventBus *event.Bus
}

type Service struct {
	store    Store
	sessions Sessions
	eb       *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		store:    c.Store,
		sessions: c.Sessions,
		eb:       c.EventBus,
	}
}

type TickRequest struct {
	SessionID string
	CallerID  string
}

// Tick eliminates the current lowest scorer. A tick after the session has
// finished is an error, never a double elimination.
func (s *Service) Tick(ctx context.Context, req TickRequest) (*domain.Elimination, error) {
	ss, err := s.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if ss.Mode != domain.ModeBattleRoyale {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session %s is not a battle royale session", ss.SessionID))
	}
	if req.CallerID != ss.OwnerID {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("caller %q does not own session %s", req.CallerID, ss.SessionID))
	}

	elim, err := s.store.EliminateLowest(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventParticipantEliminated{Elimination: *elim})
	if elim.SessionStatus == domain.StatusCompleted {
		finished := *ss
		finished.Status = elim.SessionStatus
		s.publish(ctx, domain.EventSessionCompleted{Session: finished})
	}

	return elim, nil
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	if s.eb != nil {
		s.eb.Publish(ctx, e)
	}
}
