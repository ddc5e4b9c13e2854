// Package session implements the coordinator that drives a live session's
// lifecycle: create, start, advance, pause, resume, cancel. It is the only
// writer of session rows and the single source of truth for the current
// question cursor.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/errors"
	"github.com/Laurent-studi/quizlive/internal/event"
	"github.com/Laurent-studi/quizlive/internal/quiz"
)

// maxCodeAttempts bounds retries when a freshly generated join code collides
// with a live session's code.
const maxCodeAttempts = 5

// Store persists sessions. UpdateSession runs fn under an exclusive
// per-session guard (a row lock in the Postgres implementation) so two
// concurrent transitions cannot interleave.
type Store interface {
	InsertSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetSessionByCode(ctx context.Context, code string) (*domain.Session, error)
	UpdateSession(ctx context.Context, sessionID string, fn func(*domain.Session) error) (*domain.Session, error)
}

// Participants is the slice of the registry the coordinator needs.
type Participants interface {
	CountActive(ctx context.Context, sessionID string) (int, error)
	VoidAnswers(ctx context.Context, sessionID string) error
}

type Config struct {
	Store        Store
	Quizzes      quiz.Loader
	Participants Participants
	EventBus     *event.Bus
	Now          func() time.Time
}

type Service struct {
	store        Store
	quizzes      quiz.Loader
	participants Participants
	eb           *event.Bus
	now          func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:        c.Store,
		quizzes:      c.Quizzes,
		participants: c.Participants,
		eb:           c.EventBus,
		now:          c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type CreateSessionRequest struct {
	QuizID   string
	OwnerID  string
	Mode     domain.SessionMode
	Settings domain.SessionSettings
}

// CreateSession opens a new session in pending state with a fresh join code.
// A quiz with zero questions is not presentable and is rejected.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	if req.OwnerID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("owner id is required"))
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeStandard
	}
	if !mode.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown session mode %q", req.Mode))
	}

	q, err := s.quizzes.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}
	if q.QuestionCount == 0 {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz is not presentable: quiz=%s has no questions", req.QuizID))
	}

	settings := req.Settings
	if settings.TimePerQuestion <= 0 {
		settings.TimePerQuestion = q.TimePerQuestion
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	ss := &domain.Session{
		SessionID:     id.String(),
		QuizID:        q.QuizID,
		OwnerID:       req.OwnerID,
		Status:        domain.StatusPending,
		Mode:          mode,
		QuestionCount: q.QuestionCount,
		Settings:      settings,
		CreatedAt:     s.now(),
	}

	// Codes are unique among non-terminal sessions; on a collision we mint a
	// new one and retry rather than failing the create.
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		ss.JoinCode, err = NewJoinCode()
		if err != nil {
			return nil, errors.Internal(err)
		}

		err = s.store.InsertSession(ctx, ss)
		if err == nil {
			return ss, nil
		}
		if errors.Convert(err).Code != errors.CodeAlreadyExists {
			return nil, err
		}
	}

	return nil, errors.New(errors.CodeInternal,
		errors.WithMessagef("could not allocate a unique join code after %d attempts", maxCodeAttempts))
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// ResolveCode maps a human-entered join code to its live session.
func (s *Service) ResolveCode(ctx context.Context, code string) (*domain.Session, error) {
	return s.store.GetSessionByCode(ctx, code)
}

type TransitionRequest struct {
	SessionID string
	CallerID  string
}

// StartSession transitions pending -> active, sets the cursor to the first
// question and records the start time. Battle Royale needs at least two
// active participants, every other mode one.
func (s *Service) StartSession(ctx context.Context, req TransitionRequest) (*domain.Session, error) {
	count, err := s.participants.CountActive(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	ss, err := s.store.UpdateSession(ctx, req.SessionID, func(ss *domain.Session) error {
		if err := requireOwner(ss, req.CallerID); err != nil {
			return err
		}
		if ss.Status != domain.StatusPending {
			return invalidTransition("start", ss.Status)
		}

		min := 1
		if ss.Mode == domain.ModeBattleRoyale {
			min = 2
		}
		if count < min {
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("cannot start session with %d active participants, need at least %d", count, min))
		}

		now := s.now()
		ss.Status = domain.StatusActive
		ss.CurrentQuestionIndex = 0
		ss.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventSessionStarted{Session: *ss})
	return ss, nil
}

// AdvanceSession moves the cursor to the next question, or completes the
// session when the cursor already sits on the last question. Not idempotent:
// callers must serialize, which the store guard enforces per session.
func (s *Service) AdvanceSession(ctx context.Context, req TransitionRequest) (*domain.Session, error) {
	ss, err := s.store.UpdateSession(ctx, req.SessionID, func(ss *domain.Session) error {
		if err := requireOwner(ss, req.CallerID); err != nil {
			return err
		}
		if ss.Status != domain.StatusActive {
			return invalidTransition("advance", ss.Status)
		}

		if ss.CurrentQuestionIndex >= ss.QuestionCount-1 {
			now := s.now()
			ss.Status = domain.StatusCompleted
			ss.EndedAt = &now
			return nil
		}

		ss.CurrentQuestionIndex++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if ss.Status == domain.StatusCompleted {
		s.publish(ctx, domain.EventSessionCompleted{Session: *ss})
	}
	return ss, nil
}

// PauseSession transitions active -> paused.
func (s *Service) PauseSession(ctx context.Context, req TransitionRequest) (*domain.Session, error) {
	return s.store.UpdateSession(ctx, req.SessionID, func(ss *domain.Session) error {
		if err := requireOwner(ss, req.CallerID); err != nil {
			return err
		}
		if ss.Status != domain.StatusActive {
			return invalidTransition("pause", ss.Status)
		}
		ss.Status = domain.StatusPaused
		return nil
	})
}

// ResumeSession transitions paused -> active.
func (s *Service) ResumeSession(ctx context.Context, req TransitionRequest) (*domain.Session, error) {
	return s.store.UpdateSession(ctx, req.SessionID, func(ss *domain.Session) error {
		if err := requireOwner(ss, req.CallerID); err != nil {
			return err
		}
		if ss.Status != domain.StatusPaused {
			return invalidTransition("resume", ss.Status)
		}
		ss.Status = domain.StatusActive
		return nil
	})
}

type CancelSessionRequest struct {
	SessionID string
	CallerID  string
	// Force cancels a running session administratively; its submitted
	// answers are voided for leaderboard purposes, never deleted.
	Force bool
}

func (s *Service) CancelSession(ctx context.Context, req CancelSessionRequest) (*domain.Session, error) {
	ss, err := s.store.UpdateSession(ctx, req.SessionID, func(ss *domain.Session) error {
		if err := requireOwner(ss, req.CallerID); err != nil {
			return err
		}
		switch {
		case ss.Status == domain.StatusPending:
		case req.Force && !ss.Status.Terminal():
		default:
			return invalidTransition("cancel", ss.Status)
		}

		now := s.now()
		ss.Status = domain.StatusCancelled
		ss.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if req.Force {
		if err := s.participants.VoidAnswers(ctx, req.SessionID); err != nil {
			return nil, err
		}
	}
	return ss, nil
}

type CurrentQuestionRequest struct {
	SessionID string
	CallerID  string
}

// CurrentQuestion returns the question at the cursor. Correctness flags are
// stripped unless the caller owns the session.
func (s *Service) CurrentQuestion(ctx context.Context, req CurrentQuestionRequest) (domain.Question, error) {
	ss, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return domain.Question{}, err
	}
	if ss.Status != domain.StatusActive {
		return domain.Question{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no current question: session=%s status=%s", ss.SessionID, ss.Status))
	}

	q, err := s.quizzes.QuestionAt(ctx, ss.QuizID, ss.CurrentQuestionIndex)
	if err != nil {
		return domain.Question{}, err
	}

	if req.CallerID != ss.OwnerID {
		q = Redact(q)
	}
	return q, nil
}

// Redact strips correctness flags from a question's choices.
func Redact(q domain.Question) domain.Question {
	choices := make([]domain.Choice, len(q.Choices))
	for i, c := range q.Choices {
		c.IsCorrect = false
		choices[i] = c
	}
	q.Choices = choices
	return q
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	if s.eb != nil {
		s.eb.Publish(ctx, e)
	}
}

func requireOwner(ss *domain.Session, callerID string) error {
	if callerID != ss.OwnerID {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("caller %q does not own session %s", callerID, ss.SessionID))
	}
	return nil
}

func invalidTransition(op string, current domain.SessionStatus) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("cannot %s session in status %q", op, current))
}
