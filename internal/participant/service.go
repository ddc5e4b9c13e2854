// Package participant implements the registry of players inside a session:
// joining, leaving, score application and answer submission bookkeeping.
package participant

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/errors"
	"github.com/Laurent-studi/quizlive/internal/event"
	"github.com/Laurent-studi/quizlive/internal/quiz"
	"github.com/Laurent-studi/quizlive/internal/scoring"
)

// Store persists participants and their submitted answers.
//
// RecordAnswer inserts the answer row and applies its points to the
// participant's score in one atomic write; a duplicate (participant,
// question) pair fails with CodeAlreadyExists and leaves the score
// untouched. ApplyPoints never lets a score drop below zero.
type Store interface {
	InsertParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipant(ctx context.Context, participantID string) (*domain.Participant, error)
	FindByIdentity(ctx context.Context, sessionID string, id domain.Identity) (*domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	CountActive(ctx context.Context, sessionID string) (int, error)
	SetActive(ctx context.Context, participantID string, active bool) error
	ApplyPoints(ctx context.Context, participantID string, delta int) (int, error)
	RecordAnswer(ctx context.Context, a *domain.SubmittedAnswer, delta int) (int, error)
	VoidAnswers(ctx context.Context, sessionID string) error
}

// Sessions is the slice of the coordinator the registry needs.
type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
}

type Config struct {
	Store    Store
	Sessions Sessions
	Quizzes  quiz.Loader
	EventBus *event.Bus
	Now      func() time.Time
}

type Service struct {
	store    Store
	sessions Sessions
	quizzes  quiz.Loader
	eb       *event.Bus
	now      func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:    c.Store,
		sessions: c.Sessions,
		quizzes:  c.Quizzes,
		eb:       c.EventBus,
		now:      c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type JoinRequest struct {
	SessionID   string
	DisplayName string
	// UserID is empty for anonymous joins.
	UserID string
}

// Join adds a player to a pending or active session. Rejoining with the same
// identity after a disconnect reactivates the existing row instead of
// creating a duplicate; a second join while active is a conflict.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*domain.Participant, error) {
	if req.DisplayName == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("display name is required"))
	}

	ss, err := s.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if ss.Status != domain.StatusPending && ss.Status != domain.StatusActive {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is not joinable: session=%s status=%s", ss.SessionID, ss.Status))
	}

	identity := domain.Identity{UserID: req.UserID, DisplayName: req.DisplayName}

	existing, err := s.store.FindByIdentity(ctx, req.SessionID, identity)
	switch {
	case err == nil:
		if existing.Eliminated() {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("participant was eliminated from session %s", req.SessionID))
		}
		if existing.Active {
			return nil, duplicateParticipant(req.SessionID, identity)
		}
		if err := s.store.SetActive(ctx, existing.ParticipantID, true); err != nil {
			return nil, err
		}
		existing.Active = true
		return existing, nil

	case errors.Convert(err).Code != errors.CodeNotFound:
		return nil, err
	}

	if max := ss.Settings.MaxPlayers; max > 0 {
		count, err := s.store.CountActive(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if count >= max {
			return nil, errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("session is full: session=%s max_players=%d", req.SessionID, max))
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	p := &domain.Participant{
		ParticipantID: id.String(),
		SessionID:     req.SessionID,
		UserID:        req.UserID,
		DisplayName:   req.DisplayName,
		Active:        true,
		JoinedAt:      s.now(),
	}

	if err := s.store.InsertParticipant(ctx, p); err != nil {
		// A concurrent join with the same identity won the race.
		if errors.Convert(err).Code == errors.CodeAlreadyExists {
			return nil, duplicateParticipant(req.SessionID, identity)
		}
		return nil, err
	}

	return p, nil
}

type LeaveRequest struct {
	SessionID     string
	ParticipantID string
}

// Leave marks the participant inactive. Score and answer history survive so
// a later rejoin picks up where it left off.
func (s *Service) Leave(ctx context.Context, req LeaveRequest) error {
	p, err := s.store.GetParticipant(ctx, req.ParticipantID)
	if err != nil {
		return err
	}
	if p.SessionID != req.SessionID {
		return participantNotFound(req.ParticipantID)
	}
	return s.store.SetActive(ctx, p.ParticipantID, false)
}

// ApplyPoints atomically adds delta to a participant's score. The store
// clamps the result at zero.
func (s *Service) ApplyPoints(ctx context.Context, participantID string, delta int) (int, error) {
	return s.store.ApplyPoints(ctx, participantID, delta)
}

// CountActive reports how many non-eliminated active participants a session has.
func (s *Service) CountActive(ctx context.Context, sessionID string) (int, error) {
	return s.store.CountActive(ctx, sessionID)
}

// VoidAnswers flags a session's submitted answers as void for leaderboard
// purposes; rows are never deleted.
func (s *Service) VoidAnswers(ctx context.Context, sessionID string) error {
	return s.store.VoidAnswers(ctx, sessionID)
}

// ListParticipants returns every participant of a session, joined order.
func (s *Service) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	return s.store.ListParticipants(ctx, sessionID)
}

type SubmitAnswerRequest struct {
	SessionID     string
	ParticipantID string
	QuestionID    string
	ChoiceIDs     []string
	ResponseTime  float64
}

type SubmitAnswerResponse struct {
	Classification domain.Classification
	PointsEarned   int
	TotalScore     int
}

// SubmitAnswer validates, scores and records one answer for the session's
// current question. At most one answer exists per (participant, question);
// a resubmission is rejected and the score is unchanged.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if req.ResponseTime < 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("response time cannot be negative"))
	}
	if len(req.ChoiceIDs) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("at least one choice is required"))
	}

	ss, err := s.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if ss.Status != domain.StatusActive {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is not accepting answers: session=%s status=%s", ss.SessionID, ss.Status))
	}

	p, err := s.store.GetParticipant(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}
	if p.SessionID != req.SessionID {
		return nil, participantNotFound(req.ParticipantID)
	}
	if p.Eliminated() {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("participant %s has been eliminated", p.ParticipantID))
	}
	if !p.Active {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("participant %s is not active", p.ParticipantID))
	}

	q, err := s.quizzes.QuestionAt(ctx, ss.QuizID, ss.CurrentQuestionIndex)
	if err != nil {
		return nil, err
	}
	if q.QuestionID != req.QuestionID {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %s is not the current question of session %s", req.QuestionID, ss.SessionID))
	}
	if err := validateChoices(q, req.ChoiceIDs); err != nil {
		return nil, err
	}

	res := scoring.ForMode(ss.Mode, ss.Settings).Score(q, req.ChoiceIDs, req.ResponseTime)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	answer := &domain.SubmittedAnswer{
		AnswerID:       id.String(),
		ParticipantID:  p.ParticipantID,
		QuestionID:     q.QuestionID,
		ChoiceIDs:      req.ChoiceIDs,
		ResponseTime:   req.ResponseTime,
		Classification: res.Classification,
		PointsEarned:   res.Points,
		CreatedAt:      s.now(),
	}

	total, err := s.store.RecordAnswer(ctx, answer, res.Points)
	if err != nil {
		if errors.Convert(err).Code == errors.CodeAlreadyExists {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("answer already submitted: participant=%s question=%s", p.ParticipantID, q.QuestionID))
		}
		return nil, err
	}

	s.publish(ctx, domain.EventScoreUpdated{Score: domain.Score{
		SessionID:     ss.SessionID,
		ParticipantID: p.ParticipantID,
		DisplayName:   p.DisplayName,
		TotalScore:    total,
		UpdateTime:    answer.CreatedAt,
	}})

	return &SubmitAnswerResponse{
		Classification: res.Classification,
		PointsEarned:   res.Points,
		TotalScore:     total,
	}, nil
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	if s.eb != nil {
		s.eb.Publish(ctx, e)
	}
}

func validateChoices(q domain.Question, choiceIDs []string) error {
	known := make(map[string]struct{}, len(q.Choices))
	for _, c := range q.Choices {
		known[c.ChoiceID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(choiceIDs))
	for _, id := range choiceIDs {
		if _, ok := known[id]; !ok {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("choice %s does not belong to question %s", id, q.QuestionID))
		}
		if _, ok := seen[id]; ok {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("choice %s selected twice", id))
		}
		seen[id] = struct{}{}
	}

	if !q.AllowsMultiple && len(choiceIDs) > 1 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %s accepts a single choice", q.QuestionID))
	}
	return nil
}

func duplicateParticipant(sessionID string, id domain.Identity) error {
	if id.Anonymous() {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("display name %q is already taken in session %s", id.DisplayName, sessionID))
	}
	return errors.New(errors.CodeAlreadyExists,
		errors.WithMessagef("user %s already joined session %s", id.UserID, sessionID))
}

func participantNotFound(participantID string) error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("participant not found: participant=%s", participantID))
}
