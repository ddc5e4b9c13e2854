package participant_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/errors"
	"github.com/Laurent-studi/quizlive/internal/event"
	"github.com/Laurent-studi/quizlive/internal/infra/memory"
	"github.com/Laurent-studi/quizlive/internal/participant"
	"github.com/Laurent-studi/quizlive/internal/quiz"
	"github.com/Laurent-studi/quizlive/internal/session"
)

const owner = "owner-1"

type fixture struct {
	sessions     *session.Service
	participants *participant.Service
	store        *memory.Store
	eb           *event.Bus
}

func makeFixture(t *testing.T) *fixture {
	t.Helper()

	loader := quiz.NewStaticLoader()
	loader.Add(domain.Quiz{QuizID: "quiz-1", TimePerQuestion: 30}, []domain.Question{
		{
			QuestionID: "q1", Order: 0, Points: 1000,
			Choices: []domain.Choice{{ChoiceID: "c1", IsCorrect: true}, {ChoiceID: "c2"}},
		},
		{
			QuestionID: "q2", Order: 1, Points: 1000, AllowsMultiple: true,
			Choices: []domain.Choice{
				{ChoiceID: "c1", IsCorrect: true},
				{ChoiceID: "c2", IsCorrect: true},
				{ChoiceID: "c3", IsCorrect: true},
				{ChoiceID: "c4"},
			},
		},
	})

	store := memory.NewStore()
	eb := event.NewBus()

	participants := participant.NewService(participant.Config{
		Store:    store,
		Sessions: store,
		Quizzes:  loader,
		EventBus: eb,
	})

	sessions := session.NewService(session.Config{
		Store:        store,
		Quizzes:      loader,
		Participants: participants,
	})

	return &fixture{sessions: sessions, participants: participants, store: store, eb: eb}
}

func (f *fixture) createSession(t *testing.T, settings domain.SessionSettings) *domain.Session {
	t.Helper()

	ss, err := f.sessions.CreateSession(context.Background(), session.CreateSessionRequest{
		QuizID:   "quiz-1",
		OwnerID:  owner,
		Settings: settings,
	})
	require.NoError(t, err)
	return ss
}

func (f *fixture) start(t *testing.T, sessionID string) {
	t.Helper()

	_, err := f.sessions.StartSession(context.Background(), session.TransitionRequest{
		SessionID: sessionID,
		CallerID:  owner,
	})
	require.NoError(t, err)
}

func TestService_Join(t *testing.T) {
	t.Run("joins a pending session", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})

		p, err := f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   ss.SessionID,
			DisplayName: "alice",
		})
		require.NoError(t, err)
		require.True(t, p.Active)
		require.Zero(t, p.Score)
	})

	t.Run("rejects a duplicate anonymous display name", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})

		_, err := f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   ss.SessionID,
			DisplayName: "alice",
		})
		require.NoError(t, err)

		_, err = f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   ss.SessionID,
			DisplayName: "alice",
		})
		require.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)
	})

	t.Run("rejects a user joining twice", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})

		_, err := f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   ss.SessionID,
			DisplayName: "alice",
			UserID:      "u1",
		})
		require.NoError(t, err)

		_, err = f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   ss.SessionID,
			DisplayName: "alice again",
			UserID:      "u1",
		})
		require.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)
	})

	t.Run("allows the same name in different sessions", func(t *testing.T) {
		f := makeFixture(t)
		ss1 := f.createSession(t, domain.SessionSettings{})
		ss2 := f.createSession(t, domain.SessionSettings{})

		for _, id := range []string{ss1.SessionID, ss2.SessionID} {
			_, err := f.participants.Join(context.Background(), participant.JoinRequest{
				SessionID:   id,
				DisplayName: "alice",
			})
			require.NoError(t, err)
		}
	})

	t.Run("rejoin after leave reactivates the same participant", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})

		p, err := f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   ss.SessionID,
			DisplayName: "alice",
		})
		require.NoError(t, err)

		err = f.participants.Leave(context.Background(), participant.LeaveRequest{
			SessionID:     ss.SessionID,
			ParticipantID: p.ParticipantID,
		})
		require.NoError(t, err)

		back, err := f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   ss.SessionID,
			DisplayName: "alice",
		})
		require.NoError(t, err)
		require.Equal(t, p.ParticipantID, back.ParticipantID, "rejoin keeps the original row")
		require.True(t, back.Active)
	})

	t.Run("honors the max players cap", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{MaxPlayers: 1})

		_, err := f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   ss.SessionID,
			DisplayName: "alice",
		})
		require.NoError(t, err)

		_, err = f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   ss.SessionID,
			DisplayName: "bob",
		})
		require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
	})

	t.Run("rejects joining a completed session", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})

		_, err := f.sessions.CancelSession(context.Background(), session.CancelSessionRequest{
			SessionID: ss.SessionID,
			CallerID:  owner,
		})
		require.NoError(t, err)

		_, err = f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   ss.SessionID,
			DisplayName: "alice",
		})
		require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
	})

	t.Run("rejects an empty display name", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})

		_, err := f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID: ss.SessionID,
		})
		require.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
	})
}

func TestService_SubmitAnswer(t *testing.T) {
	join := func(t *testing.T, f *fixture, sessionID, name string) *domain.Participant {
		t.Helper()
		p, err := f.participants.Join(context.Background(), participant.JoinRequest{
			SessionID:   sessionID,
			DisplayName: name,
		})
		require.NoError(t, err)
		return p
	}

	t.Run("scores and records a correct answer", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})
		p := join(t, f, ss.SessionID, "alice")
		f.start(t, ss.SessionID)

		resp, err := f.participants.SubmitAnswer(context.Background(), participant.SubmitAnswerRequest{
			SessionID:     ss.SessionID,
			ParticipantID: p.ParticipantID,
			QuestionID:    "q1",
			ChoiceIDs:     []string{"c1"},
			ResponseTime:  15,
		})
		require.NoError(t, err)
		require.Equal(t, domain.ClassificationCorrect, resp.Classification)
		require.Equal(t, 500, resp.PointsEarned)
		require.Equal(t, 500, resp.TotalScore)
	})

	t.Run("publishes a score update", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})
		p := join(t, f, ss.SessionID, "alice")
		f.start(t, ss.SessionID)

		var (
			mu     sync.Mutex
			scores []domain.Score
		)
		f.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
			mu.Lock()
			scores = append(scores, e.(domain.EventScoreUpdated).Score)
			mu.Unlock()
			return nil
		})

		_, err := f.participants.SubmitAnswer(context.Background(), participant.SubmitAnswerRequest{
			SessionID:     ss.SessionID,
			ParticipantID: p.ParticipantID,
			QuestionID:    "q1",
			ChoiceIDs:     []string{"c1"},
			ResponseTime:  0,
		})
		require.NoError(t, err)

		f.eb.Stop()
		require.Len(t, scores, 1)
		require.Equal(t, p.ParticipantID, scores[0].ParticipantID)
		require.Equal(t, 1000, scores[0].TotalScore)
	})

	t.Run("rejects a second answer for the same question", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})
		p := join(t, f, ss.SessionID, "alice")
		f.start(t, ss.SessionID)

		submit := func() (*participant.SubmitAnswerResponse, error) {
			return f.participants.SubmitAnswer(context.Background(), participant.SubmitAnswerRequest{
				SessionID:     ss.SessionID,
				ParticipantID: p.ParticipantID,
				QuestionID:    "q1",
				ChoiceIDs:     []string{"c1"},
				ResponseTime:  0,
			})
		}

		first, err := submit()
		require.NoError(t, err)

		_, err = submit()
		require.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)

		total, err := f.participants.ApplyPoints(context.Background(), p.ParticipantID, 0)
		require.NoError(t, err)
		require.Equal(t, first.TotalScore, total, "a rejected resubmission must not change the score")
	})

	t.Run("rejects an answer for a question that is not current", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})
		p := join(t, f, ss.SessionID, "alice")
		f.start(t, ss.SessionID)

		_, err := f.participants.SubmitAnswer(context.Background(), participant.SubmitAnswerRequest{
			SessionID:     ss.SessionID,
			ParticipantID: p.ParticipantID,
			QuestionID:    "q2",
			ChoiceIDs:     []string{"c1"},
			ResponseTime:  0,
		})
		require.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
	})

	t.Run("rejects answers while paused", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})
		p := join(t, f, ss.SessionID, "alice")
		f.start(t, ss.SessionID)

		_, err := f.sessions.PauseSession(context.Background(), session.TransitionRequest{
			SessionID: ss.SessionID,
			CallerID:  owner,
		})
		require.NoError(t, err)

		_, err = f.participants.SubmitAnswer(context.Background(), participant.SubmitAnswerRequest{
			SessionID:     ss.SessionID,
			ParticipantID: p.ParticipantID,
			QuestionID:    "q1",
			ChoiceIDs:     []string{"c1"},
			ResponseTime:  0,
		})
		require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
	})

	t.Run("rejects unknown and duplicated choices", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})
		p := join(t, f, ss.SessionID, "alice")
		f.start(t, ss.SessionID)

		for _, choices := range [][]string{
			{"c9"},
			{"c1", "c1"},
			{"c1", "c2"}, // q1 is single choice
			nil,
		} {
			_, err := f.participants.SubmitAnswer(context.Background(), participant.SubmitAnswerRequest{
				SessionID:     ss.SessionID,
				ParticipantID: p.ParticipantID,
				QuestionID:    "q1",
				ChoiceIDs:     choices,
				ResponseTime:  0,
			})
			require.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
		}
	})

	t.Run("awards partial credit on multi-select questions", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})
		p := join(t, f, ss.SessionID, "alice")
		f.start(t, ss.SessionID)

		_, err := f.sessions.AdvanceSession(context.Background(), session.TransitionRequest{
			SessionID: ss.SessionID,
			CallerID:  owner,
		})
		require.NoError(t, err)

		// 2 of 3 correct with 1 extra at t=12: 600 * 2/3 * 0.75 = 300.
		resp, err := f.participants.SubmitAnswer(context.Background(), participant.SubmitAnswerRequest{
			SessionID:     ss.SessionID,
			ParticipantID: p.ParticipantID,
			QuestionID:    "q2",
			ChoiceIDs:     []string{"c1", "c2", "c4"},
			ResponseTime:  12,
		})
		require.NoError(t, err)
		require.Equal(t, domain.ClassificationPartial, resp.Classification)
		require.Equal(t, 300, resp.PointsEarned)
	})

	t.Run("rejects a negative response time", func(t *testing.T) {
		f := makeFixture(t)

		_, err := f.participants.SubmitAnswer(context.Background(), participant.SubmitAnswerRequest{
			SessionID:     "s1",
			ParticipantID: "p1",
			QuestionID:    "q1",
			ChoiceIDs:     []string{"c1"},
			ResponseTime:  -1,
		})
		require.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
	})

	t.Run("rejects answers from an inactive participant", func(t *testing.T) {
		f := makeFixture(t)
		ss := f.createSession(t, domain.SessionSettings{})
		p := join(t, f, ss.SessionID, "alice")
		join(t, f, ss.SessionID, "bob")
		f.start(t, ss.SessionID)

		err := f.participants.Leave(context.Background(), participant.LeaveRequest{
			SessionID:     ss.SessionID,
			ParticipantID: p.ParticipantID,
		})
		require.NoError(t, err)

		_, err = f.participants.SubmitAnswer(context.Background(), participant.SubmitAnswerRequest{
			SessionID:     ss.SessionID,
			ParticipantID: p.ParticipantID,
			QuestionID:    "q1",
			ChoiceIDs:     []string{"c1"},
			ResponseTime:  0,
		})
		require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
	})
}

func TestService_ApplyPoints(t *testing.T) {
	f := makeFixture(t)
	ss := f.createSession(t, domain.SessionSettings{})

	p, err := f.participants.Join(context.Background(), participant.JoinRequest{
		SessionID:   ss.SessionID,
		DisplayName: "alice",
	})
	require.NoError(t, err)

	total, err := f.participants.ApplyPoints(context.Background(), p.ParticipantID, 300)
	require.NoError(t, err)
	require.Equal(t, 300, total)

	// A deduction can never push the score below zero.
	total, err = f.participants.ApplyPoints(context.Background(), p.ParticipantID, -500)
	require.NoError(t, err)
	require.Equal(t, 0, total)
}
