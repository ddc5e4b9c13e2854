package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Laurent-studi/quizlive/internal/api"
	"github.com/Laurent-studi/quizlive/internal/battle"
	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/event"
	"github.com/Laurent-studi/quizlive/internal/infra/memory"
	"github.com/Laurent-studi/quizlive/internal/leaderboard"
	"github.com/Laurent-studi/quizlive/internal/participant"
	"github.com/Laurent-studi/quizlive/internal/quiz"
	"github.com/Laurent-studi/quizlive/internal/session"
)

const owner = "owner-1"

type fixture struct {
	router *gin.Engine
	eb     *event.Bus
}

func makeFixture(t *testing.T) *fixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	loader := quiz.NewStaticLoader()
	loader.Add(domain.Quiz{QuizID: "quiz-1", TimePerQuestion: 30}, []domain.Question{
		{
			QuestionID: "q1", Order: 0, Points: 1000,
			Choices: []domain.Choice{{ChoiceID: "c1", IsCorrect: true}, {ChoiceID: "c2"}},
		},
	})

	store := memory.NewStore()
	eb := event.NewBus()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})

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
		EventBus:     eb,
	})
	leaderboards := leaderboard.NewService(leaderboard.Config{
		EventBus: eb,
		Store:    store,
		Sessions: store,
		Redis:    rc,
		Prefix:   "test",
	})
	battles := battle.NewService(battle.Config{
		Store:    store,
		Sessions: store,
		EventBus: eb,
	})

	e := gin.New()
	api.New(api.Config{
		Router:       e,
		EventBus:     eb,
		Session:      sessions,
		Participant:  participants,
		Leaderboard:  leaderboards,
		Battle:       battles,
		Redis:        rc,
		PubsubPrefix: "test",
	})

	t.Cleanup(eb.Stop)

	return &fixture{router: e, eb: eb}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (f *fixture) createSession(t *testing.T) api.SessionView {
	t.Helper()

	w := f.do(t, http.MethodPost, "/v1/sessions", map[string]any{
		"quizId":  "quiz-1",
		"ownerId": owner,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[api.SessionView](t, w)
}

func (f *fixture) join(t *testing.T, sessionID, name string) api.ParticipantView {
	t.Helper()

	w := f.do(t, http.MethodPost, "/v1/sessions/"+sessionID+"/join", map[string]any{
		"displayName": name,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[api.ParticipantView](t, w)
}

func TestAPI_SessionLifecycle(t *testing.T) {
	f := makeFixture(t)

	ss := f.createSession(t)
	require.Equal(t, string(domain.StatusPending), string(ss.Status))
	require.Len(t, ss.JoinCode, session.JoinCodeLength)

	t.Run("resolves the join code", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/v1/sessions/code/"+ss.JoinCode, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, ss.SessionID, decode[api.SessionView](t, w).SessionID)
	})

	p := f.join(t, ss.SessionID, "alice")
	require.True(t, p.Active)

	t.Run("start returns the first question without correctness", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/sessions/"+ss.SessionID+"/start", map[string]any{
			"callerId": owner,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Session  api.SessionView  `json:"session"`
			Question api.QuestionView `json:"question"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, string(domain.StatusActive), string(resp.Session.Status))
		require.Equal(t, "q1", resp.Question.QuestionID)
		for _, c := range resp.Question.Choices {
			require.False(t, c.IsCorrect)
		}
	})

	t.Run("submits an answer", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/sessions/"+ss.SessionID+"/answers", map[string]any{
			"participantId":       p.ParticipantID,
			"questionId":          "q1",
			"choiceIds":           []string{"c1"},
			"responseTimeSeconds": 15,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Classification string `json:"classification"`
			PointsEarned   int    `json:"pointsEarned"`
			TotalScore     int    `json:"totalScore"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, string(domain.ClassificationCorrect), resp.Classification)
		require.Equal(t, 500, resp.PointsEarned)
	})

	t.Run("advancing the last question completes with a final leaderboard", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/sessions/"+ss.SessionID+"/advance", map[string]any{
			"callerId": owner,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Session     api.SessionView     `json:"session"`
			Leaderboard api.LeaderboardView `json:"leaderboard"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, string(domain.StatusCompleted), string(resp.Session.Status))
		require.True(t, resp.Leaderboard.Final)
		require.Len(t, resp.Leaderboard.Entries, 1)
		require.Equal(t, 500, resp.Leaderboard.Entries[0].Score)
	})
}

func TestAPI_ErrorMapping(t *testing.T) {
	f := makeFixture(t)
	ss := f.createSession(t)
	f.join(t, ss.SessionID, "alice")

	type errBody struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	t.Run("unknown session is 404", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/v1/sessions/nope", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		require.NotEmpty(t, decode[errBody](t, w).Error.Message)
	})

	t.Run("duplicate join is 409", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/sessions/"+ss.SessionID+"/join", map[string]any{
			"displayName": "alice",
		})
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid transition is 412", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/sessions/"+ss.SessionID+"/advance", map[string]any{
			"callerId": owner,
		})
		require.Equal(t, http.StatusPreconditionFailed, w.Code)
	})

	t.Run("non-owner transition is 403", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/sessions/"+ss.SessionID+"/start", map[string]any{
			"callerId": "intruder",
		})
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing body fields are 400", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/sessions", map[string]any{
			"quizId": "quiz-1",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("eliminate on a standard session is 412", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/v1/battle-royale/"+ss.SessionID+"/eliminate", map[string]any{
			"callerId": owner,
		})
		require.Equal(t, http.StatusPreconditionFailed, w.Code)
	})
}
