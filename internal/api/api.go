// Package api exposes the JSON HTTP surface of the live engine and fans
// session events out to Redis pub/sub and websocket subscribers.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Laurent-studi/quizlive/internal/battle"
	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/errors"
	"github.com/Laurent-studi/quizlive/internal/event"
	"github.com/Laurent-studi/quizlive/internal/leaderboard"
	"github.com/Laurent-studi/quizlive/internal/participant"
	"github.com/Laurent-studi/quizlive/internal/session"
	"github.com/Laurent-studi/quizlive/internal/telemetry"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Session      *session.Service
	Participant  *participant.Service
	Leaderboard  *leaderboard.Service
	Battle       *battle.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	sessions     *session.Service
	participants *participant.Service
	leaderboards *leaderboard.Service
	battles      *battle.Service

	hub    *hub
	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		sessions:     c.Session,
		participants: c.Participant,
		leaderboards: c.Leaderboard,
		battles:      c.Battle,
		hub:          newHub(),
		redis:        c.Redis,
		prefix:       c.PubsubPrefix,
	}

	v1 := c.Router.Group("/v1")
	{
		v1.POST("/sessions", a.createSession)
		v1.GET("/sessions/:id", a.getSession)
		v1.GET("/sessions/code/:code", a.resolveCode)
		v1.POST("/sessions/:id/join", a.join)
		v1.POST("/sessions/:id/leave", a.leave)
		v1.POST("/sessions/:id/start", a.start)
		v1.POST("/sessions/:id/advance", a.advance)
		v1.POST("/sessions/:id/pause", a.pause)
		v1.POST("/sessions/:id/resume", a.resume)
		v1.POST("/sessions/:id/cancel", a.cancel)
		v1.GET("/sessions/:id/question", a.currentQuestion)
		v1.POST("/sessions/:id/answers", a.submitAnswer)
		v1.GET("/sessions/:id/leaderboard", a.getLeaderboard)
		v1.GET("/sessions/:id/stream", a.stream)
		v1.POST("/battle-royale/:id/eliminate", a.eliminate)
	}

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.onLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameParticipantEliminated, func(ctx context.Context, e event.Event) error {
		a.onParticipantEliminated(ctx, e.(domain.EventParticipantEliminated))
		return nil
	})
	c.EventBus.Subscribe(domain.EventNameSessionCompleted, func(ctx context.Context, e event.Event) error {
		a.onSessionCompleted(ctx, e.(domain.EventSessionCompleted))
		return nil
	})

	return a
}

type createSessionRequest struct {
	QuizID   string                 `json:"quizId" binding:"required"`
	OwnerID  string                 `json:"ownerId" binding:"required"`
	Mode     domain.SessionMode     `json:"mode"`
	Settings domain.SessionSettings `json:"settings"`
}

func (a *API) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ss, err := a.sessions.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		QuizID:   req.QuizID,
		OwnerID:  req.OwnerID,
		Mode:     req.Mode,
		Settings: req.Settings,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	telemetry.SessionsCreated.WithLabelValues(string(ss.Mode)).Inc()
	c.JSON(http.StatusCreated, sessionView(ss))
}

func (a *API) getSession(c *gin.Context) {
	ss, err := a.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(ss))
}

func (a *API) resolveCode(c *gin.Context) {
	ss, err := a.sessions.ResolveCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(ss))
}

type joinRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
	UserID      string `json:"userId"`
}

func (a *API) join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	p, err := a.participants.Join(c.Request.Context(), participant.JoinRequest{
		SessionID:   c.Param("id"),
		DisplayName: req.DisplayName,
		UserID:      req.UserID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, participantView(*p))
}

type leaveRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

func (a *API) leave(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	err := a.participants.Leave(c.Request.Context(), participant.LeaveRequest{
		SessionID:     c.Param("id"),
		ParticipantID: req.ParticipantID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type transitionRequest struct {
	CallerID string `json:"callerId" binding:"required"`
}

func (a *API) start(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ss, err := a.sessions.StartSession(c.Request.Context(), session.TransitionRequest{
		SessionID: c.Param("id"),
		CallerID:  req.CallerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	q, err := a.sessions.CurrentQuestion(c.Request.Context(), session.CurrentQuestionRequest{
		SessionID: ss.SessionID,
		CallerID:  req.CallerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// The start response always hides correctness, even from the owner;
	// presenters fetch the question endpoint for the annotated view.
	c.JSON(http.StatusOK, gin.H{
		"session":  sessionView(ss),
		"question": questionView(session.Redact(q)),
	})
}

func (a *API) advance(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ss, err := a.sessions.AdvanceSession(c.Request.Context(), session.TransitionRequest{
		SessionID: c.Param("id"),
		CallerID:  req.CallerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if ss.Status == domain.StatusCompleted {
		lb, err := a.leaderboards.Rank(c.Request.Context(), leaderboard.RankRequest{SessionID: ss.SessionID})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session":     sessionView(ss),
			"leaderboard": leaderboardView(lb),
		})
		return
	}

	q, err := a.sessions.CurrentQuestion(c.Request.Context(), session.CurrentQuestionRequest{
		SessionID: ss.SessionID,
		CallerID:  req.CallerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":  sessionView(ss),
		"question": questionView(session.Redact(q)),
	})
}

func (a *API) pause(c *gin.Context) {
	a.transition(c, a.sessions.PauseSession)
}

func (a *API) resume(c *gin.Context) {
	a.transition(c, a.sessions.ResumeSession)
}

func (a *API) transition(c *gin.Context, op func(context.Context, session.TransitionRequest) (*domain.Session, error)) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ss, err := op(c.Request.Context(), session.TransitionRequest{
		SessionID: c.Param("id"),
		CallerID:  req.CallerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(ss))
}

type cancelRequest struct {
	CallerID string `json:"callerId" binding:"required"`
	Force    bool   `json:"force"`
}

func (a *API) cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ss, err := a.sessions.CancelSession(c.Request.Context(), session.CancelSessionRequest{
		SessionID: c.Param("id"),
		CallerID:  req.CallerID,
		Force:     req.Force,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(ss))
}

func (a *API) currentQuestion(c *gin.Context) {
	q, err := a.sessions.CurrentQuestion(c.Request.Context(), session.CurrentQuestionRequest{
		SessionID: c.Param("id"),
		CallerID:  c.Query("callerId"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, questionView(q))
}

type submitAnswerRequest struct {
	ParticipantID       string   `json:"participantId" binding:"required"`
	QuestionID          string   `json:"questionId" binding:"required"`
	ChoiceIDs           []string `json:"choiceIds" binding:"required"`
	ResponseTimeSeconds float64  `json:"responseTimeSeconds"`
}

func (a *API) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.participants.SubmitAnswer(c.Request.Context(), participant.SubmitAnswerRequest{
		SessionID:     c.Param("id"),
		ParticipantID: req.ParticipantID,
		QuestionID:    req.QuestionID,
		ChoiceIDs:     req.ChoiceIDs,
		ResponseTime:  req.ResponseTimeSeconds,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	telemetry.AnswersScored.WithLabelValues(string(resp.Classification)).Inc()
	c.JSON(http.StatusOK, gin.H{
		"classification": resp.Classification,
		"pointsEarned":   resp.PointsEarned,
		"totalScore":     resp.TotalScore,
	})
}

func (a *API) getLeaderboard(c *gin.Context) {
	lb, err := a.leaderboards.Rank(c.Request.Context(), leaderboard.RankRequest{SessionID: c.Param("id")})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, leaderboardView(lb))
}

func (a *API) eliminate(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	elim, err := a.battles.Tick(c.Request.Context(), battle.TickRequest{
		SessionID: c.Param("id"),
		CallerID:  req.CallerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	telemetry.Eliminations.Inc()

	resp := gin.H{
		"eliminatedParticipant": participantView(elim.Eliminated),
		"sessionStatus":         elim.SessionStatus,
		"remainingCount":        elim.Remaining,
	}
	if elim.Winner != nil {
		resp["winner"] = participantView(*elim.Winner)
	}
	c.JSON(http.StatusOK, resp)
}

func respondError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.JSON(e.HTTPStatusCode(), gin.H{"error": e})
}
