package api

import (
	"time"

	"github.com/Laurent-studi/quizlive/internal/domain"
)

// JSON projections of the domain types. Wire names are camelCase and stable;
// the domain structs stay free of transport tags.

type SessionView struct {
	SessionID            string                 `json:"sessionId"`
	QuizID               string                 `json:"quizId"`
	OwnerID              string                 `json:"ownerId"`
	JoinCode             string                 `json:"joinCode"`
	Status               domain.SessionStatus   `json:"status"`
	Mode                 domain.SessionMode     `json:"mode"`
	CurrentQuestionIndex int                    `json:"currentQuestionIndex"`
	QuestionCount        int                    `json:"questionCount"`
	Settings             domain.SessionSettings `json:"settings"`
	CreatedAt            time.Time              `json:"createdAt"`
	StartedAt            *time.Time             `json:"startedAt,omitempty"`
	EndedAt              *time.Time             `json:"endedAt,omitempty"`
}

func sessionView(s *domain.Session) SessionView {
	return SessionView{
		SessionID:            s.SessionID,
		QuizID:               s.QuizID,
		OwnerID:              s.OwnerID,
		JoinCode:             s.JoinCode,
		Status:               s.Status,
		Mode:                 s.Mode,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		QuestionCount:        s.QuestionCount,
		Settings:             s.Settings,
		CreatedAt:            s.CreatedAt,
		StartedAt:            s.StartedAt,
		EndedAt:              s.EndedAt,
	}
}

type ParticipantView struct {
	ParticipantID string     `json:"participantId"`
	SessionID     string     `json:"sessionId"`
	UserID        string     `json:"userId,omitempty"`
	DisplayName   string     `json:"displayName"`
	Score         int        `json:"score"`
	Active        bool       `json:"active"`
	EliminatedAt  *time.Time `json:"eliminatedAt,omitempty"`
	Position      int        `json:"position,omitempty"`
	JoinedAt      time.Time  `json:"joinedAt"`
}

func participantView(p domain.Participant) ParticipantView {
	return ParticipantView{
		ParticipantID: p.ParticipantID,
		SessionID:     p.SessionID,
		UserID:        p.UserID,
		DisplayName:   p.DisplayName,
		Score:         p.Score,
		Active:        p.Active,
		EliminatedAt:  p.EliminatedAt,
		Position:      p.Position,
		JoinedAt:      p.JoinedAt,
	}
}

type QuestionView struct {
	QuestionID     string       `json:"questionId"`
	Order          int          `json:"order"`
	Points         int          `json:"points"`
	AllowsMultiple bool         `json:"allowsMultiple"`
	Choices        []ChoiceView `json:"choices"`
}

type ChoiceView struct {
	ChoiceID  string `json:"choiceId"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

func questionView(q domain.Question) QuestionView {
	v := QuestionView{
		QuestionID:     q.QuestionID,
		Order:          q.Order,
		Points:         q.Points,
		AllowsMultiple: q.AllowsMultiple,
		Choices:        make([]ChoiceView, 0, len(q.Choices)),
	}
	for _, c := range q.Choices {
		v.Choices = append(v.Choices, ChoiceView{ChoiceID: c.ChoiceID, Text: c.Text, IsCorrect: c.IsCorrect})
	}
	return v
}

type LeaderboardView struct {
	SessionID string                 `json:"sessionId"`
	Final     bool                   `json:"final"`
	Entries   []LeaderboardEntryView `json:"entries"`
}

type LeaderboardEntryView struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
}

func leaderboardView(lb *domain.Leaderboard) LeaderboardView {
	v := LeaderboardView{
		SessionID: lb.SessionID,
		Final:     lb.Final,
		Entries:   make([]LeaderboardEntryView, 0, len(lb.Entries)),
	}
	for _, e := range lb.Entries {
		v.Entries = append(v.Entries, LeaderboardEntryView{
			ParticipantID: e.ParticipantID,
			DisplayName:   e.DisplayName,
			Score:         e.Score,
			Rank:          e.Rank,
		})
	}
	return v
}
