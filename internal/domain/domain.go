package domain

import "time"

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the session can no longer transition.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// SessionMode selects how a session is run.
type SessionMode string

const (
	ModeStandard     SessionMode = "standard"
	ModePresentation SessionMode = "presentation"
	ModeBattleRoyale SessionMode = "battle_royale"
)

func (m SessionMode) Valid() bool {
	switch m {
	case ModeStandard, ModePresentation, ModeBattleRoyale:
		return true
	}
	return false
}

// SessionSettings carries per-mode tuning, stored as JSON on the session row.
type SessionSettings struct {
	// TimePerQuestion overrides the quiz-level answer window, in seconds.
	TimePerQuestion int `json:"time_per_question,omitempty"`
	// MaxPlayers caps joins; 0 means unlimited.
	MaxPlayers int `json:"max_players,omitempty"`
	// EliminationInterval is the Battle Royale cadence in seconds, informational
	// for the external trigger that calls the eliminate endpoint.
	EliminationInterval int `json:"elimination_interval,omitempty"`
	// MinPoints is the time-decay floor on the Battle Royale point scale.
	MinPoints int `json:"min_points,omitempty"`
}

// Session represents one timed run of a quiz.
type Session struct {
	SessionID            string
	QuizID               string
	OwnerID              string
	JoinCode             string
	Status               SessionStatus
	Mode                 SessionMode
	CurrentQuestionIndex int
	QuestionCount        int
	Settings             SessionSettings
	CreatedAt            time.Time
	StartedAt            *time.Time
	EndedAt              *time.Time
}

// Identity is who a participant is: authenticated participants carry a
// user ID, anonymous ones only a display name. Uniqueness inside a session
// is keyed on the variant.
type Identity struct {
	UserID      string
	DisplayName string
}

func (i Identity) Anonymous() bool { return i.UserID == "" }

// Participant is one player's membership in a session.
type Participant struct {
	ParticipantID string
	SessionID     string
	UserID        string
	DisplayName   string
	Score         int
	Active        bool
	EliminatedAt  *time.Time
	Position      int
	JoinedAt      time.Time
}

func (p Participant) Eliminated() bool { return p.EliminatedAt != nil }

// Identity returns the join-uniqueness key of the participant.
func (p Participant) Identity() Identity {
	return Identity{UserID: p.UserID, DisplayName: p.DisplayName}
}

// Classification is the correctness outcome of a submitted answer.
type Classification string

const (
	ClassificationCorrect   Classification = "correct"
	ClassificationPartial   Classification = "partially_correct"
	ClassificationIncorrect Classification = "incorrect"
)

// SubmittedAnswer is one scored response event. At most one exists per
// (participant, question); it is immutable once recorded.
type SubmittedAnswer struct {
	AnswerID       string
	ParticipantID  string
	QuestionID     string
	ChoiceIDs      []string
	ResponseTime   float64
	Classification Classification
	PointsEarned   int
	Void           bool
	CreatedAt      time.Time
}

// Quiz is the read-only authoring view consumed by the live engine.
type Quiz struct {
	QuizID                string
	QuestionCount         int
	TimePerQuestion       int
	AllowsMultipleAnswers bool
}

type Question struct {
	QuestionID     string
	Order          int
	Points         int
	AllowsMultiple bool
	Choices        []Choice
}

// CorrectChoiceIDs returns the IDs of the correct choices.
func (q Question) CorrectChoiceIDs() []string {
	var ids []string
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ChoiceID)
		}
	}
	return ids
}

type Choice struct {
	ChoiceID  string
	Text      string
	IsCorrect bool
}

// Score is the scoring signal emitted after an answer is recorded.
type Score struct {
	SessionID     string
	ParticipantID string
	DisplayName   string
	TotalScore    int
	UpdateTime    time.Time
}

// Leaderboard is the ranked projection of a session's participants.
// It is recomputed from participant rows on every read, never cached.
type Leaderboard struct {
	SessionID string
	Final     bool
	Entries   []LeaderboardEntry
}

type LeaderboardEntry struct {
	ParticipantID string
	DisplayName   string
	Score         int
	Rank          int
}

// Elimination is the outcome of one Battle Royale tick.
type Elimination struct {
	SessionID     string
	Eliminated    Participant
	Remaining     int
	SessionStatus SessionStatus
	Winner        *Participant
}
