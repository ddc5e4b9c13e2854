package domain

const (
	EventNameSessionStarted        = "session.started"
	EventNameSessionCompleted      = "session.completed"
	EventNameScoreUpdated          = "score.updated"
	EventNameLeaderboardUpdated    = "leaderboard.updated"
	EventNameParticipantEliminated = "participant.eliminated"
)

type EventSessionStarted struct {
	Session Session
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

type EventSessionCompleted struct {
	Session Session
}

func (EventSessionCompleted) Name() string { return EventNameSessionCompleted }

type EventScoreUpdated struct {
	Score Score
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

type EventParticipantEliminated struct {
	Elimination Elimination
}

func (EventParticipantEliminated) Name() string { return EventNameParticipantEliminated }
