package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Laurent-studi/quizlive/internal/domain"
)

const maxConcurrent = 100

// Notification is the envelope published on Redis pub/sub channels. Gateways
// holding client connections subscribe per participant and per session.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (a *API) onLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := leaderboardView(&e.Leaderboard)

	a.hub.broadcast(e.Leaderboard.SessionID, Notification{Event: e.Name(), Data: data})

	if a.redis == nil {
		return nil
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, a.participantChannel(entry.ParticipantID), e.Name(), data)
		})
	}
	eg.Go(func() error {
		return a.publishNotification(ctx, a.sessionChannel(e.Leaderboard.SessionID), e.Name(), data)
	})

	return eg.Wait()
}

func (a *API) onParticipantEliminated(ctx context.Context, e domain.EventParticipantEliminated) {
	elim := e.Elimination

	data := map[string]any{
		"sessionId":             elim.SessionID,
		"eliminatedParticipant": participantView(elim.Eliminated),
		"remainingCount":        elim.Remaining,
		"sessionStatus":         elim.SessionStatus,
	}
	if elim.Winner != nil {
		data["winner"] = participantView(*elim.Winner)
	}

	n := Notification{Event: e.Name(), Data: data}
	a.hub.broadcast(elim.SessionID, n)

	if a.redis != nil {
		_ = a.publishNotification(ctx, a.sessionChannel(elim.SessionID), e.Name(), data)
		_ = a.publishNotification(ctx, a.participantChannel(elim.Eliminated.ParticipantID), e.Name(), data)
	}
}

func (a *API) onSessionCompleted(ctx context.Context, e domain.EventSessionCompleted) {
	ss := e.Session

	data := map[string]any{
		"sessionId": ss.SessionID,
		"status":    ss.Status,
	}

	a.hub.broadcast(ss.SessionID, Notification{Event: e.Name(), Data: data})
	a.hub.closeSession(ss.SessionID)

	if a.redis != nil {
		_ = a.publishNotification(ctx, a.sessionChannel(ss.SessionID), e.Name(), data)
	}
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	b, err := json.Marshal(Notification{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}
	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) sessionChannel(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", a.prefix, sessionID)
}

func (a *API) participantChannel(participantID string) string {
	return fmt.Sprintf("%s:participant:%s", a.prefix, participantID)
}
