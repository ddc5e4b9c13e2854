// Package leaderboard derives the ranked view of a session. The ranking is
// always recomputed from participant rows on read; Redis is only used to
// debounce and fan out "leaderboard changed" notifications.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

// AnswerStats aggregates a participant's non-void answers, used for final
// placement tie-breaks.
type AnswerStats struct {
	TotalResponseTime float64
	LastAnswerAt      time.Time
}

type Store interface {
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	AnswerStats(ctx context.Context, sessionID string) (map[string]AnswerStats, error)
}

type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Sessions Sessions
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb       *event.Bus
	store    Store
	sessions Sessions
	redis    redis.UniversalClient
	prefix   string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		store:    c.Store,
		sessions: c.Sessions,
		redis:    c.Redis,
		prefix:   c.Prefix,
	}

	if s.eb != nil {
		s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
			return s.onScoreUpdated(ctx, e.(domain.EventScoreUpdated))
		})
	}

	return s
}

type RankRequest struct {
	SessionID string
}

// Rank returns the ordered list of active, non-eliminated participants:
// score descending, earlier joiner first on ties. Completed standard
// sessions additionally break ties by total response time ascending, then
// last answer descending, when computing final placement.
func (s *Service) Rank(ctx context.Context, req RankRequest) (*domain.Leaderboard, error) {
	ss, err := s.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	participants, err := s.store.ListParticipants(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	ranked := participants[:0:0]
	for _, p := range participants {
		if p.Active && !p.Eliminated() {
			ranked = append(ranked, p)
		}
	}

	final := ss.Status == domain.StatusCompleted
	var stats map[string]AnswerStats
	if final && ss.Mode != domain.ModeBattleRoyale {
		stats, err = s.store.AnswerStats(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j], stats)
	})

	lb := &domain.Leaderboard{
		SessionID: req.SessionID,
		Final:     final,
		Entries:   make([]domain.LeaderboardEntry, 0, len(ranked)),
	}
	for i, p := range ranked {
		lb.Entries = append(lb.Entries, domain.LeaderboardEntry{
			ParticipantID: p.ParticipantID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			Rank:          i + 1,
		})
	}

	return lb, nil
}

func less(a, b domain.Participant, stats map[string]AnswerStats) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}

	if stats != nil {
		sa, sb := stats[a.ParticipantID], stats[b.ParticipantID]
		if sa.TotalResponseTime != sb.TotalResponseTime {
			return sa.TotalResponseTime < sb.TotalResponseTime
		}
		if !sa.LastAnswerAt.Equal(sb.LastAnswerAt) {
			return sa.LastAnswerAt.After(sb.LastAnswerAt)
		}
	}

	return a.JoinedAt.Before(b.JoinedAt)
}

// onScoreUpdated recomputes and publishes the leaderboard after a score
// change. Publishing is debounced per session: many scores landing within
// the interval produce a single leaderboard.updated event.
func (s *Service) onScoreUpdated(ctx context.Context, e domain.EventScoreUpdated) error {
	sc := e.Score

	ok, err := s.redis.SetNX(ctx, s.debounceKey(sc.SessionID), sc.UpdateTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("leaderboard: setnx: %w", err)
	}
	if !ok {
		return nil
	}

	lb, err := s.Rank(ctx, RankRequest{SessionID: sc.SessionID})
	if err != nil {
		return fmt.Errorf("leaderboard: rank: session=%s: %w", sc.SessionID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Leaderboard: *lb})

	return s.redis.Set(ctx, s.debounceKey(sc.SessionID), sc.UpdateTime.UnixMilli(), publishInterval).Err()
}

func (s *Service) debounceKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:lb-publish", s.prefix, sessionID)
}
