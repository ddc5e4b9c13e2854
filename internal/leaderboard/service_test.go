package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/event"
	"github.com/Laurent-studi/quizlive/internal/infra/memory"
	"github.com/Laurent-studi/quizlive/internal/leaderboard"
)

func makeService(t *testing.T, store *memory.Store, eb *event.Bus) *leaderboard.Service {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return leaderboard.NewService(leaderboard.Config{
		EventBus: eb,
		Store:    store,
		Sessions: store,
		Redis:    rc,
		Prefix:   "test",
	})
}

func seedSession(t *testing.T, store *memory.Store, status domain.SessionStatus, mode domain.SessionMode) {
	t.Helper()

	require.NoError(t, store.InsertSession(context.Background(), &domain.Session{
		SessionID: "s1",
		QuizID:    "quiz-1",
		OwnerID:   "owner-1",
		JoinCode:  "AAAAAA",
		Status:    status,
		Mode:      mode,
	}))
}

func seedParticipant(t *testing.T, store *memory.Store, p domain.Participant) {
	t.Helper()

	p.SessionID = "s1"
	p.Active = true
	require.NoError(t, store.InsertParticipant(context.Background(), &p))
}

func TestService_Rank(t *testing.T) {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("orders by score then join time", func(t *testing.T) {
		store := memory.NewStore()
		seedSession(t, store, domain.StatusActive, domain.ModeStandard)
		seedParticipant(t, store, domain.Participant{ParticipantID: "p1", DisplayName: "alice", Score: 500, JoinedAt: base})
		seedParticipant(t, store, domain.Participant{ParticipantID: "p2", DisplayName: "bob", Score: 900, JoinedAt: base.Add(time.Second)})
		seedParticipant(t, store, domain.Participant{ParticipantID: "p3", DisplayName: "carol", Score: 500, JoinedAt: base.Add(2 * time.Second)})

		s := makeService(t, store, nil)

		lb, err := s.Rank(context.Background(), leaderboard.RankRequest{SessionID: "s1"})
		require.NoError(t, err)
		require.False(t, lb.Final)

		want := []domain.LeaderboardEntry{
			{ParticipantID: "p2", DisplayName: "bob", Score: 900, Rank: 1},
			{ParticipantID: "p1", DisplayName: "alice", Score: 500, Rank: 2},
			{ParticipantID: "p3", DisplayName: "carol", Score: 500, Rank: 3},
		}
		require.Equal(t, want, lb.Entries)
	})

	t.Run("excludes inactive and eliminated participants", func(t *testing.T) {
		store := memory.NewStore()
		seedSession(t, store, domain.StatusActive, domain.ModeBattleRoyale)
		seedParticipant(t, store, domain.Participant{ParticipantID: "p1", DisplayName: "alice", Score: 500, JoinedAt: base})
		seedParticipant(t, store, domain.Participant{ParticipantID: "p2", DisplayName: "bob", Score: 900, JoinedAt: base.Add(time.Second)})
		elim := base.Add(time.Minute)
		seedParticipant(t, store, domain.Participant{ParticipantID: "p3", DisplayName: "carol", Score: 100, JoinedAt: base, EliminatedAt: &elim})

		require.NoError(t, store.SetActive(context.Background(), "p1", false))

		s := makeService(t, store, nil)

		lb, err := s.Rank(context.Background(), leaderboard.RankRequest{SessionID: "s1"})
		require.NoError(t, err)
		require.Len(t, lb.Entries, 1)
		require.Equal(t, "p2", lb.Entries[0].ParticipantID)
	})

	t.Run("breaks final ties by total response time", func(t *testing.T) {
		store := memory.NewStore()
		seedSession(t, store, domain.StatusCompleted, domain.ModeStandard)
		// alice joined first but answered slower; on a completed session the
		// faster answerer wins the tie.
		seedParticipant(t, store, domain.Participant{ParticipantID: "p1", DisplayName: "alice", Score: 500, JoinedAt: base})
		seedParticipant(t, store, domain.Participant{ParticipantID: "p2", DisplayName: "bob", Score: 500, JoinedAt: base.Add(time.Second)})

		_, err := store.RecordAnswer(context.Background(), &domain.SubmittedAnswer{
			AnswerID: "a1", ParticipantID: "p1", QuestionID: "q1", ResponseTime: 20, CreatedAt: base.Add(time.Minute),
		}, 0)
		require.NoError(t, err)
		_, err = store.RecordAnswer(context.Background(), &domain.SubmittedAnswer{
			AnswerID: "a2", ParticipantID: "p2", QuestionID: "q1", ResponseTime: 5, CreatedAt: base.Add(time.Minute),
		}, 0)
		require.NoError(t, err)

		s := makeService(t, store, nil)

		lb, err := s.Rank(context.Background(), leaderboard.RankRequest{SessionID: "s1"})
		require.NoError(t, err)
		require.True(t, lb.Final)
		require.Equal(t, "p2", lb.Entries[0].ParticipantID)
		require.Equal(t, "p1", lb.Entries[1].ParticipantID)
	})

	t.Run("fails for an unknown session", func(t *testing.T) {
		s := makeService(t, memory.NewStore(), nil)

		_, err := s.Rank(context.Background(), leaderboard.RankRequest{SessionID: "nope"})
		require.Error(t, err)
	})
}

func TestService_PublishesDebouncedUpdates(t *testing.T) {
	type outputs struct {
		published []domain.EventLeaderboardUpdated
	}

	tests := map[string]struct {
		scores []domain.Score
		assert func(t *testing.T, out outputs)
	}{
		"should publish one leaderboard.updated after a score.updated": {
			scores: []domain.Score{
				{SessionID: "s1", ParticipantID: "p1", TotalScore: 100, UpdateTime: time.Now()},
			},
			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.published, 1)
				require.Equal(t, "s1", out.published[0].Leaderboard.SessionID)
			},
		},

		"should coalesce scores for the same session within the interval": {
			scores: []domain.Score{
				{SessionID: "s1", ParticipantID: "p1", TotalScore: 100, UpdateTime: time.Now()},
				{SessionID: "s1", ParticipantID: "p2", TotalScore: 200, UpdateTime: time.Now()},
			},
			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.published, 1, "second score within the interval should be debounced")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			store := memory.NewStore()
			seedSession(t, store, domain.StatusActive, domain.ModeStandard)
			seedParticipant(t, store, domain.Participant{ParticipantID: "p1", DisplayName: "alice", JoinedAt: time.Now()})
			seedParticipant(t, store, domain.Participant{ParticipantID: "p2", DisplayName: "bob", JoinedAt: time.Now()})

			eb := event.NewBus()

			out := outputs{}
			var mu sync.Mutex
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.published = append(out.published, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			makeService(t, store, eb)

			for _, sc := range tt.scores {
				eb.Publish(context.Background(), domain.EventScoreUpdated{Score: sc})
				// The bus runs handlers asynchronously; give the debounce key
				// time to land before the next score.
				time.Sleep(20 * time.Millisecond)
			}

			eb.Stop()
			tt.assert(t, out)
		})
	}
}
