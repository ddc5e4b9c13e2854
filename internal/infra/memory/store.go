// Package memory holds in-memory implementations of the service store
// interfaces. A single mutex stands in for the per-session row locks of the
// Postgres implementation; the observable semantics are the same, which is
// what the unit tests rely on.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/errors"
	"github.com/Laurent-studi/quizlive/internal/leaderboard"
)

type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	sessions     map[string]*domain.Session
	participants map[string]*domain.Participant
	// answers is keyed by participant, then question.
	answers map[string]map[string]*domain.SubmittedAnswer
}

func NewStore() *Store {
	return &Store{
		now:          time.Now,
		sessions:     make(map[string]*domain.Session),
		participants: make(map[string]*domain.Participant),
		answers:      make(map[string]map[string]*domain.SubmittedAnswer),
	}
}

// NewStoreWithClock is test-only, for deterministic elimination timestamps.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.now = now
	return s
}

// --- session.Store ---

func (s *Store) InsertSession(_ context.Context, ss *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.sessions {
		if other.JoinCode == ss.JoinCode && !other.Status.Terminal() {
			return errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("join code %s is taken", ss.JoinCode))
		}
	}

	cp := *ss
	s.sessions[ss.SessionID] = &cp
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSessionLocked(sessionID)
}

func (s *Store) GetSessionByCode(_ context.Context, code string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ss := range s.sessions {
		if ss.JoinCode == code && !ss.Status.Terminal() {
			cp := *ss
			return &cp, nil
		}
	}
	return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: code=%s", code))
}

func (s *Store) UpdateSession(_ context.Context, sessionID string, fn func(*domain.Session) error) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, err := s.getSessionLocked(sessionID)
	if err != nil {
		return nil, err
	}

	// fn runs on a copy so a failed transition leaves the row untouched.
	if err := fn(ss); err != nil {
		return nil, err
	}

	cp := *ss
	s.sessions[sessionID] = &cp
	return ss, nil
}

func (s *Store) getSessionLocked(sessionID string) (*domain.Session, error) {
	ss, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: session=%s", sessionID))
	}
	cp := *ss
	return &cp, nil
}

// --- participant.Store ---

func (s *Store) InsertParticipant(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.participants {
		if other.SessionID == p.SessionID && other.Active && !other.Eliminated() && sameIdentity(other.Identity(), p.Identity()) {
			return errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("participant already joined: session=%s", p.SessionID))
		}
	}

	cp := *p
	s.participants[p.ParticipantID] = &cp
	return nil
}

func (s *Store) GetParticipant(_ context.Context, participantID string) (*domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getParticipantLocked(participantID)
}

func (s *Store) FindByIdentity(_ context.Context, sessionID string, id domain.Identity) (*domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *domain.Participant
	for _, p := range s.participants {
		if p.SessionID != sessionID || !sameIdentity(p.Identity(), id) {
			continue
		}
		if found == nil || p.Active || (!found.Active && found.Eliminated() && !p.Eliminated()) {
			found = p
		}
	}
	if found == nil {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("participant not found: session=%s", sessionID))
	}
	cp := *found
	return &cp, nil
}

func (s *Store) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Participant
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) CountActive(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeLocked(sessionID)), nil
}

func (s *Store) SetActive(_ context.Context, participantID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("participant not found: participant=%s", participantID))
	}
	p.Active = active
	return nil
}

func (s *Store) ApplyPoints(_ context.Context, participantID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyPointsLocked(participantID, delta)
}

func (s *Store) RecordAnswer(_ context.Context, a *domain.SubmittedAnswer, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byQuestion, ok := s.answers[a.ParticipantID]
	if !ok {
		byQuestion = make(map[string]*domain.SubmittedAnswer)
		s.answers[a.ParticipantID] = byQuestion
	}
	if _, exists := byQuestion[a.QuestionID]; exists {
		return 0, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("answer exists: participant=%s question=%s", a.ParticipantID, a.QuestionID))
	}

	total, err := s.applyPointsLocked(a.ParticipantID, delta)
	if err != nil {
		return 0, err
	}

	cp := *a
	byQuestion[a.QuestionID] = &cp
	return total, nil
}

func (s *Store) VoidAnswers(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pid, p := range s.participants {
		if p.SessionID != sessionID {
			continue
		}
		for _, a := range s.answers[pid] {
			a.Void = true
		}
	}
	return nil
}

func (s *Store) applyPointsLocked(participantID string, delta int) (int, error) {
	p, ok := s.participants[participantID]
	if !ok {
		return 0, errors.New(errors.CodeNotFound, errors.WithMessagef("participant not found: participant=%s", participantID))
	}
	p.Score += delta
	if p.Score < 0 {
		p.Score = 0
	}
	return p.Score, nil
}

func (s *Store) getParticipantLocked(participantID string) (*domain.Participant, error) {
	p, ok := s.participants[participantID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("participant not found: participant=%s", participantID))
	}
	cp := *p
	return &cp, nil
}

// --- leaderboard.Store ---

func (s *Store) AnswerStats(_ context.Context, sessionID string) (map[string]leaderboard.AnswerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]leaderboard.AnswerStats)
	for pid, p := range s.participants {
		if p.SessionID != sessionID {
			continue
		}
		st := stats[pid]
		for _, a := range s.answers[pid] {
			if a.Void {
				continue
			}
			st.TotalResponseTime += a.ResponseTime
			if a.CreatedAt.After(st.LastAnswerAt) {
				st.LastAnswerAt = a.CreatedAt
			}
		}
		stats[pid] = st
	}
	return stats, nil
}

// --- battle.Store ---

func (s *Store) EliminateLowest(_ context.Context, sessionID string) (*domain.Elimination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: session=%s", sessionID))
	}
	if ss.Status != domain.StatusActive {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("cannot eliminate: session=%s status=%s", sessionID, ss.Status))
	}

	active := s.activeLocked(sessionID)
	if len(active) < 2 {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("nothing to eliminate: session=%s has %d active participants", sessionID, len(active)))
	}

	// Lowest score loses; on a tie the latest joiner goes first.
	sort.Slice(active, func(i, j int) bool {
		if active[i].Score != active[j].Score {
			return active[i].Score < active[j].Score
		}
		return active[i].JoinedAt.After(active[j].JoinedAt)
	})

	now := s.now()
	loser := active[0]
	loser.EliminatedAt = &now
	loser.Position = len(active)

	elim := &domain.Elimination{
		SessionID:  sessionID,
		Eliminated: *loser,
		Remaining:  len(active) - 1,
	}

	if elim.Remaining == 1 {
		winner := active[1]
		winner.Position = 1
		ss.Status = domain.StatusCompleted
		ss.EndedAt = &now
		w := *winner
		elim.Winner = &w
	}

	elim.SessionStatus = ss.Status
	return elim, nil
}

func (s *Store) activeLocked(sessionID string) []*domain.Participant {
	var out []*domain.Participant
	for _, p := range s.participants {
		if p.SessionID == sessionID && p.Active && !p.Eliminated() {
			out = append(out, p)
		}
	}
	return out
}

func sameIdentity(a, b domain.Identity) bool {
	if a.Anonymous() != b.Anonymous() {
		return false
	}
	if a.Anonymous() {
		return a.DisplayName == b.DisplayName
	}
	return a.UserID == b.UserID
}
