// Package quiz exposes the read-only view of the authoring subsystem.
// The live engine never writes quiz content; it only resolves a quiz and
// the question at a given cursor position.
package quiz

import (
	"context"

	"github.com/Laurent-studi/quizlive/internal/domain"
	"github.com/Laurent-studi/quizlive/internal/errors"
)

type Loader interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// QuestionAt returns the question at the 0-based order within the quiz.
	QuestionAt(ctx context.Context, quizID string, order int) (domain.Question, error)
}

// StaticLoader serves quizzes from a fixed map. Used by tests and local runs
// without an authoring database.
type StaticLoader struct {
	quizzes   map[string]domain.Quiz
	questions map[string][]domain.Question
}

func NewStaticLoader() *StaticLoader {
	return &StaticLoader{
		quizzes:   make(map[string]domain.Quiz),
		questions: make(map[string][]domain.Question),
	}
}

// Add registers a quiz and its ordered questions.
func (l *StaticLoader) Add(q domain.Quiz, questions []domain.Question) {
	q.QuestionCount = len(questions)
	l.quizzes[q.QuizID] = q
	l.questions[q.QuizID] = questions
}

func (l *StaticLoader) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	q, ok := l.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: quiz=%s", quizID))
	}
	return q, nil
}

func (l *StaticLoader) QuestionAt(_ context.Context, quizID string, order int) (domain.Question, error) {
	qs, ok := l.questions[quizID]
	if !ok {
		return domain.Question{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: quiz=%s", quizID))
	}
	if order < 0 || order >= len(qs) {
		return domain.Question{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question not found: quiz=%s order=%d", quizID, order))
	}
	return qs[order], nil
}
