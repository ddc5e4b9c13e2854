package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Laurent-studi/quizlive/internal/domain"
)

// QuizLoader reads quiz content owned by the authoring subsystem. The live
// engine never writes these tables.
type QuizLoader struct {
	store *Store
}

func NewQuizLoader(store *Store) *QuizLoader {
	return &QuizLoader{store: store}
}

func (l *QuizLoader) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	const stmt = `
SELECT q.quiz_id, q.time_per_question, q.allows_multiple_answers,
	(SELECT COUNT(*) FROM questions WHERE quiz_id = q.quiz_id)
FROM quizzes q
WHERE q.quiz_id = $1;`

	var quiz domain.Quiz
	err := l.store.db.QueryRow(ctx, stmt, quizID).Scan(
		&quiz.QuizID, &quiz.TimePerQuestion, &quiz.AllowsMultipleAnswers, &quiz.QuestionCount)
	if err != nil {
		return domain.Quiz{}, notFound(err, "quiz not found: quiz=%s", quizID)
	}
	return quiz, nil
}

func (l *QuizLoader) QuestionAt(ctx context.Context, quizID string, order int) (domain.Question, error) {
	const qStmt = `
SELECT question_id, question_order, points, allows_multiple
FROM questions
WHERE quiz_id = $1 AND question_order = $2;`

	var q domain.Question
	err := l.store.db.QueryRow(ctx, qStmt, quizID, order).Scan(
		&q.QuestionID, &q.Order, &q.Points, &q.AllowsMultiple)
	if err != nil {
		return domain.Question{}, notFound(err, "question not found: quiz=%s order=%d", quizID, order)
	}

	const cStmt = `
SELECT choice_id, choice_text, is_correct
FROM choices
WHERE question_id = $1
ORDER BY choice_id;`

	rows, err := l.store.db.Query(ctx, cStmt, q.QuestionID)
	if err != nil {
		return domain.Question{}, err
	}

	q.Choices, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Choice, error) {
		var c domain.Choice
		if err := r.Scan(&c.ChoiceID, &c.Text, &c.IsCorrect); err != nil {
			return domain.Choice{}, err
		}
		return c, nil
	})
	if err != nil {
		return domain.Question{}, err
	}

	return q, nil
}
