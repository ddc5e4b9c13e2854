package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizlive",
		Name:      "sessions_created_total",
		Help:      "Sessions created, by mode.",
	}, []string{"mode"})

	AnswersScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizlive",
		Name:      "answers_scored_total",
		Help:      "Answers scored, by classification.",
	}, []string{"classification"})

	Eliminations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizlive",
		Name:      "eliminations_total",
		Help:      "Battle Royale eliminations performed.",
	})
)
