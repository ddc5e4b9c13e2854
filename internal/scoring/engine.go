// Package scoring computes points for a submitted answer. It is pure: no
// session state, no storage, one invocation per recorded answer.
package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/Laurent-studi/quizlive/internal/domain"
)

const (
	// DefaultTimeWindow is T_max: elapsed time is clamped to this window
	// before decay is applied.
	DefaultTimeWindow = 30.0

	// DefaultBattleFloor is the decay floor on the 1000-point Battle Royale
	// scale. Standard sessions decay linearly to 0.
	DefaultBattleFloor = 100
)

// extraSelectionPenalty is the fraction of the award removed for each
// incorrect extra choice in a partial-credit answer.
var extraSelectionPenalty = decimal.NewFromFloat(0.25)

type Config struct {
	// TimeWindow is T_max in seconds; 0 means DefaultTimeWindow.
	TimeWindow float64
	// MinPoints is the decay floor: the budget decays from the question's
	// point value down to this floor over the window.
	MinPoints int
}

// Engine scores one answer against one question.
type Engine struct {
	window decimal.Decimal
	floor  int
}

func NewEngine(c Config) Engine {
	w := c.TimeWindow
	if w <= 0 {
		w = DefaultTimeWindow
	}
	return Engine{
		window: decimal.NewFromFloat(w),
		floor:  c.MinPoints,
	}
}

// ForMode returns an engine configured for the session mode: Battle Royale
// decays to a non-zero floor, every other mode decays linearly to zero.
func ForMode(mode domain.SessionMode, settings domain.SessionSettings) Engine {
	c := Config{TimeWindow: float64(settings.TimePerQuestion)}
	if mode == domain.ModeBattleRoyale {
		c.MinPoints = settings.MinPoints
		if c.MinPoints <= 0 {
			c.MinPoints = DefaultBattleFloor
		}
	}
	return NewEngine(c)
}

type Result struct {
	Classification domain.Classification
	Points         int
}

// Score classifies the submitted choice set against the question and returns
// the time-decayed award, already rounded down to an integer.
func (e Engine) Score(q domain.Question, submitted []string, elapsed float64) Result {
	var (
		correct = toSet(q.CorrectChoiceIDs())
		chosen  = toSet(submitted)
		budget  = e.timePoints(q.Points, elapsed)
	)

	if setsEqual(chosen, correct) {
		return Result{
			Classification: domain.ClassificationCorrect,
			Points:         floorInt(budget),
		}
	}

	hits, extras := overlap(chosen, correct)
	if q.AllowsMultiple && len(correct) > 1 && hits > 0 {
		ratio := decimal.NewFromInt(int64(hits)).Div(decimal.NewFromInt(int64(len(correct))))
		penalty := decimal.NewFromInt(1).Sub(extraSelectionPenalty.Mul(decimal.NewFromInt(int64(extras))))
		if penalty.IsNegative() {
			penalty = decimal.Zero
		}

		return Result{
			Classification: domain.ClassificationPartial,
			Points:         floorInt(ratio.Mul(budget).Mul(penalty)),
		}
	}

	return Result{Classification: domain.ClassificationIncorrect}
}

// timePoints is the decayed budget: P - clamp(t, 0, T_max)/T_max * (P - floor).
func (e Engine) timePoints(points int, elapsed float64) decimal.Decimal {
	floor := e.floor
	if floor > points {
		floor = points
	}

	t := decimal.NewFromFloat(elapsed)
	if t.IsNegative() {
		t = decimal.Zero
	}
	if t.GreaterThan(e.window) {
		t = e.window
	}

	p := decimal.NewFromInt(int64(points))
	span := p.Sub(decimal.NewFromInt(int64(floor)))
	tp := p.Sub(t.Div(e.window).Mul(span))
	if tp.IsNegative() {
		return decimal.Zero
	}
	return tp
}

func floorInt(d decimal.Decimal) int {
	n := int(d.Floor().IntPart())
	if n < 0 {
		return 0
	}
	return n
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// overlap returns how many chosen ids are correct and how many are extras.
func overlap(chosen, correct map[string]struct{}) (hits, extras int) {
	for id := range chosen {
		if _, ok := correct[id]; ok {
			hits++
		} else {
			extras++
		}
	}
	return hits, extras
}
