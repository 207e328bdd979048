package boost

import "math"

// EarlyStopping tracks the best evaluation score across rounds. Lower
// scores are better.
type EarlyStopping struct {
	Rounds          int     // rounds without improvement before stopping
	BestScore       float64 // best evaluation score so far
	BestIteration   int     // zero-based round of BestScore
	RoundsNoImprove int     // rounds since BestScore last improved
	Enabled         bool
}

// NewEarlyStopping creates a tracker; rounds <= 0 disables stopping while
// still recording the best round.
func NewEarlyStopping(rounds int) *EarlyStopping {
	return &EarlyStopping{
		Rounds:        rounds,
		BestScore:     math.Inf(1),
		BestIteration: -1,
		Enabled:       rounds > 0,
	}
}

// Update records the score of iteration and reports whether training
// should stop. Ties do not count as improvement, so the earliest of equal
// scores is kept.
func (es *EarlyStopping) Update(iteration int, score float64) bool {
	if score < es.BestScore {
		es.BestScore = score
		es.BestIteration = iteration
		es.RoundsNoImprove = 0
	} else {
		es.RoundsNoImprove++
	}
	return es.Enabled && es.RoundsNoImprove >= es.Rounds
}
