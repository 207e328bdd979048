package boost

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/metrics"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
	"github.com/YuminosukeSato/hdbvalue/pkg/telemetry"
	"github.com/YuminosukeSato/hdbvalue/tree"
)

// Trainer runs round-by-round Newton boosting for one objective.
type Trainer struct {
	params    Params
	objective Objective
	logger    log.Logger
	metrics   *telemetry.Metrics
}

// Result is the outcome of Train.
type Result struct {
	// Ensemble holds BestRound+1 trees: the state at the best evaluation
	// round, not the last round run.
	Ensemble *tree.Ensemble

	// BestRound is the zero-based round whose evaluation score was lowest.
	BestRound int

	// BestScore is the evaluation RMSE at BestRound. Without a usable
	// evaluation set it is the training RMSE of the final ensemble.
	BestScore float64

	// History holds the evaluation RMSE after every round run.
	History []float64

	// EarlyStopped reports whether the patience window ended training
	// before NumBoostRound.
	EarlyStopped bool

	// EvalUsed is false when early stopping fell back to the full budget.
	EvalUsed bool
}

// NewTrainer validates params and creates a Trainer.
func NewTrainer(params Params, objective Objective) (*Trainer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if objective == nil {
		return nil, errors.NewConfigurationError("boost.Trainer", "objective", "objective is required", nil)
	}
	return &Trainer{params: params, objective: objective}, nil
}

// WithLogger sets the logger; by default the process logger is used.
func (t *Trainer) WithLogger(l log.Logger) *Trainer {
	t.logger = l
	return t
}

// WithTelemetry attaches Prometheus metrics.
func (t *Trainer) WithTelemetry(m *telemetry.Metrics) *Trainer {
	t.metrics = m
	return t
}

// Params returns the trainer's hyperparameters.
func (t *Trainer) Params() Params { return t.params }

// Objective returns the trainer's objective.
func (t *Trainer) Objective() Objective { return t.objective }

func (t *Trainer) log() log.Logger {
	if t.logger != nil {
		return t.logger
	}
	return log.GetLoggerWithName("boost.trainer")
}

// Train fits an ensemble on train. When eval is non-nil its RMSE is
// computed after every round; training stops once EarlyStoppingRounds
// rounds pass without improvement and the ensemble is cut back to the best
// round. An eval set that is empty or has no target variance cannot rank
// rounds, so early stopping is disabled and the full budget runs. A nil
// eval set runs the full budget silently.
func (t *Trainer) Train(ctx context.Context, train, eval *dataset.Dataset) (res *Result, err error) {
	defer errors.Recover(&err, "boost.Trainer.Train")

	n := train.Len()
	if n == 0 {
		return nil, errors.NewInsufficientDataError("boost.Trainer.Train", 1, 0, "training set is empty")
	}
	X, y := train.Rows(), train.Targets()
	data, err := tree.NewBinned(X, t.params.MaxBin)
	if err != nil {
		return nil, err
	}
	nFeatures := data.NumFeatures()
	if eval.Len() > 0 && eval.NumFeatures() != nFeatures {
		return nil, errors.NewDimensionError("boost.Trainer.Train", nFeatures, eval.NumFeatures(), 1)
	}

	logger := t.log().With(log.ObjectiveKey, t.objective.Name())
	start := time.Now()

	useEval := eval != nil
	if useEval && (eval.Len() < 2 || eval.TargetVariance() == 0) {
		logger.Warn("Evaluation set is degenerate, early stopping disabled",
			log.TestRowsKey, eval.Len(),
			log.TargetStdKey, eval.TargetStdDev(),
			log.IterationKey, t.params.NumBoostRound,
		)
		useEval = false
	}
	patience := 0
	if useEval {
		patience = t.params.EarlyStoppingRounds
	}
	stopper := NewEarlyStopping(patience)

	logger.Debug("Boosting started",
		log.TrainRowsKey, n,
		log.TestRowsKey, eval.Len(),
		log.FeaturesKey, nFeatures,
		log.PatienceKey, patience,
	)

	rng := rand.New(rand.NewPCG(t.params.Seed, t.params.Seed^0x9e3779b97f4a7c15))
	builder := tree.NewBuilder(data, t.params.treeParams(), rng)

	base := t.objective.InitScore(y)
	ens := &tree.Ensemble{BaseScore: base, Aggregation: tree.Sum, NumFeatures: nFeatures}

	pred := filled(n, base)
	grad := make([]float64, n)
	hess := make([]float64, n)

	var evalX [][]float64
	var evalY, evalPred []float64
	if useEval {
		evalX, evalY = eval.Rows(), eval.Targets()
		evalPred = filled(len(evalY), base)
	}

	res = &Result{EvalUsed: useEval}
	for round := 0; round < t.params.NumBoostRound; round++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "boost: training cancelled at round %d", round)
		}

		for i := range y {
			grad[i] = t.objective.Gradient(pred[i], y[i])
			hess[i] = t.objective.Hessian(pred[i], y[i])
		}
		rows := sampleIndexes(rng, n, t.params.Subsample)
		cols := sampleIndexes(rng, nFeatures, t.params.ColsampleByTree)

		tr := builder.Build(rows, grad, hess, cols)
		ens.Trees = append(ens.Trees, tr)
		for i, x := range X {
			pred[i] += tr.Predict(x)
		}
		t.metrics.ObserveRound()

		if !useEval {
			continue
		}
		for i, x := range evalX {
			evalPred[i] += tr.Predict(x)
		}
		score, err := rmse(evalY, evalPred)
		if err != nil {
			return nil, err
		}
		res.History = append(res.History, score)
		if stopper.Update(round, score) {
			res.EarlyStopped = true
			break
		}
	}

	if useEval {
		res.BestRound = stopper.BestIteration
		res.BestScore = stopper.BestScore
		if res.BestRound < 0 {
			// every evaluation score was NaN
			res.BestRound = len(ens.Trees) - 1
			res.BestScore = res.History[len(res.History)-1]
		}
		t.checkDivergence(res.History)
	} else {
		res.BestRound = len(ens.Trees) - 1
		if res.BestScore, err = rmse(y, pred); err != nil {
			return nil, err
		}
	}
	res.Ensemble = ens.Truncate(res.BestRound + 1)
	t.metrics.SetBestRound(res.BestRound)

	logger.Debug("Boosting finished",
		log.IterationKey, len(ens.Trees),
		log.BestRoundKey, res.BestRound,
		log.RMSEKey, res.BestScore,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

// checkDivergence warns when every round after the first scored worse than
// the first. Early stopping already recovers round 0, so this is not fatal.
func (t *Trainer) checkDivergence(history []float64) {
	if len(history) < 2 {
		return
	}
	first := history[0]
	for _, s := range history[1:] {
		if !(s > first) {
			return
		}
	}
	errors.Warn(errors.NewTrainingDivergenceWarning(len(history), first, first))
}

func rmse(yTrue, yPred []float64) (float64, error) {
	return metrics.RMSE(mat.NewVecDense(len(yTrue), yTrue), mat.NewVecDense(len(yPred), yPred))
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// sampleIndexes draws ceil(frac·n) distinct indexes in ascending order, or
// returns every index when frac >= 1.
func sampleIndexes(rng *rand.Rand, n int, frac float64) []int {
	if frac >= 1 {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	k := int(math.Ceil(frac * float64(n)))
	if k < 1 {
		k = 1
	}
	picked := rng.Perm(n)[:k]
	sort.Ints(picked)
	return picked
}
