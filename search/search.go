package search

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/YuminosukeSato/hdbvalue/core/parallel"
	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/metrics"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
	"github.com/YuminosukeSato/hdbvalue/pkg/telemetry"
)

// Options control a search run.
type Options struct {
	NIter   int    `yaml:"n_iter"`
	CV      int    `yaml:"cv"`
	Scoring string `yaml:"scoring"`
	Seed    uint64 `yaml:"seed"`
	Workers int    `yaml:"workers"` // 0 means one per CPU

	Logger    log.Logger         `yaml:"-"`
	Telemetry *telemetry.Metrics `yaml:"-"`
}

// DefaultOptions returns 20 iterations of 5-fold CV scored by negative
// RMSE with seed 42.
func DefaultOptions() Options {
	return Options{
		NIter:   20,
		CV:      5,
		Scoring: metrics.NegRMSE,
		Seed:    42,
	}
}

// Trial is the cross-validated score of one sampled configuration.
type Trial struct {
	Index      int
	Config     Config
	Score      float64 // mean of FoldScores
	FoldScores []float64
}

// Result is the outcome of Run.
type Result struct {
	Best      Config
	BestScore float64
	BestIndex int
	Trials    []Trial
}

// Run draws opts.NIter configurations from space and scores each by
// opts.CV-fold cross-validation on train. Configurations are drawn
// sequentially from a generator seeded by opts.Seed; the (configuration,
// fold) fits then run in parallel. The configuration with the greatest
// mean score wins, and the earliest drawn wins ties.
func Run(ctx context.Context, space Space, train *dataset.Dataset, opts Options) (res *Result, err error) {
	defer errors.Recover(&err, "search.Run")

	if err := space.Validate(); err != nil {
		return nil, err
	}
	scorer, err := metrics.ScorerByName(opts.Scoring)
	if err != nil {
		return nil, err
	}
	if opts.NIter < 1 {
		return nil, errors.NewConfigurationError("search.Options", "n_iter", "must be >= 1", opts.NIter)
	}
	folds, err := dataset.KFold(train.Len(), opts.CV, true, opts.Seed)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("search")
	}
	logger = logger.With(log.ModelNameKey, string(space.Family), log.OperationKey, log.OperationSearch)
	start := time.Now()

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	configs := make([]Config, opts.NIter)
	for i := range configs {
		configs[i] = space.sample(rng)
	}

	logger.Info("Search started",
		log.TrialsKey, opts.NIter,
		log.FoldsKey, opts.CV,
		log.ScoringKey, scorer.Name,
		log.SamplesKey, train.Len(),
		log.WorkersKey, opts.Workers,
	)

	trainSets := make([]*dataset.Dataset, len(folds))
	testSets := make([]*dataset.Dataset, len(folds))
	for f, fold := range folds {
		trainSets[f] = train.Subset(fold.Train)
		testSets[f] = train.Subset(fold.Test)
	}

	jobs := opts.NIter * opts.CV
	scores := make([]float64, jobs)
	jobErrs := make([]error, jobs)
	parallel.ParallelizeWorkers(jobs, opts.Workers, func(lo, hi int) {
		for j := lo; j < hi; j++ {
			if err := ctx.Err(); err != nil {
				jobErrs[j] = err
				continue
			}
			c, f := j/opts.CV, j%opts.CV
			scores[j], jobErrs[j] = evaluate(ctx, configs[c], trainSets[f], testSets[f], scorer)
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "search: cancelled")
	}
	for j, err := range jobErrs {
		if err != nil {
			return nil, errors.Wrapf(err, "search: trial %d fold %d", j/opts.CV, j%opts.CV)
		}
	}

	res = &Result{BestIndex: -1, BestScore: math.Inf(-1), Trials: make([]Trial, opts.NIter)}
	for c := range configs {
		fs := scores[c*opts.CV : (c+1)*opts.CV]
		var sum float64
		for _, s := range fs {
			sum += s
		}
		trial := Trial{
			Index:      c,
			Config:     configs[c],
			Score:      sum / float64(opts.CV),
			FoldScores: append([]float64(nil), fs...),
		}
		res.Trials[c] = trial
		opts.Telemetry.ObserveTrial(string(space.Family))
		logger.Debug("Trial evaluated",
			log.TrialKey, c,
			log.ScoreKey, trial.Score,
			log.HyperParamsKey, trial.Config.String(),
		)
		if res.BestIndex < 0 || trial.Score > res.BestScore {
			res.BestIndex = c
			res.BestScore = trial.Score
			res.Best = trial.Config
		}
	}
	opts.Telemetry.SetSearchBest(res.BestScore)

	logger.Info("Search finished",
		log.TrialKey, res.BestIndex,
		log.ScoreKey, res.BestScore,
		log.HyperParamsKey, res.Best.String(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

func evaluate(ctx context.Context, c Config, train, test *dataset.Dataset, scorer metrics.Scorer) (float64, error) {
	reg, err := c.Regressor()
	if err != nil {
		return 0, err
	}
	if err := reg.Fit(ctx, train.Rows(), train.Targets()); err != nil {
		return 0, err
	}
	preds, err := reg.PredictBatch(test.Rows())
	if err != nil {
		return 0, err
	}
	return scorer.Score(test.Targets(), preds)
}
