// Package log defines standard attribute keys for the estimation pipeline.
//
// Keys follow a hierarchical naming convention ("data.samples",
// "search.trial") so that logs from the search, training, calibration and
// inference stages can be filtered the same way.
package log

// Operation context.
const (
	// ModelNameKey identifies the model family, e.g. "xgboost", "random_forest".
	ModelNameKey = "model.name"

	// BundleIDKey identifies a persisted bundle.
	BundleIDKey = "model.bundle_id"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey   = "data.samples"
	FeaturesKey  = "data.features"
	TrainRowsKey = "data.train_rows"
	TestRowsKey  = "data.test_rows"
	CalibRowsKey = "data.calibration_rows"
	TargetStdKey = "data.target_std"
	FoldsKey     = "data.folds"
)

// Performance and training progress.
const (
	DurationMsKey = "perf.duration_ms"
	ScoreKey      = "metrics.score"
	ScoringKey    = "metrics.scoring"
	RMSEKey       = "metrics.rmse"
	LossKey       = "metrics.loss"
	CoverageKey   = "metrics.coverage"
	IterationKey  = "training.iteration"
	BestRoundKey  = "training.best_round"
	PatienceKey   = "training.patience"
	ObjectiveKey  = "training.objective"
	AsymmetryKey  = "training.asymmetry_alpha"
	TrialKey      = "search.trial"
	TrialsKey     = "search.trials"
	WorkersKey    = "search.workers"
)

// Calibration and inference.
const (
	MarginKey      = "conformal.q"
	MiscoverageKey = "conformal.alpha"
	QuantileKey    = "conformal.method"
	PointKey       = "preds.point"
	PredsKey       = "preds.count"
)

// Error context.
const (
	ErrorCodeKey  = "error.code"
	SuggestionKey = "error.suggestion"
)

// Hyperparameters and configuration.
const (
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
)

// Standard attribute values.
const (
	OperationSearch    = "search"
	OperationTrain     = "train"
	OperationCalibrate = "calibrate"
	OperationPredict   = "predict"
	OperationLoad      = "load"
	OperationSave      = "save"

	PhaseTraining    = "training"
	PhaseValidation  = "validation"
	PhaseCalibration = "calibration"
	PhaseInference   = "inference"

	ErrorInsufficientData = "INSUFFICIENT_DATA"
	ErrorFeatureShape     = "FEATURE_SHAPE"
	ErrorConfiguration    = "CONFIGURATION"
	ErrorDivergence       = "TRAINING_DIVERGENCE"
)
