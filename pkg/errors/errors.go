// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// 設定エラー、データ不足、特徴量の形状不一致など、価格推定エンジン固有の
// エラー分類を構造化された型として定義します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("hdbvalue-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
// TrainingDivergenceWarning や CalibrationWarning の処理方法を制御できます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nil を渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// TrainingDivergenceWarning は初回ラウンド以降のすべてのラウンドが
// ラウンド0より悪い検証スコアを出した場合の警告です。
// 非対称係数や学習率の設定ミスを示唆しますが、早期終了が最良ラウンドを
// 保持しているため致命的ではありません。
type TrainingDivergenceWarning struct {
	Rounds     int
	FirstScore float64
	BestScore  float64
}

func (w *TrainingDivergenceWarning) Error() string {
	return fmt.Sprintf("training diverged: all %d rounds after round 0 scored worse than %.6g (best %.6g). Check the asymmetry factor and learning rate",
		w.Rounds, w.FirstScore, w.BestScore)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *TrainingDivergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("rounds", w.Rounds).
		Float64("first_score", w.FirstScore).
		Float64("best_score", w.BestScore).
		Str("type", "TrainingDivergenceWarning")
}

// NewTrainingDivergenceWarning は新しいTrainingDivergenceWarningを作成します。
func NewTrainingDivergenceWarning(rounds int, first, best float64) *TrainingDivergenceWarning {
	return &TrainingDivergenceWarning{Rounds: rounds, FirstScore: first, BestScore: best}
}

// CalibrationWarning はキャリブレーション集合が小さく分位点推定が不安定な場合の警告です。
type CalibrationWarning struct {
	Samples int
	Alpha   float64
	Reason  string
}

func (w *CalibrationWarning) Error() string {
	return fmt.Sprintf("calibration set of %d samples is unstable for alpha=%.3g: %s", w.Samples, w.Alpha, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *CalibrationWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("samples", w.Samples).
		Float64("alpha", w.Alpha).
		Str("reason", w.Reason).
		Str("type", "CalibrationWarning")
}

// NewCalibrationWarning は新しいCalibrationWarningを作成します。
func NewCalibrationWarning(samples int, alpha float64, reason string) *CalibrationWarning {
	return &CalibrationWarning{Samples: samples, Alpha: alpha, Reason: reason}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// ConfigurationError は探索空間や学習設定が不正な場合のエラーです。
// 致命的であり、リトライされません。
type ConfigurationError struct {
	Component string
	Field     string
	Reason    string
	Value     interface{}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("hdbvalue: %s: invalid configuration: %s (got: %v)", e.Component, e.Reason, e.Value)
	}
	return fmt.Sprintf("hdbvalue: %s: invalid configuration for '%s': %s (got: %v)", e.Component, e.Field, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("component", e.Component).
		Str("field", e.Field).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigurationError")
}

// NewConfigurationError は新しいConfigurationErrorを作成し、スタックトレースを付与します。
func NewConfigurationError(component, field, reason string, value interface{}) error {
	err := &ConfigurationError{Component: component, Field: field, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// InsufficientDataError は交差検証の分割数やキャリブレーション分位点に対して
// 行数が足りない場合のエラーです。
type InsufficientDataError struct {
	Op       string
	Required int
	Got      int
	Reason   string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("hdbvalue: %s: insufficient data: %s (required %d, got %d)", e.Op, e.Reason, e.Required, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("required", e.Required).
		Int("got", e.Got).
		Str("reason", e.Reason).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError は新しいInsufficientDataErrorを作成し、スタックトレースを付与します。
func NewInsufficientDataError(op string, required, got int, reason string) error {
	err := &InsufficientDataError{Op: op, Required: required, Got: got, Reason: reason}
	return errors.WithStack(err)
}

// FeatureShapeError は推論時の特徴量ベクトルが学習時のレイアウトと一致しない場合のエラーです。
// 位置のみでモデルに渡されるため、黙って誤った予測を返す代わりに拒否します。
type FeatureShapeError struct {
	Phase    string // "training", "prediction", "load"
	Expected int
	Got      int
	Feature  string // 問題のある特徴量名（オプション）
	Reason   string
}

func (e *FeatureShapeError) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("hdbvalue: feature shape mismatch in %s phase for feature '%s': %s",
			e.Phase, e.Feature, e.Reason)
	}
	return fmt.Sprintf("hdbvalue: feature shape mismatch in %s phase. Expected %d features, got %d",
		e.Phase, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *FeatureShapeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("phase", e.Phase).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("feature", e.Feature).
		Str("reason", e.Reason).
		Str("type", "FeatureShapeError")
}

// NewFeatureShapeError は長さの不一致を表すFeatureShapeErrorを作成します。
func NewFeatureShapeError(phase string, expected, got int) error {
	err := &FeatureShapeError{Phase: phase, Expected: expected, Got: got}
	return errors.WithStack(err)
}

// NewFeatureValueError は特定の特徴量の値が不正な場合のFeatureShapeErrorを作成します。
func NewFeatureValueError(phase, feature, reason string) error {
	err := &FeatureShapeError{Phase: phase, Feature: feature, Reason: reason}
	return errors.WithStack(err)
}

// NotFittedError はモデルが未学習の状態で `Predict` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("hdbvalue: %s: this model is not fitted yet. Train or load a bundle before using %s()", e.ModelName, e.Method)
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("hdbvalue: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("hdbvalue: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// 勾配やスコアに NaN や Inf が現れたことを示します。
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("hdbvalue: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")
)
