package log

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	scierrors "github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// ErrFmtHandler is a slog handler that adds the cockroachdb/errors stack
// trace and a stable error code to records carrying an ErrAttrKey attribute.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps handler so that error records gain StacktraceAttrKey
// and ErrorCodeKey attributes.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{handler: handler}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var found error
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		if err, ok := attr.Value.Any().(error); ok {
			found = err
		}
		return false
	})
	if found != nil {
		if st := extractStacktrace(found); st != "" {
			r.AddAttrs(slog.String(StacktraceAttrKey, st))
		}
		if code := errorCode(found); code != "" {
			r.AddAttrs(slog.String(ErrorCodeKey, code))
		}
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

func errorCode(err error) string {
	var (
		dataErr  *scierrors.InsufficientDataError
		shapeErr *scierrors.FeatureShapeError
		cfgErr   *scierrors.ConfigurationError
	)
	switch {
	case scierrors.As(err, &dataErr):
		return ErrorInsufficientData
	case scierrors.As(err, &shapeErr):
		return ErrorFeatureShape
	case scierrors.As(err, &cfgErr):
		return ErrorConfiguration
	}
	return ""
}
