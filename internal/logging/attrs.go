package logging

import (
	"log/slog"
)

// Attr is the attribute type taken by every helper in this package.
type Attr = slog.Attr

// Attribute constructors, re-exported so callers import only this package.
var (
	Any      = slog.Any
	Bool     = slog.Bool
	Duration = slog.Duration
	Float64  = slog.Float64
	Int      = slog.Int
	Int64    = slog.Int64
	String   = slog.String
)

// Seconds renders a timeline position rounded to milliseconds.
func Seconds(key string, value float64) Attr {
	return slog.Float64(key, float64(int64(value*1000+0.5))/1000)
}

// Error attaches err under the "error" key.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger with a component name. A nil logger yields
// a discarding one.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

const (
	defaultErrorHint = "see splicer.log for the preceding error"
	defaultImpact    = "the episode continues with degraded output"
)

// WarnWithContext logs a degraded path. The line always carries event_type,
// error_hint and impact; values passed in attrs win over the defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Warn(msg, eventArgs(attrs, eventType,
		String(FieldErrorHint, defaultErrorHint),
		String(FieldImpact, defaultImpact),
	)...)
}

// ErrorWithContext logs a failure with event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, eventArgs(attrs, eventType, String(FieldErrorHint, defaultErrorHint))...)
}

func eventArgs(attrs []Attr, eventType string, defaults ...Attr) []any {
	args := make([]any, 0, len(attrs)+len(defaults)+1)
	given := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		given[a.Key] = true
		args = append(args, a)
	}
	if !given[FieldEventType] {
		args = append(args, String(FieldEventType, eventType))
	}
	for _, d := range defaults {
		if !given[d.Key] {
			args = append(args, d)
		}
	}
	return args
}
