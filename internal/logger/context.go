package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are added to every record logged with a context that carries them.
type LogFields struct {
	SessionID *string
	UserID    *string
	TermID    *string
	RequestID *string
	Component string // e.g. "glossary.telemetry.recorder"
}

// WithLogFields enriches ctx. Multiple calls merge, newer non-empty values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// WithComponent is shorthand for WithLogFields with only Component set.
func WithComponent(ctx context.Context, component string) context.Context {
	return WithLogFields(ctx, LogFields{Component: component})
}

// GetLogFields retrieves log fields from ctx, or empty fields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing
	if next.SessionID != nil {
		result.SessionID = next.SessionID
	}
	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.TermID != nil {
		result.TermID = next.TermID
	}
	if next.RequestID != nil {
		result.RequestID = next.RequestID
	}
	if next.Component != "" {
		result.Component = next.Component
	}
	return result
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
