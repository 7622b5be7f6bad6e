package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	taskIDKey    ctxKey = "task_id"
	profileKey   ctxKey = "profile"
	componentKey ctxKey = "component"
)

// ContextWithTaskID stores the provided background-task ID in the context.
func ContextWithTaskID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// ContextWithProfile stores the active profile name in the context.
func ContextWithProfile(ctx context.Context, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, profileKey, name)
}

// TaskIDFromContext extracts the task ID from context if present.
func TaskIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(taskIDKey).(string); ok {
		return v
	}
	return ""
}

// ProfileFromContext extracts the profile name from context if present.
func ProfileFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(profileKey).(string); ok {
		return v
	}
	return ""
}

// WithComponentFromContext returns a logger annotated with the component name
// and enriched with task/profile fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	builder := logger().With().Str("component", component)
	if id := TaskIDFromContext(ctx); id != "" {
		builder = builder.Str("task_id", id)
	}
	if p := ProfileFromContext(ctx); p != "" {
		builder = builder.Str("profile", p)
	}
	return builder.Logger()
}
