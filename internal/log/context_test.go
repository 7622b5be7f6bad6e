package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithTaskID(context.Background(), "t-1")
	ctx = ContextWithProfile(ctx, "default")

	require.Equal(t, "t-1", TaskIDFromContext(ctx))
	require.Equal(t, "default", ProfileFromContext(ctx))

	require.Empty(t, TaskIDFromContext(context.Background()))
	require.Empty(t, ProfileFromContext(context.Background()))
}

// Configure binds the global logger once per process, so one test
// owns the output buffer and covers both shapes.
func TestWithComponentFromContext(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "test"})

	ctx := ContextWithProfile(ContextWithTaskID(context.Background(), "abc-123"), "default")
	lg := WithComponentFromContext(ctx, "transfer")
	lg.Info().Msg("hello")

	out := buf.String()
	require.Contains(t, out, `"component":"transfer"`)
	require.Contains(t, out, `"task_id":"abc-123"`)
	require.Contains(t, out, `"profile":"default"`)

	buf.Reset()
	lg = WithComponentFromContext(context.Background(), "epg")
	lg.Info().Msg("plain")

	out = buf.String()
	require.Contains(t, out, `"component":"epg"`)
	require.NotContains(t, out, "task_id")
	require.NotContains(t, out, "profile")
}
