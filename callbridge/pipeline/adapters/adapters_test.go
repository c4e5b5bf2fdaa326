package adapters

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	tb := NewTokenBucket(2, time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tb.now = func() time.Time { return now }

	_, err := tb.Acquire(ctx, "u1")
	require.NoError(t, err)
	_, err = tb.Acquire(ctx, "u1")
	require.NoError(t, err)

	_, err = tb.Acquire(ctx, "u1")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// Other keys have their own bucket
	_, err = tb.Acquire(ctx, "u2")
	assert.NoError(t, err)

	now = now.Add(1500 * time.Millisecond)
	_, err = tb.Acquire(ctx, "u1")
	assert.NoError(t, err, "one token refilled")
	_, err = tb.Acquire(ctx, "u1")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestTokenBucketPrune(t *testing.T) {
	tb := NewTokenBucket(1, time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tb.now = func() time.Time { return now }

	_, err := tb.Acquire(context.Background(), "u1")
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 1, tb.Prune(time.Minute))
	assert.Empty(t, tb.buckets)
}

func TestTokenBucketCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTokenBucket(1, time.Second).Acquire(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestZerologTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewZerologTracer(zerolog.New(&buf).Level(zerolog.DebugLevel))

	ctx, finish := tracer.StartSpan(context.Background(), "turn", map[string]any{"session_id": "S1"})
	tracer.Event(ctx, "parse_diagnostic", map[string]any{"offset": 3})
	finish(errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"span":"turn"`)
	assert.Contains(t, out, `"session_id":"S1"`)
	assert.Contains(t, out, `"event":"parse_diagnostic"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics("callbridge")

	m.ObserveTurn("Completed", 20*time.Millisecond)
	m.ObserveToolCall("get_bill_history", "succeeded", time.Millisecond)
	m.ObserveToolCall("get_bill_history", "failed", time.Millisecond)
	m.ObserveInference("scripted", 2, errors.New("x"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("Completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("get_bill_history", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inferenceErrors.WithLabelValues("scripted")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "callbridge_tool_calls_total")
}
