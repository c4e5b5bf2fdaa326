package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider replays a queue of behaviours, one per call.
type stubProvider struct {
	mu     sync.Mutex
	steps  []func(ctx context.Context) (string, error)
	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, _ ports.Prompt) (string, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	i := int(s.calls.Add(1)) - 1
	s.mu.Lock()
	step := s.steps[min(i, len(s.steps)-1)]
	s.mu.Unlock()
	return step(ctx)
}

func reply(text string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return text, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

func hang(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func testOptions() Options {
	return Options{
		Timeout:    50 * time.Millisecond,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	}
}

func TestAdapterSucceedsFirstAttempt(t *testing.T) {
	p := &stubProvider{steps: []func(context.Context) (string, error){reply("ok")}}
	a := NewAdapter(p, testOptions(), nil, zerolog.Nop())

	out, err := a.Infer(context.Background(), ports.Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, 1, out.Attempts)
	assert.True(t, a.Health().IsHealthy)
}

func TestAdapterRetriesAfterTimeout(t *testing.T) {
	p := &stubProvider{steps: []func(context.Context) (string, error){hang, reply("second")}}
	a := NewAdapter(p, testOptions(), nil, zerolog.Nop())

	out, err := a.Infer(context.Background(), ports.Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "second", out.Text)
	assert.Equal(t, 2, out.Attempts)

	h := a.Health()
	assert.Equal(t, int64(1), h.FailureCalls)
	assert.Equal(t, int64(1), h.SuccessCalls)
}

func TestAdapterExhaustsRetries(t *testing.T) {
	boom := errors.New("boom")
	p := &stubProvider{steps: []func(context.Context) (string, error){fail(boom)}}
	a := NewAdapter(p, testOptions(), nil, zerolog.Nop())

	out, err := a.Infer(context.Background(), ports.Prompt{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInferenceUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestAdapterStopsOnCallerCancel(t *testing.T) {
	p := &stubProvider{steps: []func(context.Context) (string, error){hang}}
	opts := testOptions()
	opts.Timeout = time.Second
	a := NewAdapter(p, opts, nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, err := a.Infer(ctx, ports.Prompt{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInferenceUnavailable)
	assert.Equal(t, 1, out.Attempts)
}

func TestAdapterBreakerOpens(t *testing.T) {
	p := &stubProvider{steps: []func(context.Context) (string, error){fail(errors.New("down"))}}
	opts := testOptions()
	opts.MaxRetries = 0
	opts.BreakerThreshold = 2
	opts.BreakerCooldown = time.Hour
	a := NewAdapter(p, opts, nil, zerolog.Nop())

	for range 2 {
		_, err := a.Infer(context.Background(), ports.Prompt{})
		require.Error(t, err)
	}
	assert.True(t, a.Health().BreakerOpen)

	out, err := a.Infer(context.Background(), ports.Prompt{})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.ErrorIs(t, err, ErrInferenceUnavailable)
	assert.Equal(t, 0, out.Attempts)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestAdapterBreakerHalfOpensAfterCooldown(t *testing.T) {
	p := &stubProvider{steps: []func(context.Context) (string, error){fail(errors.New("down")), reply("back")}}
	opts := testOptions()
	opts.MaxRetries = 0
	opts.BreakerThreshold = 1
	opts.BreakerCooldown = time.Minute
	a := NewAdapter(p, opts, nil, zerolog.Nop())

	now := time.Now()
	a.health.now = func() time.Time { return now }

	_, err := a.Infer(context.Background(), ports.Prompt{})
	require.Error(t, err)
	require.True(t, a.Health().BreakerOpen)

	now = now.Add(2 * time.Minute)
	out, err := a.Infer(context.Background(), ports.Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "back", out.Text)
	assert.False(t, a.Health().BreakerOpen)
}

func TestAdapterConcurrencyCap(t *testing.T) {
	slow := func(ctx context.Context) (string, error) {
		select {
		case <-time.After(10 * time.Millisecond):
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	p := &stubProvider{steps: []func(context.Context) (string, error){slow}}
	opts := testOptions()
	opts.Timeout = time.Second
	opts.MaxConcurrency = 1
	a := NewAdapter(p, opts, nil, zerolog.Nop())

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Infer(context.Background(), ports.Prompt{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), p.peak.Load())
}

func TestAdapterConcurrencyCapHoldsAfterTimeout(t *testing.T) {
	// Ignores ctx, so the call outlives its attempt.
	stubborn := func(context.Context) (string, error) {
		time.Sleep(200 * time.Millisecond)
		return "late", nil
	}
	p := &stubProvider{steps: []func(context.Context) (string, error){stubborn}}
	opts := testOptions()
	opts.Timeout = 30 * time.Millisecond
	opts.MaxRetries = 0
	opts.MaxConcurrency = 1
	a := NewAdapter(p, opts, nil, zerolog.Nop())

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Infer(context.Background(), ports.Prompt{})
			assert.ErrorIs(t, err, ErrInferenceUnavailable)
		}()
		time.Sleep(40 * time.Millisecond)
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return p.active.Load() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), p.peak.Load())
	assert.Equal(t, int32(1), p.calls.Load(), "later requests time out waiting for the slot")
}

type closingProvider struct {
	stubProvider
	closed bool
}

func (c *closingProvider) Close() error {
	c.closed = true
	return nil
}

func TestAdapterClose(t *testing.T) {
	p := &closingProvider{}
	a := NewAdapter(p, testOptions(), nil, zerolog.Nop())
	require.NoError(t, a.Close())
	assert.True(t, p.closed)

	b := NewAdapter(NewScriptedProvider(), testOptions(), nil, zerolog.Nop())
	assert.NoError(t, b.Close())
}
