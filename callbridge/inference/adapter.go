package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrInferenceUnavailable wraps every failure returned by Infer.
	ErrInferenceUnavailable = errors.New("inference unavailable")
	ErrBreakerOpen          = errors.New("circuit breaker is open")
	ErrProviderUnavailable  = errors.New("provider unavailable")
)

// Inference is the raw model output of one Infer call.
type Inference struct {
	Text     string
	Attempts int
	Duration time.Duration
}

// Options configure timeouts, retries and the concurrency cap.
type Options struct {
	Timeout          time.Duration // per attempt, queueing included
	MaxRetries       int           // retries after the first attempt
	Backoff          time.Duration // base of the exponential backoff
	MaxConcurrency   int           // 0 disables the global cap
	BreakerThreshold int           // 0 disables the breaker
	BreakerCooldown  time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:          20 * time.Second,
		MaxRetries:       2,
		Backoff:          200 * time.Millisecond,
		MaxConcurrency:   1,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// Adapter wraps a Provider with timeout, retry, concurrency and breaker
// policy behind a single Infer call.
type Adapter struct {
	provider ports.Provider
	opts     Options
	sem      *semaphore.Weighted
	health   *healthTracker
	metrics  ports.Metrics
	logger   zerolog.Logger
}

// NewAdapter creates an adapter. metrics may be nil.
func NewAdapter(provider ports.Provider, opts Options, metrics ports.Metrics, logger zerolog.Logger) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultOptions().Backoff
	}
	opts.MaxRetries = max(opts.MaxRetries, 0)

	a := &Adapter{
		provider: provider,
		opts:     opts,
		health:   newHealthTracker(provider.Name(), opts.BreakerThreshold, opts.BreakerCooldown),
		metrics:  metrics,
		logger:   logger.With().Str("component", "inference").Str("provider", provider.Name()).Logger(),
	}
	if opts.MaxConcurrency > 0 {
		a.sem = semaphore.NewWeighted(int64(opts.MaxConcurrency))
	}
	return a
}

// Provider returns the wrapped provider name.
func (a *Adapter) Provider() string { return a.provider.Name() }

// Health returns the current health snapshot.
func (a *Adapter) Health() Health { return a.health.snapshot() }

// Infer calls the provider with a per-attempt timeout and bounded retries
// with exponential backoff. Failures are wrapped in ErrInferenceUnavailable;
// the returned Inference carries the attempt count even on failure.
func (a *Adapter) Infer(ctx context.Context, prompt ports.Prompt) (Inference, error) {
	start := time.Now()
	var out Inference

	backoff := retry.WithMaxRetries(uint64(a.opts.MaxRetries), retry.NewExponential(a.opts.Backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if a.health.breakerOpen() {
			return ErrBreakerOpen
		}
		out.Attempts++

		text, err := a.attempt(ctx, prompt)
		if err != nil {
			a.health.recordFailure(err.Error())
			a.logger.Warn().Err(err).Int("attempt", out.Attempts).Msg("inference attempt failed")
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		out.Text = text
		return nil
	})
	out.Duration = time.Since(start)

	if a.metrics != nil {
		a.metrics.ObserveInference(a.provider.Name(), out.Attempts, err, out.Duration)
	}
	if err != nil {
		return out, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrInferenceUnavailable, a.provider.Name(), out.Attempts, err)
	}
	return out, nil
}

type completion struct {
	text string
	err  error
}

// attempt runs one provider call. Queueing for the concurrency cap counts
// against the same timeout as the call itself. The slot is held until the
// provider returns, even when the attempt has already timed out, so a
// provider that ignores cancellation still counts against the cap.
func (a *Adapter) attempt(ctx context.Context, prompt ports.Prompt) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	if a.sem != nil {
		if err := a.sem.Acquire(attemptCtx, 1); err != nil {
			return "", fmt.Errorf("waiting for inference slot: %w", err)
		}
	}

	start := time.Now()
	done := make(chan completion, 1)
	go func() {
		if a.sem != nil {
			defer a.sem.Release(1)
		}
		text, err := a.provider.Complete(attemptCtx, prompt)
		done <- completion{text: text, err: err}
	}()

	select {
	case c := <-done:
		if c.err != nil {
			return "", c.err
		}
		a.health.recordSuccess(time.Since(start))
		return c.text, nil
	case <-attemptCtx.Done():
		return "", fmt.Errorf("attempt timed out after %s: %w", a.opts.Timeout, attemptCtx.Err())
	}
}

// Close releases provider resources when the provider holds any.
func (a *Adapter) Close() error {
	if c, ok := a.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
