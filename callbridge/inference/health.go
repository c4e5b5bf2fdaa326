package inference

import (
	"sync"
	"time"
)

// Health is a snapshot of provider health.
type Health struct {
	Provider       string        `json:"provider"`
	IsHealthy      bool          `json:"healthy"`
	BreakerOpen    bool          `json:"breaker_open"`
	SuccessRate    float64       `json:"success_rate"`
	AverageLatency time.Duration `json:"average_latency"`
	TotalCalls     int64         `json:"total_calls"`
	SuccessCalls   int64         `json:"success_calls"`
	FailureCalls   int64         `json:"failure_calls"`
	LastUsed       time.Time     `json:"last_used"`
	ErrorMessages  []string      `json:"errors,omitempty"`
}

// healthTracker records attempt outcomes and drives the circuit breaker.
// The breaker opens after threshold consecutive failures and half-opens
// once cooldown has elapsed since the last failure.
type healthTracker struct {
	mu          sync.Mutex
	health      Health
	consecutive int
	lastFailure time.Time
	threshold   int
	cooldown    time.Duration
	now         func() time.Time
}

func newHealthTracker(provider string, threshold int, cooldown time.Duration) *healthTracker {
	return &healthTracker{
		health:    Health{Provider: provider, IsHealthy: true, SuccessRate: 1},
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// recordSuccess updates health metrics on a successful attempt.
func (h *healthTracker) recordSuccess(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.health.TotalCalls++
	h.health.SuccessCalls++
	h.health.LastUsed = h.now()

	if h.health.AverageLatency == 0 {
		h.health.AverageLatency = d
	} else {
		alpha := 0.1
		h.health.AverageLatency = time.Duration(float64(h.health.AverageLatency)*(1-alpha) + float64(d)*alpha)
	}
	h.health.SuccessRate = float64(h.health.SuccessCalls) / float64(h.health.TotalCalls)
	h.health.IsHealthy = true
	h.consecutive = 0
}

// recordFailure updates health metrics on a failed attempt.
func (h *healthTracker) recordFailure(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.health.TotalCalls++
	h.health.FailureCalls++
	h.health.LastUsed = h.now()
	h.health.IsHealthy = false

	if len(h.health.ErrorMessages) >= 10 {
		h.health.ErrorMessages = h.health.ErrorMessages[1:]
	}
	h.health.ErrorMessages = append(h.health.ErrorMessages, msg)
	h.health.SuccessRate = float64(h.health.SuccessCalls) / float64(h.health.TotalCalls)

	h.consecutive++
	h.lastFailure = h.now()
}

// breakerOpen reports whether calls should be refused right now.
func (h *healthTracker) breakerOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openLocked()
}

func (h *healthTracker) openLocked() bool {
	if h.threshold <= 0 || h.consecutive < h.threshold {
		return false
	}
	return h.now().Sub(h.lastFailure) <= h.cooldown
}

func (h *healthTracker) snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.health
	out.ErrorMessages = append([]string(nil), h.health.ErrorMessages...)
	out.BreakerOpen = h.openLocked()
	return out
}
