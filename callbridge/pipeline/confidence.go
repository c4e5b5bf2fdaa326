package pipeline

import (
	"gonum.org/v1/gonum/floats"
)

// ConfidencePolicy scores a turn from three signals: the share of calls
// that did not succeed, inference retries consumed and parser diagnostics.
//
//	score = clamp(Base - w·s, Floor, 1)
type ConfidencePolicy struct {
	Base             float64
	Floor            float64
	FailureScore     float64 // fixed score of a Failed turn
	UnresolvedWeight float64
	RetryWeight      float64
	DiagnosticWeight float64
	DiagnosticCap    int
}

// DefaultConfidencePolicy returns weights where any retry lowers the score.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{
		Base:             0.95,
		Floor:            0.05,
		FailureScore:     0.1,
		UnresolvedWeight: 0.35,
		RetryWeight:      0.1,
		DiagnosticWeight: 0.05,
		DiagnosticCap:    4,
	}
}

// Score computes the confidence of a completed turn.
func (p ConfidencePolicy) Score(calls []*ToolCall, retries, diagnostics int) float64 {
	unresolved := 0.0
	if len(calls) > 0 {
		failed := 0
		for _, c := range calls {
			if c.Status != StatusSucceeded {
				failed++
			}
		}
		unresolved = float64(failed) / float64(len(calls))
	}
	if p.DiagnosticCap > 0 {
		diagnostics = min(diagnostics, p.DiagnosticCap)
	}

	weights := []float64{p.UnresolvedWeight, p.RetryWeight, p.DiagnosticWeight}
	signals := []float64{unresolved, float64(max(retries, 0)), float64(max(diagnostics, 0))}
	score := p.Base - floats.Dot(weights, signals)

	return min(max(score, p.Floor), 1)
}
