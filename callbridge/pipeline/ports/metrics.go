package pipelineports

import "time"

// Metrics records pipeline counters and latencies.
type Metrics interface {
	ObserveTurn(state string, duration time.Duration)
	ObserveToolCall(tool, status string, duration time.Duration)
	ObserveInference(provider string, attempts int, err error, duration time.Duration)
}
