package hybrid

import (
	"sync/atomic"

	"github.com/voxpense/voxpense/internal/model"
)

// MonitorSnapshot is a point-in-time view of parse outcome aggregates.
type MonitorSnapshot struct {
	Total       int64
	AI          int64
	Heuristic   int64
	Validated   int64
	TotalTimeMs int64
}

// AIRate is the share of parses resolved by the generative model.
func (s MonitorSnapshot) AIRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.AI) / float64(s.Total)
}

// FallbackRate is the share of parses resolved heuristically.
func (s MonitorSnapshot) FallbackRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Heuristic) / float64(s.Total)
}

// ValidationRate is the share of parses with validated model output.
func (s MonitorSnapshot) ValidationRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Validated) / float64(s.Total)
}

// AvgTimeMs is the mean wall time per parse in milliseconds.
func (s MonitorSnapshot) AvgTimeMs() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.TotalTimeMs) / float64(s.Total)
}

// ProcessingMonitor accumulates parse outcome counters. Safe for concurrent
// use.
type ProcessingMonitor struct {
	total       atomic.Int64
	ai          atomic.Int64
	heuristic   atomic.Int64
	validated   atomic.Int64
	totalTimeMs atomic.Int64
}

func NewProcessingMonitor() *ProcessingMonitor { return &ProcessingMonitor{} }

// Record tallies one parse outcome.
func (m *ProcessingMonitor) Record(result HybridParsingResult) {
	m.total.Add(1)
	switch result.Method {
	case MethodAI:
		m.ai.Add(1)
	case MethodHeuristic:
		m.heuristic.Add(1)
	}
	if result.Validated {
		m.validated.Add(1)
	}
	m.totalTimeMs.Add(result.Stats.Duration.Milliseconds())
}

// Snapshot returns the current aggregates.
func (m *ProcessingMonitor) Snapshot() MonitorSnapshot {
	return MonitorSnapshot{
		Total:       m.total.Load(),
		AI:          m.ai.Load(),
		Heuristic:   m.heuristic.Load(),
		Validated:   m.validated.Load(),
		TotalTimeMs: m.totalTimeMs.Load(),
	}
}

// Reset zeroes all counters.
func (m *ProcessingMonitor) Reset() {
	m.total.Store(0)
	m.ai.Store(0)
	m.heuristic.Store(0)
	m.validated.Store(0)
	m.totalTimeMs.Store(0)
}

// ScoreConfidence computes the final reported confidence from the parse
// method, validation outcome, and field completeness.
func ScoreConfidence(method ProcessingMethod, validated bool, parsed *model.ParsedResult) float64 {
	score := 0.5
	if parsed != nil {
		score = clamp01(parsed.Confidence)
	}

	if method == MethodAI {
		score += 0.1
	}
	if validated {
		score += 0.1
	} else {
		score -= 0.15
	}

	if parsed != nil {
		if parsed.Type == model.TypeExpense || parsed.Type == model.TypeIncome || parsed.Type == model.TypeTransfer {
			score += 0.1
		}
		if parsed.Merchant != "" {
			score += 0.05
		}
		if parsed.AmountUSD != nil || parsed.Type == model.TypeTransfer {
			score += 0.05
		}
		if len(parsed.Tags) > 0 {
			score += 0.02
		}
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const circuitFailureThreshold = 3

// CircuitBreaker counts consecutive hybrid failures and opens once the
// threshold is reached, biasing the parser toward the heuristic path until a
// success resets it.
type CircuitBreaker struct {
	failures atomic.Int32
}

func NewCircuitBreaker() *CircuitBreaker { return &CircuitBreaker{} }

// Open reports whether the breaker has tripped.
func (c *CircuitBreaker) Open() bool {
	return c.failures.Load() >= circuitFailureThreshold
}

// RecordFailure counts one consecutive failure.
func (c *CircuitBreaker) RecordFailure() {
	c.failures.Add(1)
}

// Reset clears the failure streak after a success.
func (c *CircuitBreaker) Reset() {
	c.failures.Store(0)
}
