package utils

import (
	"math"

	"github.com/Yoosu-L/llmstreambench/internal/api"
	"github.com/Yoosu-L/llmstreambench/internal/logging"
)

// Better tells which direction of a metric wins.
type Better string

const (
	HigherIsBetter Better = "higher"
	LowerIsBetter  Better = "lower"
)

// Tie is the Winner of a metric whose values are equal.
const Tie = "tie"

// MetricComparison is one metric of a head-to-head comparison. When
// Comparable is false one side has no data and Winner is empty.
type MetricComparison struct {
	Name       string  `json:"name" yaml:"name"`
	Unit       string  `json:"unit" yaml:"unit"`
	Better     Better  `json:"better" yaml:"better"`
	A          float64 `json:"a" yaml:"a"`
	B          float64 `json:"b" yaml:"b"`
	Winner     string  `json:"winner,omitempty" yaml:"winner,omitempty"`
	DiffPct    float64 `json:"diff_pct" yaml:"diff-pct"`
	Comparable bool    `json:"comparable" yaml:"comparable"`
}

// ComparisonReport pairs two backends measured at the same concurrency level.
type ComparisonReport struct {
	ConcurrencyLevel int                `json:"concurrency_level" yaml:"concurrency-level"`
	A                AggregateResult    `json:"a" yaml:"a"`
	B                AggregateResult    `json:"b" yaml:"b"`
	Metrics          []MetricComparison `json:"metrics" yaml:"metrics"`
}

// Metric looks a metric up by name.
func (r ComparisonReport) Metric(name string) (MetricComparison, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricComparison{}, false
}

type aggregateMetric struct {
	name   string
	unit   string
	better Better
	// present reports whether an aggregate measured this metric at all
	present func(AggregateResult) bool
	value   func(AggregateResult) float64
}

func always(AggregateResult) bool { return true }

func hasSuccess(a AggregateResult) bool { return a.SuccessfulRequests > 0 }

func hasTTFT(a AggregateResult) bool { return a.TTFTSamples > 0 }

var aggregateMetrics = []aggregateMetric{
	{"Success Rate", "%", HigherIsBetter, always, func(a AggregateResult) float64 { return a.SuccessRate }},
	{"Requests per Second", "req/s", HigherIsBetter, hasSuccess, func(a AggregateResult) float64 { return a.RequestsPerSecond }},
	{"Avg Time to First Token", "s", LowerIsBetter, hasTTFT, func(a AggregateResult) float64 { return a.AvgTimeToFirstToken.Seconds() }},
	{"Total System Throughput", "tok/s", HigherIsBetter, hasSuccess, func(a AggregateResult) float64 { return a.TotalThroughput }},
	{"Observed Requests per Second", "req/s", HigherIsBetter, hasSuccess, func(a AggregateResult) float64 { return a.ObservedRequestsPerSecond }},
}

// Compare puts two aggregates side by side. A metric is left uncompared when
// either backend has no measurement for it: rates need a successful request
// and TTFT needs at least one streamed token. Both aggregates are expected to
// come from the same concurrency level; the report carries a's.
func Compare(a, b AggregateResult) ComparisonReport {
	if a.ConcurrencyLevel != b.ConcurrencyLevel {
		logging.LogEvent("Warning: comparing %s at concurrency %d with %s at concurrency %d",
			a.Backend, a.ConcurrencyLevel, b.Backend, b.ConcurrencyLevel)
	}
	report := ComparisonReport{ConcurrencyLevel: a.ConcurrencyLevel, A: a, B: b}

	for _, m := range aggregateMetrics {
		if !m.present(a) || !m.present(b) {
			report.Metrics = append(report.Metrics, MetricComparison{Name: m.name, Unit: m.unit, Better: m.better})
			continue
		}
		report.Metrics = append(report.Metrics, compareValues(m.name, m.unit, m.better, a.Backend, b.Backend, m.value(a), m.value(b)))
	}
	return report
}

// CompareRequests compares two single requests on latency and speed.
func CompareRequests(a, b api.RequestResult) []MetricComparison {
	ttft := MetricComparison{Name: "Time to first token", Unit: "s", Better: LowerIsBetter}
	tps := MetricComparison{Name: "Tokens per second", Unit: "tok/s", Better: HigherIsBetter}
	if !a.Success || !b.Success {
		return []MetricComparison{ttft, tps}
	}

	if a.TimeToFirstToken != nil && b.TimeToFirstToken != nil {
		ttft = compareValues(ttft.Name, ttft.Unit, ttft.Better, a.Backend, b.Backend,
			a.TimeToFirstToken.Seconds(), b.TimeToFirstToken.Seconds())
	}
	tps = compareValues(tps.Name, tps.Unit, tps.Better, a.Backend, b.Backend, a.TokensPerSecond, b.TokensPerSecond)
	return []MetricComparison{ttft, tps}
}

func compareValues(name, unit string, better Better, nameA, nameB string, va, vb float64) MetricComparison {
	mc := MetricComparison{Name: name, Unit: unit, Better: better, A: va, B: vb, Comparable: true}

	high := math.Max(va, vb)
	if va == vb || high == 0 {
		mc.Winner = Tie
		return mc
	}
	mc.DiffPct = math.Abs(va-vb) / high * 100

	aWins := va > vb
	if better == LowerIsBetter {
		aWins = va < vb
	}
	if aWins {
		mc.Winner = nameA
	} else {
		mc.Winner = nameB
	}
	return mc
}
