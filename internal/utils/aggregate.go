package utils

import (
	"time"

	"github.com/Yoosu-L/llmstreambench/internal/api"

	"github.com/codahale/hdrhistogram"
)

// ttftHistogramMax bounds the TTFT histogram, in microseconds.
const ttftHistogramMax = int64(10 * time.Minute / time.Microsecond)

// AggregateResult summarizes one backend at one concurrency level.
type AggregateResult struct {
	Backend            string  `json:"backend" yaml:"backend"`
	ConcurrencyLevel   int     `json:"concurrency_level" yaml:"concurrency-level"`
	TotalRequests      int     `json:"total_requests" yaml:"total-requests"`
	SuccessfulRequests int     `json:"successful_requests" yaml:"successful-requests"`
	SuccessRate        float64 `json:"success_rate" yaml:"success-rate"`

	AvgTimeToFirstToken time.Duration `json:"avg_time_to_first_token" yaml:"avg-time-to-first-token"`
	MinTimeToFirstToken time.Duration `json:"min_time_to_first_token" yaml:"min-time-to-first-token"`
	MaxTimeToFirstToken time.Duration `json:"max_time_to_first_token" yaml:"max-time-to-first-token"`
	P50TimeToFirstToken time.Duration `json:"p50_time_to_first_token" yaml:"p50-time-to-first-token"`
	P95TimeToFirstToken time.Duration `json:"p95_time_to_first_token" yaml:"p95-time-to-first-token"`
	// TTFTSamples counts the successes that streamed a first token; the
	// latency fields are absent, not zero, when it is 0.
	TTFTSamples int `json:"ttft_samples" yaml:"ttft-samples"`

	AvgTokensPerSecond float64 `json:"avg_tokens_per_second" yaml:"avg-tokens-per-second"`
	// TotalThroughput is the sum of per-request rates: system throughput under load.
	TotalThroughput float64 `json:"total_throughput" yaml:"total-throughput"`
	// RequestsPerSecond is the number of requests dispatched together, not a measured rate.
	RequestsPerSecond         float64       `json:"requests_per_second" yaml:"requests-per-second"`
	ObservedRequestsPerSecond float64       `json:"observed_requests_per_second" yaml:"observed-requests-per-second"`
	WallTime                  time.Duration `json:"wall_time" yaml:"wall-time"`

	Errors map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Aggregate reduces per-request results. It is order independent and never
// fails: with no successful request every rate and latency field stays zero.
func Aggregate(results []api.RequestResult, concurrencyLevel int, backend string) AggregateResult {
	agg := AggregateResult{
		Backend:          backend,
		ConcurrencyLevel: concurrencyLevel,
		TotalRequests:    len(results),
	}

	var ttfts []time.Duration
	var rates []float64
	for _, r := range results {
		if !r.Success {
			if agg.Errors == nil {
				agg.Errors = make(map[string]int)
			}
			agg.Errors[r.Error]++
			continue
		}
		agg.SuccessfulRequests++
		if r.TimeToFirstToken != nil {
			ttfts = append(ttfts, *r.TimeToFirstToken)
		}
		if r.TokensPerSecond > 0 {
			rates = append(rates, r.TokensPerSecond)
		}
	}

	if agg.TotalRequests > 0 {
		agg.SuccessRate = 100 * float64(agg.SuccessfulRequests) / float64(agg.TotalRequests)
	}
	if agg.SuccessfulRequests == 0 {
		return agg
	}

	agg.TTFTSamples = len(ttfts)
	if len(ttfts) > 0 {
		var sum time.Duration
		agg.MinTimeToFirstToken = ttfts[0]
		agg.MaxTimeToFirstToken = ttfts[0]
		for _, d := range ttfts {
			sum += d
			agg.MinTimeToFirstToken = min(agg.MinTimeToFirstToken, d)
			agg.MaxTimeToFirstToken = max(agg.MaxTimeToFirstToken, d)
		}
		agg.AvgTimeToFirstToken = sum / time.Duration(len(ttfts))
		agg.P50TimeToFirstToken, agg.P95TimeToFirstToken = ttftPercentiles(ttfts)
	}

	if len(rates) > 0 {
		for _, r := range rates {
			agg.TotalThroughput += r
		}
		agg.AvgTokensPerSecond = agg.TotalThroughput / float64(len(rates))
	}

	agg.RequestsPerSecond = float64(concurrencyLevel)
	return agg
}

func ttftPercentiles(ttfts []time.Duration) (p50, p95 time.Duration) {
	h := hdrhistogram.New(1, ttftHistogramMax, 3)
	for _, d := range ttfts {
		_ = h.RecordValue(min(max(d.Microseconds(), 1), ttftHistogramMax))
	}
	p50 = time.Duration(h.ValueAtQuantile(50)) * time.Microsecond
	p95 = time.Duration(h.ValueAtQuantile(95)) * time.Microsecond
	return p50, p95
}
