package utils

import (
	"math"
	"testing"
	"time"

	"github.com/Yoosu-L/llmstreambench/internal/api"
)

func ttft(d time.Duration) *time.Duration { return &d }

func success(first time.Duration, rate float64) api.RequestResult {
	return api.RequestResult{
		Backend:          "local",
		Success:          true,
		Response:         "ok",
		TimeToFirstToken: ttft(first),
		TokensPerSecond:  rate,
		TokenCount:       10,
		TotalTime:        first + time.Second,
	}
}

func TestAggregateEmpty(t *testing.T) {
	agg := Aggregate(nil, 5, "local")
	if agg.TotalRequests != 0 || agg.SuccessfulRequests != 0 {
		t.Fatalf("unexpected counts: %+v", agg)
	}
	if agg.SuccessRate != 0 || agg.RequestsPerSecond != 0 || agg.TotalThroughput != 0 {
		t.Fatalf("expected zeroed metrics, got %+v", agg)
	}
	if agg.ConcurrencyLevel != 5 || agg.Backend != "local" {
		t.Fatalf("identity fields not kept: %+v", agg)
	}
}

func TestAggregateAllFailed(t *testing.T) {
	results := []api.RequestResult{
		api.FailedResult("local", "HTTP 503: busy"),
		api.FailedResult("local", "HTTP 503: busy"),
		api.FailedResult("local", "OPENAI_API_KEY not set"),
	}
	agg := Aggregate(results, 3, "local")
	if agg.TotalRequests != 3 || agg.SuccessfulRequests != 0 || agg.SuccessRate != 0 {
		t.Fatalf("unexpected counts: %+v", agg)
	}
	if agg.AvgTimeToFirstToken != 0 || agg.AvgTokensPerSecond != 0 || agg.RequestsPerSecond != 0 {
		t.Fatalf("expected zeroed metrics, got %+v", agg)
	}
	if agg.Errors["HTTP 503: busy"] != 2 || agg.Errors["OPENAI_API_KEY not set"] != 1 {
		t.Fatalf("error histogram = %v", agg.Errors)
	}
}

func TestAggregateSuccessRate(t *testing.T) {
	cases := []struct {
		ok, failed int
		want       float64
	}{
		{ok: 1, failed: 0, want: 100},
		{ok: 3, failed: 1, want: 75},
		{ok: 1, failed: 2, want: 100.0 / 3},
		{ok: 0, failed: 4, want: 0},
	}
	for _, tc := range cases {
		var results []api.RequestResult
		for i := 0; i < tc.ok; i++ {
			results = append(results, success(100*time.Millisecond, 10))
		}
		for i := 0; i < tc.failed; i++ {
			results = append(results, api.FailedResult("local", "boom"))
		}
		agg := Aggregate(results, len(results), "local")
		if agg.TotalRequests != tc.ok+tc.failed || agg.SuccessfulRequests != tc.ok {
			t.Fatalf("%d/%d: counts %+v", tc.ok, tc.failed, agg)
		}
		if math.Abs(agg.SuccessRate-tc.want) > 1e-9 {
			t.Fatalf("%d/%d: success rate = %v, want %v", tc.ok, tc.failed, agg.SuccessRate, tc.want)
		}
	}
}

func TestAggregateThroughputSumVersusMean(t *testing.T) {
	results := []api.RequestResult{
		success(200*time.Millisecond, 10),
		success(400*time.Millisecond, 15),
	}
	agg := Aggregate(results, 2, "local")
	if agg.TotalThroughput != 25 {
		t.Fatalf("total throughput = %v, want 25", agg.TotalThroughput)
	}
	if agg.AvgTokensPerSecond != 12.5 {
		t.Fatalf("avg tokens/s = %v, want 12.5", agg.AvgTokensPerSecond)
	}
	if agg.AvgTimeToFirstToken != 300*time.Millisecond {
		t.Fatalf("avg ttft = %v", agg.AvgTimeToFirstToken)
	}
	if agg.MinTimeToFirstToken != 200*time.Millisecond || agg.MaxTimeToFirstToken != 400*time.Millisecond {
		t.Fatalf("min/max ttft = %v/%v", agg.MinTimeToFirstToken, agg.MaxTimeToFirstToken)
	}
	if agg.RequestsPerSecond != 2 {
		t.Fatalf("requests/s = %v, want the concurrency level", agg.RequestsPerSecond)
	}
}

func TestAggregateSuccessWithoutTokens(t *testing.T) {
	empty := api.RequestResult{Backend: "local", Success: true, TotalTime: time.Second}
	results := []api.RequestResult{success(100*time.Millisecond, 20), empty}
	agg := Aggregate(results, 2, "local")

	if agg.SuccessfulRequests != 2 || agg.SuccessRate != 100 {
		t.Fatalf("zero-token stream must count as success: %+v", agg)
	}
	if agg.AvgTimeToFirstToken != 100*time.Millisecond {
		t.Fatalf("avg ttft = %v, want only the request with a first token", agg.AvgTimeToFirstToken)
	}
	if agg.AvgTokensPerSecond != 20 || agg.TotalThroughput != 20 {
		t.Fatalf("zero rates must be excluded: avg %v total %v", agg.AvgTokensPerSecond, agg.TotalThroughput)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	results := []api.RequestResult{
		success(100*time.Millisecond, 5),
		api.FailedResult("local", "x"),
		success(300*time.Millisecond, 9),
		success(200*time.Millisecond, 7),
	}
	reversed := make([]api.RequestResult, len(results))
	for i, r := range results {
		reversed[len(results)-1-i] = r
	}
	a := Aggregate(results, 4, "local")
	b := Aggregate(reversed, 4, "local")
	if a.AvgTimeToFirstToken != b.AvgTimeToFirstToken || a.TotalThroughput != b.TotalThroughput ||
		a.P95TimeToFirstToken != b.P95TimeToFirstToken || a.SuccessRate != b.SuccessRate {
		t.Fatalf("aggregate depends on order: %+v vs %+v", a, b)
	}
}

func TestAggregatePercentiles(t *testing.T) {
	var results []api.RequestResult
	for i := 1; i <= 100; i++ {
		results = append(results, success(time.Duration(i)*10*time.Millisecond, 1))
	}
	agg := Aggregate(results, 100, "local")

	near := func(got, want time.Duration) bool {
		diff := got - want
		if diff < 0 {
			diff = -diff
		}
		return diff <= want/100
	}
	if !near(agg.P50TimeToFirstToken, 500*time.Millisecond) {
		t.Fatalf("p50 = %v, want ~500ms", agg.P50TimeToFirstToken)
	}
	if !near(agg.P95TimeToFirstToken, 950*time.Millisecond) {
		t.Fatalf("p95 = %v, want ~950ms", agg.P95TimeToFirstToken)
	}
}

func TestTrialAggregateObservedRate(t *testing.T) {
	trial := Trial{
		Backend:     "local",
		Concurrency: 4,
		Results: []api.RequestResult{
			success(100*time.Millisecond, 10),
			success(100*time.Millisecond, 10),
			api.FailedResult("local", "x"),
			api.FailedResult("local", "x"),
		},
		Elapsed: 2 * time.Second,
	}
	agg := trial.Aggregate()
	if agg.ObservedRequestsPerSecond != 1 {
		t.Fatalf("observed req/s = %v, want 1", agg.ObservedRequestsPerSecond)
	}
	if agg.WallTime != 2*time.Second {
		t.Fatalf("wall time = %v", agg.WallTime)
	}
	if agg.RequestsPerSecond != 4 {
		t.Fatalf("nominal req/s = %v, want 4", agg.RequestsPerSecond)
	}
}
