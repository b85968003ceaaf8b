package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/Yoosu-L/llmstreambench/internal/api"
	"github.com/Yoosu-L/llmstreambench/internal/logging"

	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// Requester runs a single measured request. *api.Client satisfies it.
type Requester interface {
	Run(ctx context.Context, backend api.Backend, prompt string) api.RequestResult
}

// SpeedMeasurement fires Concurrency identical requests at one backend at once.
type SpeedMeasurement struct {
	Requester   Requester
	Backend     api.Backend
	Prompt      string
	Concurrency int
	Progress    *progressbar.ProgressBar
}

// Trial holds every outcome of one concurrency level against one backend.
type Trial struct {
	Backend     string
	Concurrency int
	Results     []api.RequestResult
	Elapsed     time.Duration
}

// Run dispatches all requests without a worker limit and waits for every one
// of them. A request that panics is recorded as a failure; it never affects
// its siblings.
func (setup *SpeedMeasurement) Run(ctx context.Context) Trial {
	start := time.Now()

	p := pool.NewWithResults[api.RequestResult]()
	for i := 0; i < setup.Concurrency; i++ {
		p.Go(func() api.RequestResult {
			result := setup.runOne(ctx)
			if setup.Progress != nil {
				_ = setup.Progress.Add(1)
			}
			return result
		})
	}
	results := p.Wait()

	return Trial{
		Backend:     setup.Backend.Name,
		Concurrency: setup.Concurrency,
		Results:     results,
		Elapsed:     time.Since(start),
	}
}

func (setup *SpeedMeasurement) runOne(ctx context.Context) (result api.RequestResult) {
	var catcher panics.Catcher
	catcher.Try(func() {
		result = setup.Requester.Run(ctx, setup.Backend, setup.Prompt)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		logging.LogEvent("request to %s panicked: %v", setup.Backend.Name, recovered.Value)
		return api.FailedResult(setup.Backend.Name, fmt.Sprint(recovered.Value))
	}
	return result
}

// Aggregate reduces the trial and adds the wall-clock request rate.
func (trial Trial) Aggregate() AggregateResult {
	agg := Aggregate(trial.Results, trial.Concurrency, trial.Backend)
	agg.WallTime = trial.Elapsed
	if trial.Elapsed > 0 {
		agg.ObservedRequestsPerSecond = float64(agg.SuccessfulRequests) / trial.Elapsed.Seconds()
	}
	return agg
}
