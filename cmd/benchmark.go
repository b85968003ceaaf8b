package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Yoosu-L/llmstreambench/internal/api"
	"github.com/Yoosu-L/llmstreambench/internal/logging"
	"github.com/Yoosu-L/llmstreambench/internal/utils"
)

func (benchmark *Benchmark) runCli(ctx context.Context) error {
	reporter := utils.NewReporter(benchmark.Out, benchmark.Settings.ResponsePreviewLength)
	result, err := benchmark.sweep(reporter).Run(ctx)
	if err != nil {
		logging.LogEvent("Benchmark interrupted: %v", err)
	}

	fmt.Fprintf(benchmark.Out, "\nBenchmark finished in %s\n", result.Duration.Round(time.Millisecond))
	if mdErr := benchmark.saveMarkdown(result); mdErr != nil {
		return mdErr
	}
	return err
}

func (benchmark *Benchmark) run(ctx context.Context) (BenchmarkResult, error) {
	result := BenchmarkResult{}
	for _, b := range benchmark.Backends {
		result.Backends = append(result.Backends, b.Name)
	}

	sweep, err := benchmark.sweep(nil).Run(ctx)
	result.SweepResult = sweep
	if err != nil {
		logging.LogEvent("Benchmark interrupted: %v", err)
	}
	if mdErr := benchmark.saveMarkdown(sweep); mdErr != nil {
		return result, mdErr
	}
	return result, err
}

// once runs the sequential comparison: an optional warmup of the baseline,
// then for every contender one baseline request followed by one contender
// request.
func (benchmark *Benchmark) once(ctx context.Context) (OnceResult, error) {
	settings := benchmark.Settings
	result := OnceResult{Prompt: settings.Prompt}
	if len(benchmark.Backends) < 2 {
		return result, errors.New("at least two backends are required")
	}

	var reporter *utils.Reporter
	if settings.Output == "text" {
		reporter = utils.NewReporter(benchmark.Out, settings.ResponsePreviewLength)
	}
	baseline := benchmark.Backends[0]

	if settings.Warmup {
		warm := benchmark.Client.Run(ctx, baseline, settings.Prompt)
		result.Warmup = &warm
		if reporter != nil {
			reporter.PrintWarmup(warm)
		}
		if err := utils.Sleep(ctx, settings.Delays.Warmup); err != nil {
			return result, err
		}
	}

	for i, contender := range benchmark.Backends[1:] {
		if i > 0 {
			if err := utils.Sleep(ctx, settings.Delays.BetweenTests); err != nil {
				return result, err
			}
		}
		a := benchmark.Client.Run(ctx, baseline, settings.Prompt)
		b := benchmark.Client.Run(ctx, contender, settings.Prompt)
		round := OnceRound{Baseline: a, Contender: b, Metrics: utils.CompareRequests(a, b)}
		result.Rounds = append(result.Rounds, round)

		if reporter != nil {
			reporter.PrintRequest(a)
			reporter.PrintRequest(b)
			reporter.PrintRequestComparison(a, b)
		}
	}
	return result, ctx.Err()
}

func (benchmark *Benchmark) sweep(reporter *utils.Reporter) *utils.Sweep {
	settings := benchmark.Settings
	s := &utils.Sweep{
		Requester:     benchmark.Client,
		Baseline:      benchmark.Backends[0],
		Contenders:    benchmark.Backends[1:],
		Prompt:        settings.Prompt,
		Levels:        settings.ConcurrencyLevels,
		Warmup:        settings.Warmup,
		WarmupDelay:   settings.Delays.Warmup,
		BetweenTests:  settings.Delays.BetweenTests,
		BetweenLevels: settings.Delays.BetweenLevels,
		Reporter:      reporter,
		Sink:          benchmark.Sink,
	}
	if benchmark.ShowProgress {
		s.ProgressOutput = os.Stderr
	}
	return s
}

func (benchmark *Benchmark) saveMarkdown(result utils.SweepResult) error {
	path := benchmark.Settings.Markdown
	if path == "" {
		return nil
	}
	if err := utils.SaveResultsToMD(path, result); err != nil {
		return err
	}
	logging.LogEvent("Results saved to %s", path)
	return nil
}

var _ utils.Requester = (*api.Client)(nil)
