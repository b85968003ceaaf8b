package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Yoosu-L/llmstreambench/internal/api"
	"github.com/Yoosu-L/llmstreambench/internal/logging"

	"github.com/schollz/progressbar/v3"
)

// ResultSink receives finished aggregates and comparisons as they are produced.
type ResultSink interface {
	PublishAggregate(ctx context.Context, agg AggregateResult) error
	PublishComparison(ctx context.Context, report ComparisonReport) error
}

// LevelReport holds everything measured at one concurrency level.
type LevelReport struct {
	Level       int                `json:"level" yaml:"level"`
	Aggregates  []AggregateResult  `json:"aggregates" yaml:"aggregates"`
	Comparisons []ComparisonReport `json:"comparisons" yaml:"comparisons"`
}

// SweepResult is the full output of a sweep.
type SweepResult struct {
	Prompt    string             `json:"prompt" yaml:"prompt"`
	StartedAt time.Time          `json:"started_at" yaml:"started-at"`
	Duration  time.Duration      `json:"duration" yaml:"duration"`
	Warmup    *api.RequestResult `json:"warmup,omitempty" yaml:"warmup,omitempty"`
	Levels    []LevelReport      `json:"levels" yaml:"levels"`
}

// Sweep measures a baseline backend against each contender at every
// concurrency level, one trial at a time.
type Sweep struct {
	Requester  Requester
	Baseline   api.Backend
	Contenders []api.Backend
	Prompt     string
	Levels     []int

	Warmup        bool
	WarmupDelay   time.Duration
	BetweenTests  time.Duration
	BetweenLevels time.Duration

	// Reporter and Sink are optional.
	Reporter *Reporter
	Sink     ResultSink
	// ProgressOutput enables a progress bar per trial when set.
	ProgressOutput io.Writer
}

// Run executes the sweep. Request failures only show up in the statistics; the
// returned error is set when ctx is cancelled, together with the partial result.
func (s *Sweep) Run(ctx context.Context) (SweepResult, error) {
	result := SweepResult{Prompt: s.Prompt, StartedAt: time.Now()}

	if s.Reporter != nil {
		names := []string{s.Baseline.Name}
		for _, c := range s.Contenders {
			names = append(names, c.Name)
		}
		s.Reporter.PrintHeader(names, s.Prompt, s.Levels)
	}

	if s.Warmup {
		logging.LogEvent("Warming up %s", s.Baseline.Name)
		warm := s.Requester.Run(ctx, s.Baseline, s.Prompt)
		result.Warmup = &warm
		if s.Reporter != nil {
			s.Reporter.PrintWarmup(warm)
		}
		if err := Sleep(ctx, s.WarmupDelay); err != nil {
			result.Duration = time.Since(result.StartedAt)
			return result, err
		}
	}

	for i, level := range s.Levels {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(result.StartedAt)
			return result, err
		}
		report, err := s.runLevel(ctx, level)
		result.Levels = append(result.Levels, report)
		if err != nil {
			result.Duration = time.Since(result.StartedAt)
			return result, err
		}
		if i < len(s.Levels)-1 {
			logging.LogEvent("Waiting %s before next concurrency level", s.BetweenLevels)
			if err := Sleep(ctx, s.BetweenLevels); err != nil {
				result.Duration = time.Since(result.StartedAt)
				return result, err
			}
		}
	}

	result.Duration = time.Since(result.StartedAt)
	return result, nil
}

func (s *Sweep) runLevel(ctx context.Context, level int) (LevelReport, error) {
	report := LevelReport{Level: level}
	logging.LogEvent("Testing concurrency level %d", level)

	baseline := s.measure(ctx, s.Baseline, level)
	report.Aggregates = append(report.Aggregates, baseline)

	for _, contender := range s.Contenders {
		if err := Sleep(ctx, s.BetweenTests); err != nil {
			return report, err
		}
		agg := s.measure(ctx, contender, level)
		report.Aggregates = append(report.Aggregates, agg)

		comparison := Compare(baseline, agg)
		report.Comparisons = append(report.Comparisons, comparison)
		if s.Reporter != nil {
			s.Reporter.PrintComparison(comparison)
		}
		if s.Sink != nil {
			if err := s.Sink.PublishComparison(ctx, comparison); err != nil {
				logging.LogEvent("result sink: %v", err)
			}
		}
	}
	return report, nil
}

func (s *Sweep) measure(ctx context.Context, backend api.Backend, level int) AggregateResult {
	logging.LogEvent("Running %d concurrent requests against %s", level, backend.Name)
	setup := SpeedMeasurement{
		Requester:   s.Requester,
		Backend:     backend,
		Prompt:      s.Prompt,
		Concurrency: level,
	}
	if s.ProgressOutput != nil {
		setup.Progress = progressbar.NewOptions(level,
			progressbar.OptionSetWriter(s.ProgressOutput),
			progressbar.OptionSetDescription(fmt.Sprintf("%s x%d", backend.Name, level)),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	agg := setup.Run(ctx).Aggregate()
	if setup.Progress != nil {
		_ = setup.Progress.Finish()
	}
	if s.Reporter != nil {
		s.Reporter.PrintAggregate(agg)
	}
	if s.Sink != nil {
		if err := s.Sink.PublishAggregate(ctx, agg); err != nil {
			logging.LogEvent("result sink: %v", err)
		}
	}
	return agg
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsCancelled reports whether err came from cancelling the sweep.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
