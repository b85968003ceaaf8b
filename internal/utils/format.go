package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Yoosu-L/llmstreambench/internal/api"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

const ruleWidth = 60

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	winColor  = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed)
)

// Reporter renders human-readable benchmark output.
type Reporter struct {
	out           io.Writer
	previewLength int
}

// NewReporter writes to out, cutting response previews to previewLength runes.
func NewReporter(out io.Writer, previewLength int) *Reporter {
	return &Reporter{out: out, previewLength: previewLength}
}

// Preview shortens text to n runes, marking the cut with an ellipsis.
func Preview(text string, n int) string {
	runes := []rune(text)
	if n < 0 || len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func (r *Reporter) rule(ch string) {
	fmt.Fprintln(r.out, mutedStyle.Render(strings.Repeat(ch, ruleWidth)))
}

func (r *Reporter) banner(title string) {
	fmt.Fprintln(r.out)
	r.rule("=")
	fmt.Fprintln(r.out, titleStyle.Render(title))
	r.rule("=")
}

// PrintHeader opens a sweep.
func (r *Reporter) PrintHeader(backends []string, prompt string, levels []int) {
	r.banner("CONCURRENCY TESTING: " + strings.Join(backends, " vs "))
	fmt.Fprintf(r.out, "Test prompt: %s\n", prompt)
	fmt.Fprintf(r.out, "Concurrency levels: %s\n", joinInts(levels))
}

// PrintWarmup reports the cold-start request, which is never compared.
func (r *Reporter) PrintWarmup(result api.RequestResult) {
	r.banner("COLD START WARMUP: " + result.Backend)
	fmt.Fprintln(r.out, mutedStyle.Render("Warm-up results are not used for comparison"))
	if !result.Success {
		fmt.Fprintln(r.out, failColor.Sprintf("Warm-up failed: %s", result.Error))
		fmt.Fprintln(r.out, "Proceeding with tests, but results may include cold start penalties")
		return
	}
	fmt.Fprintf(r.out, "%s warmed up successfully\n", result.Backend)
	fmt.Fprintf(r.out, "Response: %s\n", Preview(result.Response, r.previewLength))
}

// PrintRequest reports one request in detail.
func (r *Reporter) PrintRequest(result api.RequestResult) {
	r.banner("BACKEND: " + result.Backend)
	if !result.Success {
		fmt.Fprintln(r.out, failColor.Sprintf("Error: %s", result.Error))
		return
	}
	fmt.Fprintln(r.out, "Success")
	fmt.Fprintf(r.out, "Response: %s\n", Preview(result.Response, r.previewLength))
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, sectionStyle.Render("METRICS:"))
	if result.TimeToFirstToken != nil {
		fmt.Fprintf(r.out, "  Time to first token: %.3fs\n", result.TimeToFirstToken.Seconds())
	} else {
		fmt.Fprintln(r.out, "  Time to first token: n/a (no content received)")
	}
	fmt.Fprintf(r.out, "  Tokens per second: %.1f\n", result.TokensPerSecond)
}

// PrintAggregate reports one trial.
func (r *Reporter) PrintAggregate(agg AggregateResult) {
	r.banner("CONCURRENCY RESULTS: " + agg.Backend)
	fmt.Fprintf(r.out, "Concurrency Level: %d concurrent requests\n", agg.ConcurrencyLevel)
	rate := fmt.Sprintf("Success Rate: %.1f%% (%d/%d)", agg.SuccessRate, agg.SuccessfulRequests, agg.TotalRequests)
	if agg.SuccessfulRequests < agg.TotalRequests {
		rate = failColor.Sprint(rate)
	}
	fmt.Fprintln(r.out, rate)
	fmt.Fprintf(r.out, "Requests per Second: %.1f req/s (observed %.2f req/s over %s)\n",
		agg.RequestsPerSecond, agg.ObservedRequestsPerSecond, agg.WallTime.Round(time.Millisecond))

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, sectionStyle.Render("LATENCY METRICS:"))
	if agg.TTFTSamples == 0 {
		fmt.Fprintln(r.out, "  Time to first token: n/a (no tokens received)")
	} else {
		fmt.Fprintf(r.out, "  Average time to first token: %.3fs\n", agg.AvgTimeToFirstToken.Seconds())
		fmt.Fprintf(r.out, "  Min time to first token: %.3fs\n", agg.MinTimeToFirstToken.Seconds())
		fmt.Fprintf(r.out, "  Max time to first token: %.3fs\n", agg.MaxTimeToFirstToken.Seconds())
		fmt.Fprintf(r.out, "  P50 / P95 time to first token: %.3fs / %.3fs\n",
			agg.P50TimeToFirstToken.Seconds(), agg.P95TimeToFirstToken.Seconds())
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, sectionStyle.Render("THROUGHPUT METRICS:"))
	fmt.Fprintf(r.out, "  Average tokens per second (per request): %.1f\n", agg.AvgTokensPerSecond)
	fmt.Fprintf(r.out, "  Total system throughput: %.1f tokens/sec\n", agg.TotalThroughput)

	if len(agg.Errors) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, sectionStyle.Render("ERRORS:"))
		for msg, count := range agg.Errors {
			fmt.Fprintln(r.out, failColor.Sprintf("  %dx %s", count, Preview(msg, 120)))
		}
	}
}

// PrintComparison reports a head-to-head at one concurrency level.
func (r *Reporter) PrintComparison(report ComparisonReport) {
	r.banner(fmt.Sprintf("COMPARISON - %d concurrent requests", report.ConcurrencyLevel))
	for _, side := range []AggregateResult{report.A, report.B} {
		if side.SuccessfulRequests == 0 {
			fmt.Fprintln(r.out, failColor.Sprintf("%s: no successful requests", side.Backend))
		}
	}
	r.printMetrics(report.A.Backend, report.B.Backend, report.Metrics)
}

// PrintRequestComparison reports a single-request head-to-head.
func (r *Reporter) PrintRequestComparison(a, b api.RequestResult) {
	r.banner("COMPARISON")
	if !a.Success || !b.Success {
		fmt.Fprintln(r.out, failColor.Sprint("Cannot compare - one or both backends failed"))
		return
	}
	r.printMetrics(a.Backend, b.Backend, CompareRequests(a, b))
}

func (r *Reporter) printMetrics(nameA, nameB string, metrics []MetricComparison) {
	for _, m := range metrics {
		if !m.Comparable {
			fmt.Fprintf(r.out, "%-28s: %s\n", m.Name, mutedStyle.Render("not comparable"))
			continue
		}
		fmt.Fprintf(r.out, "%-28s: %s: %.3f%s | %s: %.3f%s\n", m.Name, nameA, m.A, m.Unit, nameB, m.B, m.Unit)
		if m.Winner == Tie {
			fmt.Fprintf(r.out, "%30s%s\n", "", "tie")
			continue
		}
		fmt.Fprintf(r.out, "%30s%s\n", "", winColor.Sprintf("%s wins by %.1f%%", m.Winner, m.DiffPct))
	}
}

// SaveResultsToMD writes one markdown table row per backend and level.
func SaveResultsToMD(path string, result SweepResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Streaming benchmark\n\n")
	fmt.Fprintf(&b, "- Started: %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "- Prompt: %s\n\n", result.Prompt)
	b.WriteString("| Backend | Concurrency | Success Rate (%) | Avg TTFT (s) | Min TTFT (s) | Max TTFT (s) | P95 TTFT (s) | Avg tok/s | Total tok/s | Observed req/s |\n")
	b.WriteString("|---------|-------------|------------------|--------------|--------------|--------------|--------------|-----------|-------------|----------------|\n")
	for _, level := range result.Levels {
		for _, agg := range level.Aggregates {
			fmt.Fprintf(&b, "| %s | %d | %.1f | %.3f | %.3f | %.3f | %.3f | %.1f | %.1f | %.2f |\n",
				agg.Backend,
				agg.ConcurrencyLevel,
				agg.SuccessRate,
				agg.AvgTimeToFirstToken.Seconds(),
				agg.MinTimeToFirstToken.Seconds(),
				agg.MaxTimeToFirstToken.Seconds(),
				agg.P95TimeToFirstToken.Seconds(),
				agg.AvgTokensPerSecond,
				agg.TotalThroughput,
				agg.ObservedRequestsPerSecond,
			)
		}
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating results directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("error writing markdown results: %w", err)
	}
	return nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
