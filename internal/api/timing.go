package api

import (
	"strings"
	"time"
)

// TimingSample is a read-only snapshot of one request's timing.
type TimingSample struct {
	Start      time.Time
	FirstToken *time.Duration
	TokenCount int
	Text       string
	Elapsed    time.Duration
}

// TokensPerSecond is the rate of content fragments after the first one
// arrived, or 0 when no first token was seen.
func (s TimingSample) TokensPerSecond() float64 {
	if s.FirstToken == nil {
		return 0
	}
	generation := s.Elapsed - *s.FirstToken
	if generation <= 0 {
		return 0
	}
	return float64(s.TokenCount) / generation.Seconds()
}

// TimingTracker accumulates content fragments for a single request.
// It is owned by one goroutine and is not safe for concurrent use.
type TimingTracker struct {
	now        func() time.Time
	start      time.Time
	firstToken *time.Duration
	tokenCount int
	text       strings.Builder
}

// NewTimingTracker starts the clock at the moment of the call.
func NewTimingTracker() *TimingTracker {
	return newTimingTracker(time.Now)
}

func newTimingTracker(now func() time.Time) *TimingTracker {
	return &TimingTracker{now: now, start: now()}
}

// RecordToken registers one content fragment.
func (t *TimingTracker) RecordToken(content string) {
	t.tokenCount++
	if t.firstToken == nil {
		elapsed := t.now().Sub(t.start)
		t.firstToken = &elapsed
	}
	t.text.WriteString(content)
}

// Finalize stops the clock and snapshots what the stream produced.
func (t *TimingTracker) Finalize() TimingSample {
	sample := TimingSample{
		Start:      t.start,
		TokenCount: t.tokenCount,
		Text:       t.text.String(),
		Elapsed:    t.now().Sub(t.start),
	}
	if t.firstToken != nil {
		first := *t.firstToken
		sample.FirstToken = &first
	}
	return sample
}
