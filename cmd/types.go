package main

import (
	"io"

	"github.com/Yoosu-L/llmstreambench/internal/api"
	"github.com/Yoosu-L/llmstreambench/internal/config"
	"github.com/Yoosu-L/llmstreambench/internal/utils"
)

type Benchmark struct {
	Settings config.Settings
	// Backends[0] is the baseline every other backend is compared against.
	Backends     []api.Backend
	Client       *api.Client
	Out          io.Writer
	Sink         utils.ResultSink
	ShowProgress bool
}

type BenchmarkResult struct {
	Backends          []string `json:"backends" yaml:"backends"`
	utils.SweepResult `yaml:",inline"`
}

// OnceRound is one sequential head-to-head between the baseline and a contender.
type OnceRound struct {
	Baseline  api.RequestResult        `json:"baseline" yaml:"baseline"`
	Contender api.RequestResult        `json:"contender" yaml:"contender"`
	Metrics   []utils.MetricComparison `json:"metrics" yaml:"metrics"`
}

type OnceResult struct {
	Prompt string             `json:"prompt" yaml:"prompt"`
	Warmup *api.RequestResult `json:"warmup,omitempty" yaml:"warmup,omitempty"`
	Rounds []OnceRound        `json:"rounds" yaml:"rounds"`
}
