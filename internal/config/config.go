// Package config loads benchmark settings from a config file, environment
// variables and command-line flags, and turns them into backend descriptors.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Yoosu-L/llmstreambench/internal/api"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. STREAMBENCH_PROMPT.
	EnvPrefix = "STREAMBENCH"

	DefaultPrompt       = "Hello! Can I have a cup of coffee?"
	DefaultSystemPrompt = "You are a helpful multilingual assistant specializing in Southeast Asian languages. You are to translate the given text into Bahasa Indonesia. Only return the translated text, nothing else. Do not add any explanations or additional text, or show your reasoning."
	DefaultLevels       = "1,5,10,25,50"
)

// ErrNoBackends is returned when fewer than two backends are configured.
var ErrNoBackends = errors.New("at least two backends are required")

// lookupEnv is swapped in tests.
var lookupEnv = os.LookupEnv

// DefaultEnvFile is read, when present, before credentials are resolved.
const DefaultEnvFile = ".env"

// LoadEnvFile copies variables from a dotenv file into the process
// environment without overriding ones already set. An empty path means
// DefaultEnvFile, which may be absent; an explicit path must exist.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error loading env file %s: %w", path, err)
	}
	return nil
}

// Parameters are optional generation settings; nil means the backend default.
type Parameters struct {
	Temperature *float64 `mapstructure:"temperature" json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int     `mapstructure:"max_tokens" json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TopP        *float64 `mapstructure:"top_p" json:"top_p,omitempty" yaml:"top_p,omitempty"`
}

// Backend is one endpoint as written in the config file.
type Backend struct {
	Name         string            `mapstructure:"name" json:"name" yaml:"name"`
	URL          string            `mapstructure:"url" json:"url,omitempty" yaml:"url,omitempty"`
	URLEnv       string            `mapstructure:"urlEnv" json:"urlEnv,omitempty" yaml:"urlEnv,omitempty"`
	Model        string            `mapstructure:"model" json:"model" yaml:"model"`
	APIKeyEnv    string            `mapstructure:"apiKeyEnv" json:"apiKeyEnv,omitempty" yaml:"apiKeyEnv,omitempty"`
	RequireAuth  bool              `mapstructure:"requireAuth" json:"requireAuth" yaml:"requireAuth"`
	SystemPrompt *string           `mapstructure:"systemPrompt" json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	Headers      map[string]string `mapstructure:"headers" json:"headers,omitempty" yaml:"headers,omitempty"`
	Parameters   Parameters        `mapstructure:"parameters" json:"parameters" yaml:"parameters"`

	// APIKey is resolved from APIKeyEnv once at load time and never printed.
	APIKey string `mapstructure:"-" json:"-" yaml:"-"`
}

// Delays pace the sweep.
type Delays struct {
	Warmup        time.Duration `mapstructure:"warmup" json:"warmup" yaml:"warmup"`
	BetweenTests  time.Duration `mapstructure:"betweenTests" json:"betweenTests" yaml:"betweenTests"`
	BetweenLevels time.Duration `mapstructure:"betweenLevels" json:"betweenLevels" yaml:"betweenLevels"`
}

// Pool sizes the shared connection pool and per-request timeouts.
type Pool struct {
	ConnectionLimit  int           `mapstructure:"connectionLimit" json:"connectionLimit" yaml:"connectionLimit"`
	PerHostLimit     int           `mapstructure:"perHostLimit" json:"perHostLimit" yaml:"perHostLimit"`
	KeepaliveTimeout time.Duration `mapstructure:"keepaliveTimeout" json:"keepaliveTimeout" yaml:"keepaliveTimeout"`
	TotalTimeout     time.Duration `mapstructure:"totalTimeout" json:"totalTimeout" yaml:"totalTimeout"`
	ConnectTimeout   time.Duration `mapstructure:"connectTimeout" json:"connectTimeout" yaml:"connectTimeout"`
	ReadTimeout      time.Duration `mapstructure:"readTimeout" json:"readTimeout" yaml:"readTimeout"`
}

// Redis configures the optional result sink. An empty Addr disables it.
type Redis struct {
	Addr     string `mapstructure:"addr" json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `mapstructure:"password" json:"-" yaml:"-"`
	DB       int    `mapstructure:"db" json:"db" yaml:"db"`
	Key      string `mapstructure:"key" json:"key" yaml:"key"`
}

// Settings is the fully resolved configuration of one run.
type Settings struct {
	Prompt                string    `mapstructure:"prompt" json:"prompt" yaml:"prompt"`
	SystemPrompt          string    `mapstructure:"systemPrompt" json:"systemPrompt" yaml:"systemPrompt"`
	ConcurrencyLevels     []int     `mapstructure:"concurrencyLevels" json:"concurrencyLevels" yaml:"concurrencyLevels"`
	Warmup                bool      `mapstructure:"warmup" json:"warmup" yaml:"warmup"`
	Delays                Delays    `mapstructure:"delays" json:"delays" yaml:"delays"`
	Pool                  Pool      `mapstructure:"pool" json:"pool" yaml:"pool"`
	ResponsePreviewLength int       `mapstructure:"responsePreviewLength" json:"responsePreviewLength" yaml:"responsePreviewLength"`
	Backends              []Backend `mapstructure:"backends" json:"backends" yaml:"backends"`
	LogFile               string    `mapstructure:"logFile" json:"logFile,omitempty" yaml:"logFile,omitempty"`
	Debug                 bool      `mapstructure:"debug" json:"debug" yaml:"debug"`
	Output                string    `mapstructure:"output" json:"output" yaml:"output"`
	Markdown              string    `mapstructure:"markdown" json:"markdown,omitempty" yaml:"markdown,omitempty"`
	Redis                 Redis     `mapstructure:"redis" json:"redis" yaml:"redis"`

	ConfigPath string `mapstructure:"-" json:"-" yaml:"-"`
}

// New returns a viper instance carrying every default and the environment
// binding. Flags are bound on top of it by the CLI.
func New() *viper.Viper {
	v := viper.New()
	pool := api.DefaultBenchmarkConfig()

	v.SetDefault("prompt", DefaultPrompt)
	v.SetDefault("systemPrompt", DefaultSystemPrompt)
	v.SetDefault("concurrencyLevels", DefaultLevels)
	v.SetDefault("warmup", true)
	v.SetDefault("delays.warmup", 5*time.Second)
	v.SetDefault("delays.betweenTests", 2*time.Second)
	v.SetDefault("delays.betweenLevels", 5*time.Second)
	v.SetDefault("pool.connectionLimit", pool.ConnectionLimit)
	v.SetDefault("pool.perHostLimit", pool.PerHostLimit)
	v.SetDefault("pool.keepaliveTimeout", pool.KeepaliveTimeout)
	v.SetDefault("pool.totalTimeout", pool.TotalTimeout)
	v.SetDefault("pool.connectTimeout", pool.ConnectTimeout)
	v.SetDefault("pool.readTimeout", pool.ReadTimeout)
	v.SetDefault("responsePreviewLength", pool.ResponsePreviewLength)
	v.SetDefault("logFile", "")
	v.SetDefault("debug", false)
	v.SetDefault("output", "text")
	v.SetDefault("markdown", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "streambench:results")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and resolves the result.
// A missing path means defaults, environment and flags only.
func Load(v *viper.Viper, path string) (Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("could not read config file %q: %w", path, err)
		}
	}

	var s Settings
	// concurrencyLevels may arrive as "1,5,10" from a flag or the environment.
	levels, err := levelsFrom(v.Get("concurrencyLevels"))
	if err != nil {
		return Settings{}, err
	}
	v.Set("concurrencyLevels", levels)
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	s.ConfigPath = v.ConfigFileUsed()

	if len(s.Backends) == 0 {
		s.Backends = DefaultBackends()
	}
	for i := range s.Backends {
		s.Backends[i].resolve()
	}

	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// resolve reads the endpoint and key environment variables exactly once.
func (b *Backend) resolve() {
	if b.URL == "" && b.URLEnv != "" {
		if url, ok := lookupEnv(b.URLEnv); ok {
			b.URL = strings.TrimSpace(url)
		}
	}
	if b.APIKeyEnv != "" {
		if key, ok := lookupEnv(b.APIKeyEnv); ok {
			b.APIKey = strings.TrimSpace(key)
		}
	}
}

// DefaultBackends pairs the self-hosted SEA-LION deployment with the OpenAI
// model it is compared against.
func DefaultBackends() []Backend {
	temperature := 0.1
	maxTokens := 150
	topP := 0.9
	return []Backend{
		{
			Name:   "SEA-LION-v3.5-8B-R",
			URLEnv: "MODAL_URL",
			Model:  "aisingapore/Llama-SEA-LION-v3.5-8B-R",
		},
		{
			Name:        "gpt-4.1-nano-2025-04-14",
			URL:         "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4.1-nano-2025-04-14",
			APIKeyEnv:   "OPENAI_API_KEY",
			RequireAuth: true,
			Parameters: Parameters{
				Temperature: &temperature,
				MaxTokens:   &maxTokens,
				TopP:        &topP,
			},
		},
	}
}

// ParseConcurrencyLevels parses a comma-separated list such as "1,5,10".
func ParseConcurrencyLevels(raw string) ([]int, error) {
	var levels []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		level, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid concurrency level %q: %w", part, err)
		}
		if level < 1 {
			return nil, fmt.Errorf("invalid concurrency level %d: must be at least 1", level)
		}
		levels = append(levels, level)
	}
	if len(levels) == 0 {
		return nil, errors.New("no concurrency levels given")
	}
	return levels, nil
}

func levelsFrom(raw any) ([]int, error) {
	switch v := raw.(type) {
	case nil:
		return ParseConcurrencyLevels(DefaultLevels)
	case string:
		return ParseConcurrencyLevels(v)
	case []int:
		return v, nil
	case []any:
		levels := make([]int, 0, len(v))
		for _, item := range v {
			level, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(item)))
			if err != nil {
				return nil, fmt.Errorf("invalid concurrency level %v: %w", item, err)
			}
			levels = append(levels, level)
		}
		return levels, nil
	case []string:
		return ParseConcurrencyLevels(strings.Join(v, ","))
	default:
		return nil, fmt.Errorf("invalid concurrencyLevels value %v", raw)
	}
}

// BenchmarkConfig converts the pool settings for the HTTP client.
func (s Settings) BenchmarkConfig() api.BenchmarkConfig {
	return api.BenchmarkConfig{
		ConnectionLimit:       s.Pool.ConnectionLimit,
		PerHostLimit:          s.Pool.PerHostLimit,
		KeepaliveTimeout:      s.Pool.KeepaliveTimeout,
		TotalTimeout:          s.Pool.TotalTimeout,
		ConnectTimeout:        s.Pool.ConnectTimeout,
		ReadTimeout:           s.Pool.ReadTimeout,
		ResponsePreviewLength: s.ResponsePreviewLength,
	}
}

// Descriptors returns the runtime form of every configured backend.
func (s Settings) Descriptors() []api.Backend {
	out := make([]api.Backend, 0, len(s.Backends))
	for _, b := range s.Backends {
		out = append(out, b.Descriptor(s.SystemPrompt))
	}
	return out
}

// Descriptor builds the runtime backend. A backend without its own system
// prompt uses defaultSystemPrompt; an explicit empty one sends none.
func (b Backend) Descriptor(defaultSystemPrompt string) api.Backend {
	systemPrompt := defaultSystemPrompt
	if b.SystemPrompt != nil {
		systemPrompt = *b.SystemPrompt
	}
	desc := api.Backend{
		Name:        b.Name,
		EndpointURL: b.URL,
		Model:       b.Model,
		APIKey:      b.APIKey,
		APIKeyEnv:   b.APIKeyEnv,
		RequireAuth: b.RequireAuth,
		Headers:     b.Headers,
	}
	if b.Model != "" {
		desc.Build = api.ChatRequestBuilder(b.Model, systemPrompt, api.Parameters{
			Temperature: b.Parameters.Temperature,
			MaxTokens:   b.Parameters.MaxTokens,
			TopP:        b.Parameters.TopP,
		})
	}
	return desc
}

// Backend looks a configured backend up by name.
func (s Settings) Backend(name string) (Backend, bool) {
	for _, b := range s.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return Backend{}, false
}
