package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// RequestBuilder turns a prompt into the JSON body a backend expects.
type RequestBuilder func(prompt string) (any, error)

// Parameters are the optional generation settings forwarded to a backend.
type Parameters struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// Backend describes one streaming chat-completion endpoint.
type Backend struct {
	Name        string
	EndpointURL string
	Model       string
	APIKey      string
	// APIKeyEnv names the variable the key came from; used in pre-flight errors.
	APIKeyEnv   string
	RequireAuth bool
	Headers     map[string]string
	Build       RequestBuilder
}

// ChatRequestBuilder builds OpenAI-style streaming chat requests with an
// optional system prompt and generation parameters.
func ChatRequestBuilder(model, systemPrompt string, params Parameters) RequestBuilder {
	return func(prompt string) (any, error) {
		messages := make([]openai.ChatCompletionMessage, 0, 2)
		if strings.TrimSpace(systemPrompt) != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			})
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		})

		req := openai.ChatCompletionRequest{
			Model:    model,
			Messages: messages,
			Stream:   true,
		}
		if params.Temperature != nil {
			req.Temperature = float32(*params.Temperature)
		}
		if params.MaxTokens != nil {
			req.MaxTokens = *params.MaxTokens
		}
		if params.TopP != nil {
			req.TopP = float32(*params.TopP)
		}
		return req, nil
	}
}

func (b Backend) preflight() error {
	if strings.TrimSpace(b.EndpointURL) == "" {
		return fmt.Errorf("endpoint for %s not configured", b.Name)
	}
	if b.RequireAuth && b.APIKey == "" {
		if b.APIKeyEnv != "" {
			return fmt.Errorf("%s not set", b.APIKeyEnv)
		}
		return fmt.Errorf("API key for %s not set", b.Name)
	}
	if b.Build == nil {
		return fmt.Errorf("no request builder configured for %s", b.Name)
	}
	return nil
}

// RequestResult is the outcome of one streaming request. A failed request
// carries only Backend and Error.
type RequestResult struct {
	Backend          string         `json:"backend" yaml:"backend"`
	Success          bool           `json:"success" yaml:"success"`
	Response         string         `json:"response,omitempty" yaml:"response,omitempty"`
	TimeToFirstToken *time.Duration `json:"time_to_first_token,omitempty" yaml:"time-to-first-token,omitempty"`
	TokensPerSecond  float64        `json:"tokens_per_second" yaml:"tokens-per-second"`
	TokenCount       int            `json:"token_count" yaml:"token-count"`
	TotalTime        time.Duration  `json:"total_time" yaml:"total-time"`
	Error            string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// FailedResult builds the result of a request that did not complete.
func FailedResult(backend, reason string) RequestResult {
	return RequestResult{Backend: backend, Success: false, Error: reason}
}

// ResultFromSample derives a successful RequestResult from a finalized sample.
func ResultFromSample(backend string, sample TimingSample) RequestResult {
	return RequestResult{
		Backend:          backend,
		Success:          true,
		Response:         sample.Text,
		TimeToFirstToken: sample.FirstToken,
		TokensPerSecond:  sample.TokensPerSecond(),
		TokenCount:       sample.TokenCount,
		TotalTime:        sample.Elapsed,
	}
}
