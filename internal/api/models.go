package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// BaseURL derives the OpenAI-style API root from a chat-completions endpoint.
func BaseURL(endpoint string) string {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	return strings.TrimSuffix(base, "/chat/completions")
}

// ListModels asks the backend which models it serves.
func (c *Client) ListModels(ctx context.Context, backend Backend) ([]string, error) {
	if strings.TrimSpace(backend.EndpointURL) == "" {
		return nil, fmt.Errorf("endpoint for %s not configured", backend.Name)
	}
	config := openai.DefaultConfig(backend.APIKey)
	config.BaseURL = BaseURL(backend.EndpointURL)
	config.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(config)

	modelList, err := client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models on %s: %w", backend.Name, err)
	}
	names := make([]string, 0, len(modelList.Models))
	for _, m := range modelList.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// GetFirstAvailableModel returns the first model the backend advertises.
func (c *Client) GetFirstAvailableModel(ctx context.Context, backend Backend) (string, error) {
	names, err := c.ListModels(ctx, backend)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no models available on %s", backend.Name)
	}
	return names[0], nil
}
