package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// settingsSchema describes the resolved settings as they marshal to JSON.
var settingsSchema = map[string]any{
	"type":     "object",
	"required": []string{"prompt", "concurrencyLevels", "backends", "pool"},
	"properties": map[string]any{
		"prompt": map[string]any{"type": "string", "minLength": 1},
		"concurrencyLevels": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]any{"type": "integer", "minimum": 1},
		},
		"responsePreviewLength": map[string]any{"type": "integer", "minimum": 0},
		"output":                map[string]any{"enum": []string{"text", "json", "yaml"}},
		"delays": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"warmup":        map[string]any{"type": "integer", "minimum": 0},
				"betweenTests":  map[string]any{"type": "integer", "minimum": 0},
				"betweenLevels": map[string]any{"type": "integer", "minimum": 0},
			},
		},
		"pool": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"connectionLimit":  map[string]any{"type": "integer", "minimum": 1},
				"perHostLimit":     map[string]any{"type": "integer", "minimum": 1},
				"keepaliveTimeout": map[string]any{"type": "integer", "minimum": 0},
				"totalTimeout":     map[string]any{"type": "integer", "minimum": 0},
				"connectTimeout":   map[string]any{"type": "integer", "minimum": 0},
				"readTimeout":      map[string]any{"type": "integer", "minimum": 0},
			},
		},
		"backends": map[string]any{
			"type":     "array",
			"minItems": 2,
			"items": map[string]any{
				"type":     "object",
				"required": []string{"name"},
				"properties": map[string]any{
					"name":  map[string]any{"type": "string", "minLength": 1},
					"model": map[string]any{"type": "string"},
					"url":   map[string]any{"type": "string"},
				},
			},
		},
	},
}

// Validate checks s against the settings schema and rejects duplicate
// backend names.
func Validate(s Settings) error {
	if len(s.Backends) < 2 {
		return fmt.Errorf("%w (got %d)", ErrNoBackends, len(s.Backends))
	}

	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(settingsSchema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	seen := make(map[string]bool, len(s.Backends))
	for _, b := range s.Backends {
		if seen[b.Name] {
			return fmt.Errorf("invalid configuration: duplicate backend name %q", b.Name)
		}
		seen[b.Name] = true
	}
	return nil
}
