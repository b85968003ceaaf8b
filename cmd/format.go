package main

import (
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v4"
)

type exportable interface {
	Json() (string, error)
	Yaml() (string, error)
}

func (result BenchmarkResult) Json() (string, error) {
	return marshalJSON(result)
}

func (result BenchmarkResult) Yaml() (string, error) {
	return marshalYAML(result)
}

func (result OnceResult) Json() (string, error) {
	return marshalJSON(result)
}

func (result OnceResult) Yaml() (string, error) {
	return marshalYAML(result)
}

func marshalJSON(v any) (string, error) {
	prettyJSON, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}
	return string(prettyJSON), nil
}

func marshalYAML(v any) (string, error) {
	yamlData, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("error marshalling yaml: %w", err)
	}
	return string(yamlData), nil
}

func writeOutput(out io.Writer, format string, result exportable) error {
	var (
		text string
		err  error
	)
	switch format {
	case "json":
		text, err = result.Json()
	case "yaml":
		text, err = result.Yaml()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, text)
	return err
}
