package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Yoosu-L/llmstreambench/internal/logging"
)

func streamingServer(t *testing.T, tokens ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, tok := range tokens {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", tok)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"discovered-model","object":"model"}]}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeTempConfig(t *testing.T, baseline, contender string) string {
	t.Helper()
	content := fmt.Sprintf(`
prompt: "Hello! Can I have a cup of coffee?"
concurrencyLevels: [1, 2]
delays:
  warmup: 0s
  betweenTests: 0s
  betweenLevels: 0s
pool:
  totalTimeout: 5s
  readTimeout: 2s
backends:
  - name: self-hosted
    url: %s/v1/chat/completions
  - name: commercial
    url: %s/v1/chat/completions
    model: gpt-test
    apiKeyEnv: STREAMBENCH_TEST_KEY
    requireAuth: true
`, baseline, contender)
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { _ = logging.Close() })
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunJSONOutput(t *testing.T) {
	t.Setenv("STREAMBENCH_TEST_KEY", "sk-test")
	path := writeTempConfig(t, streamingServer(t, "Boleh", " kopi").URL, streamingServer(t, "Sure").URL)

	out, err := execCommand(t, "run", "--config", path, "-o", "json", "--warmup=false")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}

	var result BenchmarkResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(result.Backends) != 2 || result.Backends[0] != "self-hosted" {
		t.Fatalf("backends = %v", result.Backends)
	}
	if result.Warmup != nil {
		t.Fatal("warmup should be skipped")
	}
	if len(result.Levels) != 2 {
		t.Fatalf("levels = %d", len(result.Levels))
	}
	for _, level := range result.Levels {
		for _, agg := range level.Aggregates {
			if agg.SuccessRate != 100 || agg.TotalRequests != level.Level {
				t.Fatalf("level %d %s: %+v", level.Level, agg.Backend, agg)
			}
		}
	}
}

func TestRunMissingKeyFailsOnlyThatBackend(t *testing.T) {
	t.Setenv("STREAMBENCH_TEST_KEY", "")
	os.Unsetenv("STREAMBENCH_TEST_KEY")
	path := writeTempConfig(t, streamingServer(t, "ok").URL, streamingServer(t, "never").URL)
	md := filepath.Join(t.TempDir(), "out", "results.md")

	out, err := execCommand(t, "run", "--config", path, "-c", "2", "--markdown", md)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{
		"COLD START WARMUP: self-hosted",
		"CONCURRENCY RESULTS: commercial",
		"Success Rate: 0.0% (0/2)",
		"STREAMBENCH_TEST_KEY not set",
		"self-hosted wins by 100.0%",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	data, err := os.ReadFile(md)
	if err != nil {
		t.Fatalf("markdown not written: %v", err)
	}
	if !strings.Contains(string(data), "| commercial | 2 | 0.0 |") {
		t.Fatalf("markdown content:\n%s", data)
	}
}

func TestRunReadsKeyFromEnvFile(t *testing.T) {
	t.Setenv("STREAMBENCH_TEST_KEY", "")
	os.Unsetenv("STREAMBENCH_TEST_KEY")
	path := writeTempConfig(t, streamingServer(t, "Boleh").URL, streamingServer(t, "Sure").URL)
	envFile := filepath.Join(t.TempDir(), "bench.env")
	if err := os.WriteFile(envFile, []byte("STREAMBENCH_TEST_KEY=sk-from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	out, err := execCommand(t, "run", "--config", path, "--env-file", envFile, "-c", "1", "-o", "json", "--warmup=false")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var result BenchmarkResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	for _, agg := range result.Levels[0].Aggregates {
		if agg.SuccessRate != 100 {
			t.Fatalf("%s did not authenticate: %+v", agg.Backend, agg)
		}
	}

	if _, err := execCommand(t, "show-config", "--config", path, "--env-file", filepath.Join(t.TempDir(), "none.env")); err == nil {
		t.Fatal("missing env file should fail")
	}
}

func TestOnceYAMLOutput(t *testing.T) {
	t.Setenv("STREAMBENCH_TEST_KEY", "sk-test")
	path := writeTempConfig(t, streamingServer(t, "Boleh").URL, streamingServer(t, "Sure").URL)

	out, err := execCommand(t, "once", "--config", path, "-o", "yaml")
	if err != nil {
		t.Fatalf("once: %v\n%s", err, out)
	}
	for _, want := range []string{"prompt: Hello! Can I have a cup of coffee?", "rounds:", "response: Boleh", "response: Sure"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShowConfigRedactsKeys(t *testing.T) {
	t.Setenv("STREAMBENCH_TEST_KEY", "sk-very-secret")
	path := writeTempConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	out, err := execCommand(t, "show-config", "--config", path)
	if err != nil {
		t.Fatalf("show-config: %v", err)
	}
	if strings.Contains(out, "sk-very-secret") {
		t.Fatalf("api key leaked:\n%s", out)
	}
	if !strings.Contains(out, "Config file: "+path) || !strings.Contains(out, "********") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestModelsCommand(t *testing.T) {
	t.Setenv("STREAMBENCH_TEST_KEY", "sk-test")
	server := streamingServer(t)
	path := writeTempConfig(t, server.URL, server.URL)

	out, err := execCommand(t, "models", "--config", path, "self-hosted")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if strings.TrimSpace(out) != "self-hosted: discovered-model" {
		t.Fatalf("output = %q", out)
	}

	if _, err := execCommand(t, "models", "--config", path, "nope"); err == nil {
		t.Fatal("unknown backend should fail")
	}
}

func TestInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte("backends:\n  - name: only\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execCommand(t, "run", "--config", path); err == nil {
		t.Fatal("expected configuration error")
	}
}
