package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Yoosu-L/llmstreambench/internal/api"
	"github.com/Yoosu-L/llmstreambench/internal/config"
	"github.com/Yoosu-L/llmstreambench/internal/logging"
	"github.com/Yoosu-L/llmstreambench/internal/sink"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Close()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// app carries state shared by every subcommand of one invocation.
type app struct {
	v        *viper.Viper
	cfgFile  string
	envFile  string
	settings config.Settings
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:          "llmstreambench",
		Short:        "Streaming latency and throughput benchmark for chat-completion backends",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(a.envFile); err != nil {
				return err
			}
			settings, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.settings = settings
			if err := logging.Init(settings.LogFile, settings.Debug); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML or JSON)")
	pf.StringVar(&a.envFile, "env-file", "", "dotenv file with credentials (default ./.env if present)")
	pf.String("log-file", "", "also write logs to this file")
	pf.Bool("debug", false, "log every request payload")
	pf.StringP("prompt", "p", config.DefaultPrompt, "prompt sent to every backend")
	pf.StringP("output", "o", "text", "output format: text, json or yaml")
	pf.String("markdown", "", "write a markdown results table to this file")
	pf.Bool("warmup", true, "send one cold-start request to the baseline first")
	bindFlags(a.v, pf, map[string]string{
		"logFile":  "log-file",
		"debug":    "debug",
		"prompt":   "prompt",
		"output":   "output",
		"markdown": "markdown",
		"warmup":   "warmup",
	})

	root.AddCommand(newRunCmd(a), newOnceCmd(a), newModelsCmd(a), newShowConfigCmd(a))
	return root
}

// bindFlags binds each viper key to the named flag.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
}

func newRunCmd(a *app) *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sweep concurrency levels and compare the baseline against every other backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			bench, cleanup, err := a.benchmark(cmd, progress)
			if err != nil {
				return err
			}
			defer cleanup()

			if a.settings.Output == "text" {
				return bench.runCli(cmd.Context())
			}
			result, runErr := bench.run(cmd.Context())
			if err := writeOutput(cmd.OutOrStdout(), a.settings.Output, result); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringP("concurrency", "c", config.DefaultLevels, "comma-separated list of concurrency levels")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar per trial on stderr")
	bindFlags(a.v, cmd.Flags(), map[string]string{"concurrencyLevels": "concurrency"})
	return cmd
}

func newOnceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Send one request per backend, one at a time, and compare them",
		RunE: func(cmd *cobra.Command, args []string) error {
			bench, cleanup, err := a.benchmark(cmd, false)
			if err != nil {
				return err
			}
			defer cleanup()

			result, runErr := bench.once(cmd.Context())
			if a.settings.Output != "text" {
				if err := writeOutput(cmd.OutOrStdout(), a.settings.Output, result); err != nil {
					return err
				}
			}
			return runErr
		},
	}
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models [backend...]",
		Short: "List the models each backend serves",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(a.settings.BenchmarkConfig())
			defer client.Close()

			out := cmd.OutOrStdout()
			wanted := make(map[string]bool, len(args))
			for _, name := range args {
				if _, ok := a.settings.Backend(name); !ok {
					return fmt.Errorf("unknown backend %q", name)
				}
				wanted[name] = true
			}
			for _, backend := range a.settings.Descriptors() {
				if len(wanted) > 0 && !wanted[backend.Name] {
					continue
				}
				models, err := client.ListModels(cmd.Context(), backend)
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", backend.Name, err)
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", backend.Name, strings.Join(models, ", "))
			}
			return nil
		},
	}
}

func newShowConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show-config",
		Short: "Print the resolved configuration",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if a.settings.ConfigPath == "" {
				fmt.Fprintln(out, "No config file loaded (using defaults).")
			} else {
				fmt.Fprintf(out, "Config file: %s\n\n", a.settings.ConfigPath)
			}
			_, _ = pp.Fprintln(out, redacted(a.settings))
		},
	}
}

// redacted hides credentials before settings are printed.
func redacted(s config.Settings) config.Settings {
	backends := make([]config.Backend, len(s.Backends))
	copy(backends, s.Backends)
	for i := range backends {
		if backends[i].APIKey != "" {
			backends[i].APIKey = "********"
		}
	}
	s.Backends = backends
	if s.Redis.Password != "" {
		s.Redis.Password = "********"
	}
	return s
}

// benchmark assembles the client, backends and optional sink for one command.
func (a *app) benchmark(cmd *cobra.Command, progress bool) (*Benchmark, func(), error) {
	client := api.NewClient(a.settings.BenchmarkConfig())
	bench := &Benchmark{
		Settings:     a.settings,
		Backends:     discoverModels(cmd.Context(), client, a.settings),
		Client:       client,
		Out:          cmd.OutOrStdout(),
		ShowProgress: progress,
	}
	cleanup := client.Close

	if addr := a.settings.Redis.Addr; addr != "" {
		s, err := sink.NewRedis(cmd.Context(), addr, a.settings.Redis.Password, a.settings.Redis.DB, a.settings.Redis.Key)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		bench.Sink = s
		cleanup = func() {
			_ = s.Close()
			client.Close()
		}
	}
	return bench, cleanup, nil
}

// discoverModels fills in the first served model for backends configured
// without one. A backend whose discovery fails keeps no request builder, so
// its requests are reported as failures.
func discoverModels(ctx context.Context, client *api.Client, settings config.Settings) []api.Backend {
	backends := make([]api.Backend, 0, len(settings.Backends))
	for _, b := range settings.Backends {
		if b.Model == "" {
			model, err := client.GetFirstAvailableModel(ctx, b.Descriptor(settings.SystemPrompt))
			if err != nil {
				logging.LogEvent("Error discovering model for %s: %v", b.Name, err)
			} else {
				logging.LogEvent("Using model %s for %s", model, b.Name)
				b.Model = model
			}
		}
		backends = append(backends, b.Descriptor(settings.SystemPrompt))
	}
	return backends
}
