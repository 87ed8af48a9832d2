package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zen-systems/expertgate/pkg/adapter"
	"github.com/zen-systems/expertgate/pkg/config"
	"github.com/zen-systems/expertgate/pkg/dispatch"
	"github.com/zen-systems/expertgate/pkg/evidence"
	"github.com/zen-systems/expertgate/pkg/logging"
	"github.com/zen-systems/expertgate/pkg/render"
	"github.com/zen-systems/expertgate/pkg/server"
	"github.com/zen-systems/expertgate/pkg/telemetry"
)

var (
	configFile string
	catalog    *config.ModelCatalog
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "expertgate",
		Short: "Route writing requests to specialist experts with quality gates",
		Long: `Expertgate routes a free-text writing request to the most suitable
expert (email, poem or story), generates the text and scores it,
regenerating with corrective feedback until it passes the quality gate.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (yaml or toml)")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(expertsCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func generateCmd() *cobra.Command {
	var (
		expertFlag  string
		temperature float64
		maxTokens   int
		htmlFlag    bool
		jsonFlag    bool
		traceFile   string
	)

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate text for a prompt",
		Long: `Routes the prompt to an expert, or use --expert to force one, and
prints the final text. The routing decision and score go to stderr.

Use --trace to write the full attempt history as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]
			ctx := cmd.Context()

			d, shutdown, err := setup(ctx)
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			req := dispatch.Request{Prompt: prompt, Expert: expertFlag, MaxTokens: maxTokens}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			resp, err := d.Dispatch(ctx, req)
			if err != nil {
				return err
			}

			score := "n/a"
			if resp.Final != nil {
				score = fmt.Sprintf("%.1f", resp.Final.Score)
			}
			fmt.Fprintf(os.Stderr, "Routed to %s (%s, confidence %.2f), retries %d, score %s\n",
				resp.Expert, resp.Method, resp.Confidence, resp.RetryCount, score)

			if traceFile != "" {
				if err := evidence.WriteFile(traceFile, evidence.FromResponse(prompt, resp)); err != nil {
					return fmt.Errorf("failed to write trace: %w", err)
				}
			}

			switch {
			case jsonFlag:
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			case htmlFlag:
				out, err := render.HTML(resp.Text)
				if err != nil {
					return err
				}
				fmt.Print(out)
			default:
				fmt.Println(resp.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&expertFlag, "expert", "", "force an expert (email, poem, story)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "override the base temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "override the max output tokens")
	cmd.Flags().BoolVar(&htmlFlag, "html", false, "render the output as HTML")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full response as JSON")
	cmd.Flags().StringVar(&traceFile, "trace", "", "write the run trace to this file")

	return cmd
}

func routeCmd() *cobra.Command {
	var expertFlag string

	cmd := &cobra.Command{
		Use:   "route [prompt]",
		Short: "Show which expert a prompt routes to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, shutdown, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			decision, err := d.Router().Route(cmd.Context(), args[0], expertFlag)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "EXPERT\t%s\n", decision.Expert)
			fmt.Fprintf(w, "METHOD\t%s\n", decision.Method)
			fmt.Fprintf(w, "CONFIDENCE\t%.2f\n", decision.Confidence)
			fmt.Fprintf(w, "SCORES\t%s\n", formatScores(decision.Scores))
			fmt.Fprintf(w, "REASON\t%s\n", decision.Rationale)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&expertFlag, "expert", "", "force an expert")
	return cmd
}

func expertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "experts",
		Short: "List experts and their availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, shutdown, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "EXPERT\tSTATUS\tKEYWORDS\tDESCRIPTION")
			for _, e := range d.Experts() {
				status := "no adapter"
				if e.Available {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, status, formatList(e.Keywords), e.Description)
			}
			return w.Flush()
		},
	}
}

func modelsCmd() *cobra.Command {
	var resolveFlag bool
	var validateFlag bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available adapters, models, and aliases",
		Long: `Lists adapters and their available models.

Use --resolve to show aliases and what they resolve to.
Use --validate to check that every expert model resolves to a known model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if resolveFlag {
				return showAliases()
			}
			if validateFlag {
				return validateExperts(cfg)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODELS\tSTATUS")

			providers := catalog.ProviderNames()
			if len(providers) == 0 {
				providers = []string{"anthropic", "deepseek", "google", "openai", "mock"}
			}
			for _, provider := range providers {
				models := formatList(catalog.Models(provider))
				status := "no key"
				if cfg.HasAdapter(provider) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", provider, models, status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&resolveFlag, "resolve", false, "show aliases and what they resolve to")
	cmd.Flags().BoolVar(&validateFlag, "validate", false, "check expert models against the alias table")

	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			d, shutdown, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			if addr == "" {
				addr = cfg.Server.Addr
			}
			srv := server.New(d,
				server.WithRateLimit(cfg.Server.RequestsPerSecond, cfg.Server.Burst),
				server.WithLogger(logging.WithComponent("server")),
			)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8000)")
	return cmd
}

// setup loads configuration and wires the dispatcher.
func setup(ctx context.Context) (*dispatch.Dispatcher, func(context.Context) error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return build(ctx, cfg)
}

func build(ctx context.Context, cfg *config.Config) (*dispatch.Dispatcher, func(context.Context) error, error) {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "expertgate",
		ServiceVersion: server.Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Disable:        !cfg.Telemetry.Enabled,
		Logger:         logging.WithComponent("telemetry"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	adapters, err := createAdapters(ctx, cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, fmt.Errorf("failed to create adapters: %w", err)
	}
	return dispatch.Build(cfg, adapters, logging.Logger()), shutdown, nil
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	catalog, err = config.FindCatalog("configs/models.yaml")
	if err != nil {
		logging.Logger().Warn("failed to load model catalog, using built-in table", "error", err)
		catalog = config.DefaultCatalog()
	}
	catalog.ResolveExperts(cfg.Experts)
	if cfg.Routing != nil {
		cfg.Routing.Classifier.Model = catalog.Resolve(cfg.Routing.Classifier.Model)
	}
	return cfg, nil
}

func createAdapters(ctx context.Context, cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(ctx, cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	if cfg.DeepSeekAPIKey != "" {
		a, err := adapter.NewDeepSeekAdapter(cfg.DeepSeekAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters["deepseek"] = a
	}

	adapters["mock"] = adapter.NewMockAdapter()

	logAdapters(logging.Logger(), adapters)
	return adapters, nil
}

func logAdapters(logger *slog.Logger, adapters map[string]adapter.Adapter) {
	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	logger.Debug("adapters configured", "adapters", names)
}

func showAliases() error {
	entries := catalog.Entries()
	if len(entries) == 0 {
		fmt.Println("No model aliases configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tMODEL\tPROVIDER")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Alias, e.Model, e.Provider)
	}
	return w.Flush()
}

func validateExperts(cfg *config.Config) error {
	errs := catalog.ValidateExperts(cfg.Experts)
	if len(errs) == 0 {
		fmt.Println("All expert models are valid.")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Found %d validation errors:\n", len(errs))
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "  - %s\n", err)
	}
	return fmt.Errorf("validation failed")
}

func formatScores(scores map[string]int) string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, scores[name]))
	}
	return strings.Join(parts, " ")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	if len(items) > 3 {
		return strings.Join(items[:3], ", ") + fmt.Sprintf(" (+%d)", len(items)-3)
	}
	return strings.Join(items, ", ")
}
