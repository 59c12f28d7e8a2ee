package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c360studio/newsdesk/config"
	"github.com/c360studio/newsdesk/llm"
	"github.com/c360studio/newsdesk/metrics"
	"github.com/c360studio/newsdesk/news"
)

type runFlags struct {
	jobs        []string
	topic       string
	kind        string
	url         string
	selector    string
	webSearch   bool
	concurrency int
	metricsAddr string
}

func runCmd(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured jobs, or one ad-hoc job",
		Long: `Run generates articles for every job in the config and upserts them.

Use --job to pick jobs by name, or --topic to run a single job built from flags
instead of the config. The batch summary is printed as JSON on stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(global.logLevel)
			cfg, err := loadConfig(global, logger)
			if err != nil {
				return err
			}

			jobs, err := selectJobs(cfg, flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runJobs(ctx, cfg, logger, jobs, flags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVar(&flags.jobs, "job", nil, "Run only the named jobs (repeatable)")
	cmd.Flags().StringVar(&flags.topic, "topic", "", "Run one ad-hoc job on this topic")
	cmd.Flags().StringVar(&flags.kind, "kind", string(news.KindNewsItem), "Article kind for the ad-hoc job (news_item, tutorial)")
	cmd.Flags().StringVar(&flags.url, "url", "", "Source page for the ad-hoc job")
	cmd.Flags().StringVar(&flags.selector, "selector", "", "CSS selector narrowing the source page")
	cmd.Flags().BoolVar(&flags.webSearch, "web-search", false, "Ask for a web-grounded answer")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Jobs run at once (default from config)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	return cmd
}

// selectJobs returns the jobs a run should process.
func selectJobs(cfg *config.Config, flags *runFlags) ([]news.Job, error) {
	if flags.topic != "" || flags.url != "" {
		kind := news.Kind(flags.kind)
		if !kind.IsValid() {
			return nil, fmt.Errorf("unknown kind %q", flags.kind)
		}
		return []news.Job{{
			Name:      "adhoc",
			Kind:      kind,
			Topic:     flags.topic,
			SourceURL: flags.url,
			Selector:  flags.selector,
			WebSearch: flags.webSearch,
		}}, nil
	}

	if len(flags.jobs) == 0 {
		if len(cfg.Jobs) == 0 {
			return nil, errors.New("no jobs configured; add jobs to the config or pass --topic")
		}
		return cfg.Jobs, nil
	}

	byName := make(map[string]news.Job, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		byName[job.Name] = job
	}
	selected := make([]news.Job, 0, len(flags.jobs))
	for _, name := range flags.jobs {
		job, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("job %q not found in config", name)
		}
		selected = append(selected, job)
	}
	return selected, nil
}

func runJobs(ctx context.Context, cfg *config.Config, logger *slog.Logger, jobs []news.Job, flags *runFlags, out io.Writer) error {
	reg := prometheus.NewRegistry()
	col, err := metrics.New(reg)
	if err != nil {
		return err
	}
	if flags.metricsAddr != "" {
		shutdown := serveMetrics(flags.metricsAddr, reg, logger)
		defer shutdown()
	}

	app, err := NewApp(ctx, cfg, logger, col)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	gateway, err := app.Gateway()
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}
	desk, err := app.Desk(gateway, flags.concurrency)
	if err != nil {
		return err
	}

	logger.Info("Running jobs", "count", len(jobs))
	summary, runErr := desk.Run(ctx, jobs)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if errors.Is(runErr, llm.ErrNoProvidersConfigured) {
		return runErr
	}
	if summary.Succeeded == 0 && summary.Failed > 0 {
		return fmt.Errorf("all %d articles or jobs failed", summary.Failed)
	}
	return nil
}

// serveMetrics exposes reg over HTTP until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
