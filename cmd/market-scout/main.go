package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/market-scout/internal/app"
	"github.com/maltedev/market-scout/internal/config"
	"github.com/maltedev/market-scout/internal/events"
	"github.com/maltedev/market-scout/internal/metrics"
	"github.com/maltedev/market-scout/internal/models"
	"github.com/maltedev/market-scout/internal/pipeline"
	"github.com/maltedev/market-scout/pkg/logger"
)

const usage = `usage:
  market-scout analyze [-sources amazon,1688] [-limit 5] <keyword>
  market-scout watch [-group name] [-consumer name]`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch os.Args[1] {
	case "analyze":
		err = analyze(ctx, cfg, log, os.Args[2:])
	case "watch":
		err = watch(ctx, cfg, log, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func analyze(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	sources := fs.String("sources", strings.Join(cfg.Scraper.Sources, ","), "Comma separated source ids (default: all)")
	limit := fs.Int("limit", cfg.Scraper.Limit, "Listings per source")
	headless := fs.Bool("headless", cfg.Browser.Headless, "Run browser in headless mode")
	if err := fs.Parse(args); err != nil {
		return err
	}

	keyword := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if keyword == "" {
		return fmt.Errorf("keyword is required\n%s", usage)
	}

	cfg.Scraper.Sources = nil
	for _, s := range strings.Split(*sources, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Scraper.Sources = append(cfg.Scraper.Sources, s)
		}
	}
	cfg.Scraper.Limit = *limit
	cfg.ApplyHeadless(*headless)
	if err := cfg.Validate(); err != nil {
		return err
	}

	m := metrics.New(prometheus.NewRegistry())
	scout, err := app.New(cfg, m, log)
	if err != nil {
		return err
	}
	defer scout.Close()

	res, err := scout.Pipeline.Run(ctx, keyword)
	if errors.Is(err, pipeline.ErrNoListings) {
		printSources(os.Stdout, res.All())
		return err
	}
	if err != nil {
		return err
	}

	paths, err := scout.Reports.Write(res.Report, res.All())
	if err != nil {
		log.Warn("failed to write report files", "error", err)
	}

	printReport(os.Stdout, res)
	if paths.JSON != "" {
		fmt.Printf("\nreport: %s\nlistings: %s\n", paths.JSON, paths.CSV)
	}
	return nil
}

func printSources(w io.Writer, results []models.SourceResult) {
	for _, s := range models.Summarize(results) {
		status := "ok"
		if s.Error != "" {
			status = "failed: " + s.Error
		}
		fmt.Fprintf(w, "  %-16s %-9s %3d listings  %s\n", s.Source, s.Kind, s.Listings, status)
	}
}

func printReport(w io.Writer, res *pipeline.Result) {
	r := res.Report
	fmt.Fprintf(w, "keyword: %s (sourcing as %q)\n\nsources:\n", r.Keyword, res.SourcingKeyword)
	printSources(w, res.All())

	fmt.Fprintln(w, "\nplatform averages:")
	platforms := make([]string, 0, len(r.PerPlatformAvg))
	for p := range r.PerPlatformAvg {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	for _, p := range platforms {
		fmt.Fprintf(w, "  %-16s %s\n", p, r.PerPlatformAvg[p])
	}

	fmt.Fprintf(w, "\ncross-platform avg: %s CNY\n", r.CrossPlatformAvgCNY.Amount.StringFixed(2))
	fmt.Fprintf(w, "sourcing avg:       %s CNY\n", r.SourcingAvgCNY.Amount.StringFixed(2))
	fmt.Fprintf(w, "gross margin:       %.1f%%\n", r.GrossMarginPct*100)
	fmt.Fprintf(w, "recommendation:     %s\n", r.Recommendation)
	if r.Narrative != "" {
		fmt.Fprintf(w, "\n%s\n", r.Narrative)
	}
}

// watch follows completed analyses on the redis stream.
func watch(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	group := fs.String("group", "market-scout-watchers", "Consumer group")
	name := fs.String("consumer", "watcher-1", "Consumer name within the group")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !cfg.Redis.Enabled() {
		return errors.New("REDIS_ADDR is required for watch")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("connected to redis", "addr", cfg.Redis.Addr)

	consumer := events.NewConsumer(rdb, events.ConsumerConfig{Group: *group, Name: *name},
		func(ctx context.Context, p *events.AnalysisCompletedPayload) error {
			log.Info("analysis completed",
				"run_id", p.RunID,
				"keyword", p.Keyword,
				"recommendation", p.Recommendation,
				"gross_margin_pct", p.GrossMarginPct,
				"cross_platform_avg_cny", p.CrossPlatformAvgCNY,
				"sourcing_avg_cny", p.SourcingAvgCNY,
				"listings", p.ListingCount,
				"failed_sources", p.FailedSources)
			return nil
		}, log)

	return consumer.Run(ctx)
}
