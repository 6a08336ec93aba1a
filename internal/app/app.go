package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/market-scout/internal/analysis"
	"github.com/maltedev/market-scout/internal/browser"
	"github.com/maltedev/market-scout/internal/challenge"
	"github.com/maltedev/market-scout/internal/config"
	"github.com/maltedev/market-scout/internal/llm"
	"github.com/maltedev/market-scout/internal/metrics"
	"github.com/maltedev/market-scout/internal/orchestrator"
	"github.com/maltedev/market-scout/internal/pipeline"
	"github.com/maltedev/market-scout/internal/ratelimit"
	"github.com/maltedev/market-scout/internal/scraper"
	"github.com/maltedev/market-scout/internal/storage"
	"github.com/maltedev/market-scout/internal/translate"
)

// Scout bundles the analysis pipeline with the resources it owns.
type Scout struct {
	Pipeline *pipeline.Pipeline
	Reports  *storage.ReportWriter
	Adapters []scraper.Adapter

	browser *browser.Playwright
}

// New launches the browser and wires the pipeline from cfg. Close releases
// the browser.
func New(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Scout, error) {
	b, err := browser.New(&browser.Options{
		Headless:    cfg.Browser.Headless,
		BrowserType: cfg.Browser.Type,
		Timeout:     cfg.Browser.Timeout,
		ProxyServer: cfg.Browser.Proxy,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	s, err := NewWithLauncher(cfg, b, NewLLMClient(cfg, m, logger), m, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	s.browser = b
	return s, nil
}

// NewWithLauncher wires the pipeline on top of an existing launcher. client
// may be nil, in which case translation uses the dictionary only and the
// report carries the placeholder narrative.
func NewWithLauncher(cfg *config.Config, launcher browser.Launcher, client llm.Client, m *metrics.Metrics, logger *slog.Logger) (*Scout, error) {
	var sink scraper.DiagnosticSink = scraper.NoopSink{}
	if cfg.Scraper.Diagnostics {
		sink = scraper.NewScreenshotSink(cfg.DebugDir(), logger)
	}

	detector := challenge.NewDetector(challenge.Config{
		Unattended: cfg.Challenge.Unattended,
		Interval:   cfg.Challenge.PollInterval,
		MaxPolls:   cfg.Challenge.MaxPolls,
	}, logger)

	adapters, err := scraper.Build(cfg.Scraper.Sources, scraper.Options{
		ShopeeRegion: cfg.Scraper.ShopeeRegion,
		DataDir:      cfg.DataDir,
	}, scraper.Deps{
		Launcher: launcher,
		Detector: detector,
		Sink:     sink,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	limiters := ratelimit.NewRegistry(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax)
	orch := orchestrator.New(cfg.Scraper.Concurrency, logger,
		orchestrator.WithLogging(logger),
		orchestrator.WithMetrics(m),
		orchestrator.WithPoliteness(limiters),
	)

	var translator translate.Translator = translate.NewDictionary()
	if client != nil {
		translator = translate.NewLLM(client, translate.NewDictionary(), logger)
	}

	engine := analysis.NewEngine(analysis.Config{
		ExchangeRate:      cfg.Analysis.ExchangeRate,
		MarginThreshold:   cfg.Analysis.MarginThreshold,
		DigestPerCategory: cfg.Analysis.DigestPerCategory,
	}, client, logger)

	reports, err := storage.NewReportWriter(cfg.ReportsDir())
	if err != nil {
		return nil, err
	}

	p := pipeline.New(orch, adapters, translator, engine, m, pipeline.Config{
		Limit:          cfg.Scraper.Limit,
		AdapterTimeout: cfg.Scraper.AdapterTimeout,
	}, logger)

	return &Scout{Pipeline: p, Reports: reports, Adapters: adapters}, nil
}

// NewLLMClient returns nil when no API key is configured.
func NewLLMClient(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) llm.Client {
	client, err := llm.New(llm.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		Timeout:   cfg.LLM.Timeout,
		MaxTokens: int64(cfg.LLM.MaxTokens),
	}, logger, m)
	if errors.Is(err, llm.ErrNotConfigured) {
		logger.Warn("LLM_API_KEY not set, reports will carry no narrative")
		return nil
	}
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		return nil
	}
	return client
}

func (s *Scout) Close() error {
	if s.browser == nil {
		return nil
	}
	return s.browser.Close()
}
