// Package pipeline runs one end-to-end market analysis for a keyword:
// sales and trend sources first, then sourcing sources with the translated
// keyword, then aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/market-scout/internal/analysis"
	"github.com/maltedev/market-scout/internal/metrics"
	"github.com/maltedev/market-scout/internal/models"
	"github.com/maltedev/market-scout/internal/orchestrator"
	"github.com/maltedev/market-scout/internal/scraper"
	"github.com/maltedev/market-scout/internal/translate"
)

// ErrNoListings is returned when every adapter came back empty.
var ErrNoListings = errors.New("no listings from any source")

type Config struct {
	Limit          int
	AdapterTimeout time.Duration
}

type Pipeline struct {
	orch       *orchestrator.Orchestrator
	adapters   []scraper.Adapter
	translator translate.Translator
	engine     *analysis.Engine
	metrics    *metrics.Metrics
	cfg        Config
	logger     *slog.Logger
}

// Result carries the report together with every per-source outcome.
type Result struct {
	Report          models.AnalysisReport
	SourcingKeyword string
	Sales           []models.SourceResult
	Trend           []models.SourceResult
	Sourcing        []models.SourceResult
}

func (r *Result) All() []models.SourceResult {
	out := make([]models.SourceResult, 0, len(r.Sales)+len(r.Trend)+len(r.Sourcing))
	return append(append(append(out, r.Sales...), r.Trend...), r.Sourcing...)
}

func New(orch *orchestrator.Orchestrator, adapters []scraper.Adapter, translator translate.Translator, engine *analysis.Engine, m *metrics.Metrics, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if translator == nil {
		translator = translate.NewDictionary()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = 120 * time.Second
	}
	return &Pipeline{
		orch:       orch,
		adapters:   adapters,
		translator: translator,
		engine:     engine,
		metrics:    m,
		cfg:        cfg,
		logger:     logger.With("component", "pipeline"),
	}
}

// Run scrapes, aggregates and returns the full result. A run where some
// sources failed still produces a report; only a run with no listings at
// all fails with ErrNoListings.
func (p *Pipeline) Run(ctx context.Context, keyword string) (*Result, error) {
	start := time.Now()
	p.logger.Info("starting analysis", "keyword", keyword)

	front := append(scraper.ByKind(p.adapters, models.KindSales), scraper.ByKind(p.adapters, models.KindTrend)...)
	frontResults := p.orch.RunAll(ctx, keyword, front, p.cfg.Limit, p.cfg.AdapterTimeout)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis of %q cancelled: %w", keyword, err)
	}

	res := &Result{}
	for _, r := range frontResults {
		if r.Kind == models.KindTrend {
			res.Trend = append(res.Trend, r)
			continue
		}
		res.Sales = append(res.Sales, r)
	}

	sourcingKeyword, err := p.translator.ToChinese(ctx, keyword)
	if err != nil {
		return nil, fmt.Errorf("translating %q: %w", keyword, err)
	}
	res.SourcingKeyword = sourcingKeyword
	if sourcingKeyword != keyword {
		p.logger.Info("translated keyword for sourcing", "keyword", keyword, "sourcing_keyword", sourcingKeyword)
	}

	res.Sourcing = p.orch.RunAll(ctx, sourcingKeyword, scraper.ByKind(p.adapters, models.KindSourcing), p.cfg.Limit, p.cfg.AdapterTimeout)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis of %q cancelled: %w", keyword, err)
	}

	if models.CountListings(res.All()) == 0 {
		p.logger.Warn("no listings collected", "keyword", keyword, "sources", len(p.adapters))
		return res, ErrNoListings
	}

	res.Report = p.engine.Aggregate(ctx, keyword, res.Sales, res.Sourcing, res.Trend)

	elapsed := time.Since(start)
	p.metrics.ObserveAnalysis(keyword, string(res.Report.Recommendation), res.Report.GrossMarginPct, elapsed)
	p.logger.Info("analysis finished",
		"keyword", keyword,
		"recommendation", res.Report.Recommendation,
		"gross_margin", res.Report.GrossMarginPct,
		"elapsed", elapsed)

	return res, nil
}
