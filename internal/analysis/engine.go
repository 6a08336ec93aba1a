package analysis

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maltedev/market-scout/internal/llm"
	"github.com/maltedev/market-scout/internal/models"
)

// NarrativePlaceholder replaces the narrative whenever the LLM is missing or fails.
const NarrativePlaceholder = "AI analysis unavailable: LLM not configured or request failed."

const systemPrompt = "You are a senior cross-border e-commerce product analyst. Be concise and concrete."

type Config struct {
	// ExchangeRate converts every non-CNY sales price to CNY.
	ExchangeRate      float64
	// MarginThreshold is exclusive. Zero flags every positive margin;
	// a negative value selects the default.
	MarginThreshold   float64
	DigestPerCategory int
}

func DefaultConfig() Config {
	return Config{ExchangeRate: 7.2, MarginThreshold: 0.4, DigestPerCategory: 5}
}

type Engine struct {
	cfg    Config
	llm    llm.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine builds the aggregation engine. client may be nil.
func NewEngine(cfg Config, client llm.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ExchangeRate <= 0 {
		cfg.ExchangeRate = def.ExchangeRate
	}
	if cfg.MarginThreshold < 0 {
		cfg.MarginThreshold = def.MarginThreshold
	}
	if cfg.DigestPerCategory <= 0 {
		cfg.DigestPerCategory = def.DigestPerCategory
	}
	return &Engine{
		cfg:    cfg,
		llm:    client,
		logger: logger.With("component", "analysis"),
		now:    time.Now,
	}
}

// Aggregate computes the report. All numeric fields are final before the
// LLM is asked for a narrative, and nothing the LLM does can change them.
func (e *Engine) Aggregate(ctx context.Context, keyword string, sales, sourcing, trend []models.SourceResult) models.AnalysisReport {
	report := e.Compute(keyword, sales, sourcing)

	all := make([]models.SourceResult, 0, len(sales)+len(sourcing)+len(trend))
	all = append(append(append(all, sales...), trend...), sourcing...)
	report.Sources = models.Summarize(all)

	report.Narrative = e.narrate(ctx, Digest(keyword, report, sales, sourcing, trend, e.cfg.DigestPerCategory))
	return report
}

// Compute fills every numeric field of the report.
func (e *Engine) Compute(keyword string, sales, sourcing []models.SourceResult) models.AnalysisReport {
	rate := decimal.NewFromFloat(e.cfg.ExchangeRate)

	perPlatform := PlatformAverages(sales)
	cross := e.crossPlatformCNY(perPlatform, rate)
	sourcingAvg := SourcingAverage(sourcing)

	margin := GrossMargin(cross.Amount, sourcingAvg.Amount)
	recommendation := models.MediumLowPotential
	if margin > e.cfg.MarginThreshold {
		recommendation = models.HighPotential
	}

	e.logger.Info("computed margins",
		"keyword", keyword,
		"platforms", len(perPlatform),
		"cross_platform_avg_cny", cross.String(),
		"sourcing_avg_cny", sourcingAvg.String(),
		"gross_margin", margin,
		"recommendation", recommendation)

	return models.AnalysisReport{
		Keyword:             keyword,
		PerPlatformAvg:      perPlatform,
		CrossPlatformAvgCNY: cross,
		SourcingAvgCNY:      sourcingAvg,
		GrossMarginPct:      margin,
		Recommendation:      recommendation,
		ExchangeRate:        e.cfg.ExchangeRate,
		GeneratedAt:         e.now(),
	}
}

// PlatformAverages is the mean known price per sales platform. Platforms
// with no parseable price are left out.
func PlatformAverages(results []models.SourceResult) map[string]models.Money {
	type acc struct {
		sum      decimal.Decimal
		n        int64
		currency models.Currency
	}
	sums := make(map[string]*acc)

	for _, r := range results {
		for _, l := range r.Listings {
			if !l.Price.IsKnown() {
				continue
			}
			a, ok := sums[l.Platform]
			if !ok {
				a = &acc{currency: l.Price.Currency}
				sums[l.Platform] = a
			}
			a.sum = a.sum.Add(l.Price.Amount)
			a.n++
		}
	}

	out := make(map[string]models.Money, len(sums))
	for platform, a := range sums {
		out[platform] = models.Money{Amount: a.sum.Div(decimal.NewFromInt(a.n)), Currency: a.currency}
	}
	return out
}

// crossPlatformCNY averages the per-platform means after converting them to
// CNY with the single configured rate, so it depends on perPlatform alone.
func (e *Engine) crossPlatformCNY(perPlatform map[string]models.Money, rate decimal.Decimal) models.Money {
	if len(perPlatform) == 0 {
		return models.Money{Amount: decimal.Zero, Currency: models.CurrencyCNY}
	}

	platforms := make([]string, 0, len(perPlatform))
	for p := range perPlatform {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	var converted []string
	sum := decimal.Zero
	for _, p := range platforms {
		m := perPlatform[p]
		if m.Currency == models.CurrencyCNY {
			sum = sum.Add(m.Amount)
			continue
		}
		sum = sum.Add(m.Amount.Mul(rate))
		converted = append(converted, p)
	}

	if len(converted) > 0 {
		e.logger.Info("converted sales prices with a single USD rate", "rate", e.cfg.ExchangeRate, "platforms", converted)
	}

	return models.Money{
		Amount:   sum.Div(decimal.NewFromInt(int64(len(platforms)))),
		Currency: models.CurrencyCNY,
	}
}

// SourcingAverage is the mean known sourcing price, taken as CNY.
func SourcingAverage(results []models.SourceResult) models.Money {
	sum := decimal.Zero
	var n int64
	for _, r := range results {
		for _, l := range r.Listings {
			if !l.Price.IsKnown() {
				continue
			}
			sum = sum.Add(l.Price.Amount)
			n++
		}
	}
	if n == 0 {
		return models.Money{Amount: decimal.Zero, Currency: models.CurrencyCNY}
	}
	return models.Money{Amount: sum.Div(decimal.NewFromInt(n)), Currency: models.CurrencyCNY}
}

// GrossMargin is (sales - sourcing) / sales, or 0 when sales is not positive.
func GrossMargin(salesCNY, sourcingCNY decimal.Decimal) float64 {
	if !salesCNY.IsPositive() {
		return 0
	}
	margin, _ := salesCNY.Sub(sourcingCNY).Div(salesCNY).Float64()
	return margin
}

func (e *Engine) narrate(ctx context.Context, digest string) string {
	if e.llm == nil {
		e.logger.Info("LLM not configured, using placeholder narrative")
		return NarrativePlaceholder
	}

	text, err := e.llm.Complete(ctx, digest, systemPrompt)
	if err != nil {
		e.logger.Warn("narrative generation failed", "error", err)
		return NarrativePlaceholder
	}
	return text
}
