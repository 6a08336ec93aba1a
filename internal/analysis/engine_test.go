package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/market-scout/internal/models"
)

type fakeLLM struct {
	reply  string
	err    error
	prompt string
	calls  int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

func usd(v int64) models.Money {
	return models.Money{Amount: decimal.NewFromInt(v), Currency: models.CurrencyUSD}
}

func cny(v int64) models.Money {
	return models.Money{Amount: decimal.NewFromInt(v), Currency: models.CurrencyCNY}
}

func result(source string, kind models.SourceKind, listings ...models.Listing) models.SourceResult {
	return models.SourceResult{Source: source, Kind: kind, Listings: listings}
}

func TestAggregateMargin(t *testing.T) {
	sales := []models.SourceResult{result("Amazon", models.KindSales,
		models.NewListing("Amazon", "Yoga Mat A", "$10.00", usd(10)),
		models.NewListing("Amazon", "Yoga Mat B", "$20.00", usd(20)),
	)}
	sourcing := []models.SourceResult{result("1688", models.KindSourcing,
		models.NewListing("1688", "瑜伽垫", "¥50", cny(50)),
	)}

	e := NewEngine(Config{ExchangeRate: 7.2, MarginThreshold: 0.4}, nil, nil)
	report := e.Aggregate(context.Background(), "yoga mat", sales, sourcing, nil)

	assert.Equal(t, "15", report.PerPlatformAvg["Amazon"].Amount.String())
	assert.Equal(t, models.CurrencyUSD, report.PerPlatformAvg["Amazon"].Currency)
	assert.True(t, report.CrossPlatformAvgCNY.Amount.Equal(decimal.NewFromInt(108)))
	assert.True(t, report.SourcingAvgCNY.Amount.Equal(decimal.NewFromInt(50)))
	assert.InDelta(t, 0.537, report.GrossMarginPct, 0.001)
	assert.Equal(t, models.HighPotential, report.Recommendation)
	assert.Equal(t, NarrativePlaceholder, report.Narrative)
	require.Len(t, report.Sources, 2)
}

func TestAggregateWithoutSales(t *testing.T) {
	sourcing := []models.SourceResult{result("1688", models.KindSourcing,
		models.NewListing("1688", "瑜伽垫", "¥50", cny(50)),
	)}

	report := NewEngine(DefaultConfig(), nil, nil).Aggregate(context.Background(), "yoga mat", nil, sourcing, nil)

	assert.Zero(t, report.GrossMarginPct)
	assert.Equal(t, models.MediumLowPotential, report.Recommendation)
	assert.Empty(t, report.PerPlatformAvg)
	assert.True(t, report.CrossPlatformAvgCNY.Amount.IsZero())
}

func TestUnknownPricesAreExcluded(t *testing.T) {
	sales := []models.SourceResult{result("Amazon", models.KindSales,
		models.NewListing("Amazon", "Priced", "$12.00", usd(12)),
		models.NewListing("Amazon", "Unpriced", "N/A", models.UnknownMoney()),
	), result("Temu", models.KindSales,
		models.NewListing("Temu", "Unpriced", "N/A", models.UnknownMoney()),
	)}

	avg := PlatformAverages(sales)

	require.Len(t, avg, 1)
	assert.Equal(t, "12", avg["Amazon"].Amount.String())
}

func TestCrossPlatformAverageUsesPlatformMeans(t *testing.T) {
	sales := []models.SourceResult{
		result("Amazon", models.KindSales,
			models.NewListing("Amazon", "A", "$10", usd(10)),
			models.NewListing("Amazon", "B", "$30", usd(30)),
		),
		result("TikTok", models.KindSales,
			models.NewListing("TikTok", "C", "$10", usd(10)),
		),
	}

	report := NewEngine(Config{ExchangeRate: 2}, nil, nil).Compute("k", sales, nil)

	// (20*2 + 10*2) / 2
	assert.True(t, report.CrossPlatformAvgCNY.Amount.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 1.0, report.GrossMarginPct)
}

func TestGrossMargin(t *testing.T) {
	tests := []struct {
		name     string
		sales    int64
		sourcing int64
		expected float64
	}{
		{"Positive margin", 100, 40, 0.6},
		{"Zero sales", 0, 40, 0},
		{"Sourcing above sales", 50, 100, -1},
		{"No sourcing", 100, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GrossMargin(decimal.NewFromInt(tt.sales), decimal.NewFromInt(tt.sourcing))
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestThresholdIsExclusive(t *testing.T) {
	sales := []models.SourceResult{result("Amazon", models.KindSales,
		models.NewListing("Amazon", "A", "$100", models.Money{Amount: decimal.NewFromInt(100), Currency: models.CurrencyCNY}),
	)}
	sourcing := []models.SourceResult{result("1688", models.KindSourcing,
		models.NewListing("1688", "B", "¥60", cny(60)),
	)}

	report := NewEngine(Config{MarginThreshold: 0.4}, nil, nil).Compute("k", sales, sourcing)

	assert.InDelta(t, 0.4, report.GrossMarginPct, 1e-9)
	assert.Equal(t, models.MediumLowPotential, report.Recommendation)
}

func TestNarrative(t *testing.T) {
	sales := []models.SourceResult{result("Amazon", models.KindSales,
		models.NewListing("Amazon", "Yoga Mat", "$10", usd(10)),
	)}
	sourcing := []models.SourceResult{result("1688", models.KindSourcing,
		models.NewListing("1688", "瑜伽垫", "¥20", cny(20)),
	)}

	t.Run("LLM reply is used", func(t *testing.T) {
		fake := &fakeLLM{reply: "Solid niche."}
		report := NewEngine(DefaultConfig(), fake, nil).Aggregate(context.Background(), "yoga mat", sales, sourcing, nil)

		assert.Equal(t, "Solid niche.", report.Narrative)
		assert.Equal(t, 1, fake.calls)
		assert.Contains(t, fake.prompt, "yoga mat")
		assert.Contains(t, fake.prompt, "Yoga Mat")
	})

	t.Run("LLM failure leaves numbers intact", func(t *testing.T) {
		withLLM := NewEngine(DefaultConfig(), &fakeLLM{reply: "ok"}, nil).Aggregate(context.Background(), "yoga mat", sales, sourcing, nil)
		failing := NewEngine(DefaultConfig(), &fakeLLM{err: errors.New("timeout")}, nil).Aggregate(context.Background(), "yoga mat", sales, sourcing, nil)

		assert.Equal(t, NarrativePlaceholder, failing.Narrative)
		assert.Equal(t, withLLM.GrossMarginPct, failing.GrossMarginPct)
		assert.Equal(t, withLLM.Recommendation, failing.Recommendation)
		assert.True(t, withLLM.CrossPlatformAvgCNY.Amount.Equal(failing.CrossPlatformAvgCNY.Amount))
	})
}

func TestDigestIsBounded(t *testing.T) {
	var listings []models.Listing
	for i := 0; i < 20; i++ {
		l := models.NewListing("Kickstarter", "Smart Mat "+strings.Repeat("x", i), "$99", usd(99))
		l.Secondary = &models.Metric{Kind: models.MetricPledged, Value: "$12,000"}
		listings = append(listings, l)
	}
	trend := []models.SourceResult{result("Kickstarter", models.KindTrend, listings...)}

	digest := Digest("yoga mat", models.AnalysisReport{Recommendation: models.MediumLowPotential}, nil, nil, trend, 3)

	assert.Equal(t, 3, strings.Count(digest, "[Kickstarter]"))
	assert.Contains(t, digest, "pledged $12,000")
	assert.Contains(t, digest, "## Sales listings\n- none")
}

func TestMarginThresholdConfig(t *testing.T) {
	sales := []models.SourceResult{result("Amazon", models.KindSales,
		models.NewListing("Amazon", "A", "$100", models.Money{Amount: decimal.NewFromInt(100), Currency: models.CurrencyCNY}),
	)}
	sourcing := []models.SourceResult{result("1688", models.KindSourcing,
		models.NewListing("1688", "B", "¥90", cny(90)),
	)}

	tests := []struct {
		name      string
		threshold float64
		want      float64
		rec       models.Recommendation
	}{
		{"Zero is kept", 0, 0, models.HighPotential},
		{"Negative falls back to default", -1, 0.4, models.MediumLowPotential},
		{"Explicit value is kept", 0.05, 0.05, models.HighPotential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(Config{ExchangeRate: 7.2, MarginThreshold: tt.threshold}, nil, nil)
			assert.Equal(t, tt.want, e.cfg.MarginThreshold)

			report := e.Compute("k", sales, sourcing)
			assert.InDelta(t, 0.1, report.GrossMarginPct, 1e-9)
			assert.Equal(t, tt.rec, report.Recommendation)
		})
	}
}
