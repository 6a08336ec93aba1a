package models

import (
	"time"
)

// SourceKind separates retail (sales) sources from supplier (sourcing) and
// trend-only sources.
type SourceKind string

const (
	KindSales    SourceKind = "sales"
	KindSourcing SourceKind = "sourcing"
	KindTrend    SourceKind = "trend"
)

// SourceResult is the final outcome of one adapter run. Err is set only for
// fatal failures, in which case Listings is empty. Non-fatal problems
// (incomplete extraction, unresolved challenge) are kept in Warnings next to
// whatever listings were gathered.
type SourceResult struct {
	Source   string        `json:"source"`
	Kind     SourceKind    `json:"kind"`
	Listings []Listing     `json:"listings"`
	Err      error         `json:"-"`
	Warnings []string      `json:"warnings,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

func (r SourceResult) OK() bool {
	return r.Err == nil
}

func (r SourceResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// CountListings sums listings across results.
func CountListings(results []SourceResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Listings)
	}
	return n
}

type Recommendation string

const (
	HighPotential      Recommendation = "High Potential"
	MediumLowPotential Recommendation = "Medium/Low Potential"
)

// SourceSummary is the per-source status line carried by a report.
type SourceSummary struct {
	Source   string     `json:"source"`
	Kind     SourceKind `json:"kind"`
	Listings int        `json:"listings"`
	Error    string     `json:"error,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
	Elapsed  string     `json:"elapsed"`
}

type AnalysisReport struct {
	Keyword             string           `json:"keyword"`
	PerPlatformAvg      map[string]Money `json:"per_platform_avg"`
	CrossPlatformAvgCNY Money            `json:"cross_platform_avg_cny"`
	SourcingAvgCNY      Money            `json:"sourcing_avg_cny"`
	GrossMarginPct      float64          `json:"gross_margin_pct"`
	Recommendation      Recommendation   `json:"recommendation"`
	Narrative           string           `json:"narrative,omitempty"`
	ExchangeRate        float64          `json:"exchange_rate"`
	Sources             []SourceSummary  `json:"sources"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

func Summarize(results []SourceResult) []SourceSummary {
	out := make([]SourceSummary, 0, len(results))
	for _, r := range results {
		out = append(out, SourceSummary{
			Source:   r.Source,
			Kind:     r.Kind,
			Listings: len(r.Listings),
			Error:    r.Error(),
			Warnings: r.Warnings,
			Elapsed:  r.Elapsed.Round(time.Millisecond).String(),
		})
	}
	return out
}
