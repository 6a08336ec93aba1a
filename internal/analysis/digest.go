package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maltedev/market-scout/internal/models"
)

// Digest renders the bounded prompt context: the computed numbers and at
// most perCategory listings from each of sales, trend and sourcing.
func Digest(keyword string, report models.AnalysisReport, sales, sourcing, trend []models.SourceResult, perCategory int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Product keyword: %s\n\n", keyword)

	b.WriteString("## Price summary\n")
	platforms := make([]string, 0, len(report.PerPlatformAvg))
	for p := range report.PerPlatformAvg {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	for _, p := range platforms {
		fmt.Fprintf(&b, "- %s average: %s\n", p, report.PerPlatformAvg[p])
	}
	fmt.Fprintf(&b, "- Cross-platform average: %s (rate %.2f)\n", report.CrossPlatformAvgCNY, report.ExchangeRate)
	fmt.Fprintf(&b, "- Sourcing average: %s\n", report.SourcingAvgCNY)
	fmt.Fprintf(&b, "- Estimated gross margin: %.1f%% (%s)\n\n", report.GrossMarginPct*100, report.Recommendation)

	writeSection(&b, "Sales listings", sales, perCategory)
	writeSection(&b, "Trend signals", trend, perCategory)
	writeSection(&b, "Sourcing offers", sourcing, perCategory)

	b.WriteString("Give a short market assessment: demand signals, price positioning, ")
	b.WriteString("differentiation ideas drawn from the trend signals, and risks.\n")

	return b.String()
}

func writeSection(b *strings.Builder, title string, results []models.SourceResult, limit int) {
	fmt.Fprintf(b, "## %s\n", title)

	n := 0
	for _, r := range results {
		for _, l := range r.Listings {
			if n >= limit {
				break
			}
			b.WriteString("- ")
			b.WriteString(describe(l))
			b.WriteString("\n")
			n++
		}
	}
	if n == 0 {
		b.WriteString("- none\n")
	}
	b.WriteString("\n")
}

func describe(l models.Listing) string {
	parts := []string{fmt.Sprintf("[%s] %s", l.Platform, truncate(l.Title, 80))}

	if l.PriceRaw != "" && l.PriceRaw != "N/A" {
		parts = append(parts, "price "+l.PriceRaw)
	}

	for _, kind := range []models.MetricKind{
		models.MetricSoldCount,
		models.MetricRating,
		models.MetricPledged,
		models.MetricPercentFunded,
		models.MetricDaysToGo,
		models.MetricSupplier,
	} {
		if v, ok := l.Metric(kind); ok && v != "" && v != "N/A" && v != "0" {
			parts = append(parts, fmt.Sprintf("%s %s", strings.ReplaceAll(string(kind), "_", " "), v))
		}
	}
	return strings.Join(parts, " | ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
