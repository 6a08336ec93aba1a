package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/maltedev/market-scout/internal/models"
)

// ReportFile is the JSON document written for each analysis.
type ReportFile struct {
	Report   models.AnalysisReport             `json:"report"`
	Listings map[string][]models.ListingRecord `json:"listings"`
}

type Paths struct {
	JSON string `json:"json"`
	CSV  string `json:"csv"`
}

// ReportWriter stores each analysis as a JSON report plus a CSV export of
// every listing under dir.
type ReportWriter struct {
	dir string
	now func() time.Time
}

func NewReportWriter(dir string) (*ReportWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}
	return &ReportWriter{dir: dir, now: time.Now}, nil
}

func (w *ReportWriter) Write(report models.AnalysisReport, results []models.SourceResult) (Paths, error) {
	base := filepath.Join(w.dir, fmt.Sprintf("%s_%s", slug(report.Keyword), w.now().Format("20060102_150405")))
	paths := Paths{JSON: base + ".json", CSV: base + ".csv"}

	doc := ReportFile{Report: report, Listings: make(map[string][]models.ListingRecord)}
	for _, r := range results {
		kind := string(r.Kind)
		for _, l := range r.Listings {
			doc.Listings[kind] = append(doc.Listings[kind], l.Record())
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Paths{}, fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := writeAtomic(paths.JSON, data); err != nil {
		return Paths{}, fmt.Errorf("failed to write report: %w", err)
	}

	csvData, err := ListingsCSV(results)
	if err != nil {
		return Paths{}, err
	}
	if err := writeAtomic(paths.CSV, csvData); err != nil {
		return Paths{}, fmt.Errorf("failed to write listings csv: %w", err)
	}

	return paths, nil
}

var csvHeader = []string{"source", "kind", "platform", "keyword", "title", "price", "amount", "currency", "metric_kind", "metric", "url"}

// ListingsCSV renders every listing as one CSV row.
func ListingsCSV(results []models.SourceResult) ([]byte, error) {
	var buf bytes.Buffer
	// UTF-8 BOM so spreadsheet tools read Chinese titles correctly
	buf.WriteString("\ufeff")

	cw := csv.NewWriter(&buf)
	if err := cw.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, r := range results {
		for _, l := range r.Listings {
			amount := ""
			if l.Price.IsKnown() {
				amount = l.Price.Amount.String()
			}
			rec := l.Record()
			if err := cw.Write([]string{
				r.Source, string(r.Kind), l.Platform, l.Keyword, l.Title, l.PriceRaw,
				amount, string(l.Price.Currency), string(rec.SecondaryMetricKind), rec.SecondaryMetric, l.URL,
			}); err != nil {
				return nil, err
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

var slugRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func slug(keyword string) string {
	s := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(keyword), "_"), "_")
	if s == "" {
		return "analysis"
	}
	return s
}
