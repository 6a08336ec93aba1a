// Package events defines the integration events emitted when an analysis
// run finishes and the consumer that reads them back from Redis.
package events

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/market-scout/internal/models"
)

type EventType string

const (
	EventTypeAnalysisCompleted EventType = "ANALYSIS_COMPLETED"

	AggregateAnalysis    = "analysis"
	StreamMarketAnalysis = "stream:market_analysis"
	SourceName           = "market-scout"
)

// AnalysisCompletedPayload is published once per completed run.
type AnalysisCompletedPayload struct {
	EventID             string            `json:"event_id"`
	EventType           string            `json:"event_type"`
	Timestamp           time.Time         `json:"timestamp"`
	RunID               string            `json:"run_id"`
	Keyword             string            `json:"keyword"`
	Recommendation      string            `json:"recommendation"`
	GrossMarginPct      float64           `json:"gross_margin_pct"`
	CrossPlatformAvgCNY string            `json:"cross_platform_avg_cny"`
	SourcingAvgCNY      string            `json:"sourcing_avg_cny"`
	PerPlatformAvg      map[string]string `json:"per_platform_avg,omitempty"`
	ListingCount        int               `json:"listing_count"`
	FailedSources       []string          `json:"failed_sources,omitempty"`
	Source              string            `json:"source"`
}

func NewAnalysisCompleted(runID string, report models.AnalysisReport) *AnalysisCompletedPayload {
	p := &AnalysisCompletedPayload{
		EventID:             uuid.New().String(),
		EventType:           string(EventTypeAnalysisCompleted),
		Timestamp:           time.Now().UTC(),
		RunID:               runID,
		Keyword:             report.Keyword,
		Recommendation:      string(report.Recommendation),
		GrossMarginPct:      report.GrossMarginPct,
		CrossPlatformAvgCNY: report.CrossPlatformAvgCNY.Amount.StringFixed(2),
		SourcingAvgCNY:      report.SourcingAvgCNY.Amount.StringFixed(2),
		PerPlatformAvg:      make(map[string]string, len(report.PerPlatformAvg)),
		Source:              SourceName,
	}

	for platform, avg := range report.PerPlatformAvg {
		p.PerPlatformAvg[platform] = avg.String()
	}
	for _, s := range report.Sources {
		p.ListingCount += s.Listings
		if s.Error != "" {
			p.FailedSources = append(p.FailedSources, s.Source)
		}
	}
	sort.Strings(p.FailedSources)

	return p
}

func (p *AnalysisCompletedPayload) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", p.EventType, err)
	}
	return data, nil
}

// StreamValues flattens the payload into stream fields. The full JSON rides
// along under "data" for consumers that need the per-platform averages.
func (p *AnalysisCompletedPayload) StreamValues() (map[string]interface{}, error) {
	data, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"event_id":               p.EventID,
		"event_type":             p.EventType,
		"timestamp":              p.Timestamp.Format(time.RFC3339),
		"run_id":                 p.RunID,
		"keyword":                p.Keyword,
		"recommendation":         p.Recommendation,
		"gross_margin_pct":       strconv.FormatFloat(p.GrossMarginPct, 'f', 4, 64),
		"cross_platform_avg_cny": p.CrossPlatformAvgCNY,
		"sourcing_avg_cny":       p.SourcingAvgCNY,
		"listing_count":          strconv.Itoa(p.ListingCount),
		"failed_sources":         strings.Join(p.FailedSources, ","),
		"source":                 p.Source,
		"data":                   string(data),
	}, nil
}
