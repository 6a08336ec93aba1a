package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithKeywordReturnsCopy(t *testing.T) {
	original := NewListing("Temu", " Yoga Mat ", "$9.99", Money{Amount: decimal.RequireFromString("9.99"), Currency: CurrencyUSD})
	original.Secondary = &Metric{Kind: MetricSoldCount, Value: "1.2K"}

	stamped := original.WithKeyword("yoga mat")
	stamped.Secondary.Value = "changed"

	assert.Equal(t, "", original.Keyword)
	assert.Equal(t, "yoga mat", stamped.Keyword)
	assert.Equal(t, "1.2K", original.Secondary.Value)
	assert.Equal(t, "Yoga Mat", original.Title)
}

func TestListingJSONShape(t *testing.T) {
	l := NewListing("Kickstarter", "Smart Mat", "N/A", UnknownMoney())
	l.Keyword = "yoga mat"
	l.Secondary = &Metric{Kind: MetricPledged, Value: "$12,345"}
	l.URL = "https://www.kickstarter.com/projects/x"

	data, err := json.Marshal(l)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "Kickstarter", got["platform"])
	assert.Equal(t, "yoga mat", got["keyword"])
	assert.Equal(t, "N/A", got["price"])
	assert.Equal(t, "$12,345", got["secondaryMetric"])
	assert.Equal(t, "pledged", got["secondaryMetricKind"])
	assert.Equal(t, "https://www.kickstarter.com/projects/x", got["url"])
}

func TestListingMetricLookup(t *testing.T) {
	l := Listing{
		Secondary: &Metric{Kind: MetricPledged, Value: "$500"},
		Extras:    []Metric{{Kind: MetricPercentFunded, Value: "85%"}},
	}

	v, ok := l.Metric(MetricPercentFunded)
	assert.True(t, ok)
	assert.Equal(t, "85%", v)

	_, ok = l.Metric(MetricRating)
	assert.False(t, ok)
}

func TestSummarize(t *testing.T) {
	results := []SourceResult{
		{Source: "amazon", Kind: KindSales, Listings: []Listing{{}, {}}},
		{Source: "temu", Kind: KindSales, Err: errors.New("navigation failed")},
	}

	summaries := Summarize(results)
	require.Len(t, summaries, 2)
	assert.Equal(t, 2, summaries[0].Listings)
	assert.Empty(t, summaries[0].Error)
	assert.Equal(t, "navigation failed", summaries[1].Error)
	assert.Equal(t, 2, CountListings(results))
}

func TestUnknownMoney(t *testing.T) {
	m := UnknownMoney()
	assert.False(t, m.IsKnown())
	assert.True(t, m.Amount.IsZero())
	assert.Equal(t, "N/A", m.String())
}
