package models

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyUSD     Currency = "USD"
	CurrencyCNY     Currency = "CNY"
	CurrencyUnknown Currency = "UNKNOWN"
)

// Money is a parsed price. A failed parse is always {0, UNKNOWN}, never a nil value.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

func UnknownMoney() Money {
	return Money{Amount: decimal.Zero, Currency: CurrencyUnknown}
}

func (m Money) IsKnown() bool {
	return m.Currency != "" && m.Currency != CurrencyUnknown
}

func (m Money) Float() float64 {
	f, _ := m.Amount.Float64()
	return f
}

func (m Money) String() string {
	if !m.IsKnown() {
		return "N/A"
	}
	return m.Amount.StringFixed(2) + " " + string(m.Currency)
}

// MetricKind tags the meaning of a platform's secondary number so aggregation
// can branch on kind instead of platform name.
type MetricKind string

const (
	MetricSoldCount     MetricKind = "sold_count"
	MetricRating        MetricKind = "rating"
	MetricPledged       MetricKind = "pledged"
	MetricPercentFunded MetricKind = "percent_funded"
	MetricDaysToGo      MetricKind = "days_to_go"
	MetricSupplier      MetricKind = "supplier"
	MetricDescription   MetricKind = "description"
)

type Metric struct {
	Kind  MetricKind `json:"kind"`
	Value string     `json:"value"`
}

// Listing is one observed product or offer. It is a value type: copies are
// handed around and the With* helpers return modified copies, so a listing
// appended to a result set is never changed in place.
type Listing struct {
	Platform  string
	Keyword   string
	Title     string
	PriceRaw  string
	Price     Money
	Secondary *Metric
	Extras    []Metric
	URL       string
}

func NewListing(platform, title, priceRaw string, price Money) Listing {
	return Listing{
		Platform: platform,
		Title:    strings.TrimSpace(title),
		PriceRaw: strings.TrimSpace(priceRaw),
		Price:    price,
	}
}

func (l Listing) WithKeyword(keyword string) Listing {
	l.Keyword = keyword
	l.Extras = append([]Metric(nil), l.Extras...)
	if l.Secondary != nil {
		s := *l.Secondary
		l.Secondary = &s
	}
	return l
}

// Metric returns the value recorded for kind, looking at the secondary
// metric first and then the extras.
func (l Listing) Metric(kind MetricKind) (string, bool) {
	if l.Secondary != nil && l.Secondary.Kind == kind {
		return l.Secondary.Value, true
	}
	for _, m := range l.Extras {
		if m.Kind == kind {
			return m.Value, true
		}
	}
	return "", false
}

// ListingRecord is the JSON hand-off shape consumed by report writers. Price
// carries the raw display string, not the parsed amount.
type ListingRecord struct {
	Platform            string     `json:"platform"`
	Keyword             string     `json:"keyword"`
	Title               string     `json:"title"`
	Price               string     `json:"price"`
	SecondaryMetric     string     `json:"secondaryMetric,omitempty"`
	SecondaryMetricKind MetricKind `json:"secondaryMetricKind,omitempty"`
	URL                 string     `json:"url,omitempty"`
}

func (l Listing) Record() ListingRecord {
	rec := ListingRecord{
		Platform: l.Platform,
		Keyword:  l.Keyword,
		Title:    l.Title,
		Price:    l.PriceRaw,
		URL:      l.URL,
	}
	if l.Secondary != nil {
		rec.SecondaryMetric = l.Secondary.Value
		rec.SecondaryMetricKind = l.Secondary.Kind
	}
	return rec
}

func (l Listing) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Record())
}
