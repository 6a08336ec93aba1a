package parser

import (
	"regexp"
	"strings"

	"github.com/maltedev/market-scout/internal/models"
	"github.com/shopspring/decimal"
)

// Sentinel written by extraction when no heuristic yields a price.
const NotAvailable = "N/A"

var (
	// a whole string of the form "<price> <sep> <price>"
	rangePattern = regexp.MustCompile(`^\D*([\d.,]+)\s*[-~–—]\s*\D*[\d.,]+\D*$`)
	// a number directly behind a currency symbol wins over other numbers in
	// the text, e.g. "Save 20% - $12.99"
	taggedPattern = regexp.MustCompile(`(?:[$¥￥€£₱₫฿₹]|RM|Rp)\s*(\d[\d,]*(?:\.\d+)?|\.\d+)`)
	countPattern  = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(k|m|万)?(?:[^a-z]|$)`)
)

// PriceParser turns display prices into Money. Currency comes from the
// platform the text was scraped from, never from the text itself, because
// symbols are used inconsistently across sites.
type PriceParser struct {
	Currency models.Currency
}

func NewPriceParser(currency models.Currency) PriceParser {
	return PriceParser{Currency: currency}
}

// Parse never fails: unparseable input yields {0, UNKNOWN}.
func (p PriceParser) Parse(raw string) models.Money {
	amount, ok := ParseAmount(raw)
	if !ok {
		return models.UnknownMoney()
	}
	currency := p.Currency
	if currency == "" {
		currency = models.CurrencyUnknown
	}
	return models.Money{Amount: amount, Currency: currency}
}

// ParseAmount strips everything but digits and the decimal point and parses
// what remains. A price range ("¥12.5-15") is reduced to its lower bound
// first, and text carrying several numbers is reduced to the one behind a
// currency symbol.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, NotAvailable) {
		return decimal.Zero, false
	}

	if m := rangePattern.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	} else if m := taggedPattern.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	cleaned := numericPart(raw)
	if cleaned == "" {
		return decimal.Zero, false
	}
	if cleaned[0] == '.' {
		cleaned = "0" + cleaned
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

// numericPart keeps digits and every decimal point that is followed by a
// digit, so "Rs. 12" reads 12 while "$.99" reads .99.
func numericPart(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case isDigit(c):
			b.WriteByte(c)
		case c == '.' && i+1 < len(raw) && isDigit(raw[i+1]):
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// ParseCount reads sold counts such as "1.2K+ sold", "3,400 sold" or "2万".
// Returns 0 when no number is present.
func ParseCount(raw string) int64 {
	m := countPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}

	number := m[1]
	suffix := strings.ToLower(m[2])

	if suffix == "" {
		number = strings.ReplaceAll(number, ",", "")
		if strings.Count(number, ".") > 1 {
			number = strings.ReplaceAll(number, ".", "")
		}
	} else {
		number = strings.ReplaceAll(number, ",", ".")
	}

	value, err := decimal.NewFromString(number)
	if err != nil {
		return 0
	}

	switch suffix {
	case "k":
		value = value.Mul(decimal.NewFromInt(1000))
	case "m":
		value = value.Mul(decimal.NewFromInt(1000000))
	case "万":
		value = value.Mul(decimal.NewFromInt(10000))
	}
	return value.IntPart()
}
