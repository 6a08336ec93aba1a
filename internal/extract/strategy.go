package extract

import (
	"fmt"
)

type Field string

const (
	FieldTitle         Field = "title"
	FieldPrice         Field = "price"
	FieldRating        Field = "rating"
	FieldSoldCount     Field = "sold_count"
	FieldSupplier      Field = "supplier"
	FieldLink          Field = "link"
	FieldID            Field = "id"
	FieldPledged       Field = "pledged"
	FieldPercentFunded Field = "percent_funded"
	FieldDaysToGo      Field = "days_to_go"
	FieldDescription   Field = "description"
)

// Sentinels written when every heuristic for a field fails, so downstream
// code never has to special-case a missing field.
const (
	SentinelNA      = "N/A"
	SentinelUnknown = "Unknown"
	SentinelZero    = "0"
	SentinelEmpty   = ""
)

// Strategy is the ordered heuristic chain for one field, most specific first.
type Strategy struct {
	Field      Field
	Heuristics []Heuristic
	Sentinel   string
}

func NewStrategy(field Field, sentinel string, heuristics ...Heuristic) Strategy {
	return Strategy{Field: field, Heuristics: heuristics, Sentinel: sentinel}
}

// Resolve returns the first value any heuristic yields, or the sentinel.
func (s Strategy) Resolve(c *Card) string {
	value, _ := s.Lookup(c)
	return value
}

// Lookup is Resolve that also reports whether a heuristic matched.
func (s Strategy) Lookup(c *Card) (string, bool) {
	for _, h := range s.Heuristics {
		if value, ok := h(c); ok {
			return value, true
		}
	}
	return s.Sentinel, false
}

// Fields holds the resolved value of every field in a plan for one card.
type Fields struct {
	values  map[Field]string
	matched map[Field]bool
}

func (f Fields) Get(field Field) string {
	return f.values[field]
}

// Has reports whether a heuristic matched field, as opposed to it holding its sentinel.
func (f Fields) Has(field Field) bool {
	return f.matched[field]
}

// Plan is the set of strategies a source applies to each of its cards.
type Plan struct {
	Strategies []Strategy
}

func NewPlan(strategies ...Strategy) Plan {
	return Plan{Strategies: strategies}
}

// Apply runs every strategy against the card. A panicking heuristic is
// reported as an error so the caller can skip the card.
func (p Plan) Apply(c *Card) (fields Fields, err error) {
	defer func() {
		if r := recover(); r != nil {
			fields = Fields{}
			err = fmt.Errorf("heuristic panic: %v", r)
		}
	}()

	fields = Fields{
		values:  make(map[Field]string, len(p.Strategies)),
		matched: make(map[Field]bool, len(p.Strategies)),
	}
	for _, s := range p.Strategies {
		value, ok := s.Lookup(c)
		fields.values[s.Field] = value
		fields.matched[s.Field] = ok
	}
	return fields, nil
}
