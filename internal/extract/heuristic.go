package extract

import (
	"regexp"
	"strings"
)

// Heuristic reads one candidate value from a card. It reports false when it
// has nothing to offer so the next heuristic in the chain can run.
type Heuristic func(c *Card) (string, bool)

var (
	currencySymbolPattern = regexp.MustCompile(`[$€£¥￥]|US\s*\$|RM|CN¥|元`)
	decimalShapePattern   = regexp.MustCompile(`\d+\.\d+`)
	whitespacePattern     = regexp.MustCompile(`\s+`)
)

func clean(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// Selector yields the text of the first element matching css.
func Selector(css string) Heuristic {
	return func(c *Card) (string, bool) {
		text := clean(c.Find(css).First().Text())
		return text, text != ""
	}
}

// SelectorAttr yields attribute attr of the first element matching css.
func SelectorAttr(css, attr string) Heuristic {
	return func(c *Card) (string, bool) {
		value, ok := c.Find(css).First().Attr(attr)
		value = clean(value)
		return value, ok && value != ""
	}
}

// Link yields the resolved href of the first element matching css.
func Link(css string) Heuristic {
	return func(c *Card) (string, bool) {
		href, ok := c.Find(css).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return "", false
		}
		return c.Resolve(href), true
	}
}

// RootAttr yields an attribute of the card container itself.
func RootAttr(attr string) Heuristic {
	return func(c *Card) (string, bool) {
		value, ok := c.Root().Attr(attr)
		value = clean(value)
		return value, ok && value != ""
	}
}

// RootLink yields the resolved href of the card container, for sources whose
// card is the anchor itself.
func RootLink() Heuristic {
	return func(c *Card) (string, bool) {
		href, ok := c.Root().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return "", false
		}
		return c.Resolve(href), true
	}
}

// Pattern applies re to the card's rendered text and yields capture group
// group (0 for the whole match).
func Pattern(re *regexp.Regexp, group int) Heuristic {
	return func(c *Card) (string, bool) {
		m := re.FindStringSubmatch(c.Text())
		if len(m) <= group {
			return "", false
		}
		value := clean(m[group])
		return value, value != ""
	}
}

// FirstLine yields the first non-empty line of rendered text, the last-resort
// title guess for cards without structured title markup.
func FirstLine() Heuristic {
	return func(c *Card) (string, bool) {
		lines := c.Lines()
		if len(lines) == 0 {
			return "", false
		}
		return lines[0], true
	}
}

// Joined concatenates the text of two selectors, e.g. a price split into whole
// and fraction parts. Both must be present.
func Joined(first, second, format string) Heuristic {
	return func(c *Card) (string, bool) {
		a := strings.TrimRight(clean(c.Find(first).First().Text()), ".")
		b := clean(c.Find(second).First().Text())
		if a == "" || b == "" {
			return "", false
		}
		return strings.NewReplacer("{1}", a, "{2}", b).Replace(format), true
	}
}

// Price accepts the wrapped heuristic's value only when it looks like a price:
// it carries a currency symbol or has a digits.digits shape.
func Price(h Heuristic) Heuristic {
	return func(c *Card) (string, bool) {
		value, ok := h(c)
		if !ok {
			return "", false
		}
		if !LooksLikePrice(value) {
			return "", false
		}
		return value, true
	}
}

// Prefixed prepends prefix to the wrapped heuristic's value.
func Prefixed(prefix string, h Heuristic) Heuristic {
	return func(c *Card) (string, bool) {
		value, ok := h(c)
		if !ok {
			return "", false
		}
		return prefix + value, true
	}
}

func LooksLikePrice(s string) bool {
	return currencySymbolPattern.MatchString(s) || decimalShapePattern.MatchString(s)
}
