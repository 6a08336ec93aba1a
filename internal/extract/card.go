package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Card is one search-result container detached from the live page: its
// outer HTML parsed with goquery plus the rendered text the browser reported.
// Heuristics only ever see a Card, so they can be exercised against
// synthetic fixtures.
type Card struct {
	root    *goquery.Selection
	text    string
	baseURL string
}

// NewCard parses outerHTML. renderedText is the element's innerText; when it
// is empty the goquery text content is used instead.
func NewCard(outerHTML, renderedText, baseURL string) (*Card, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse card HTML: %w", err)
	}

	root := doc.Find("body").Children().First()
	if root.Length() == 0 {
		return nil, fmt.Errorf("card HTML has no root element")
	}

	text := renderedText
	if strings.TrimSpace(text) == "" {
		text = root.Text()
	}

	return &Card{root: root, text: text, baseURL: baseURL}, nil
}

func (c *Card) Text() string {
	return c.text
}

// Lines returns the non-empty trimmed lines of the rendered text.
func (c *Card) Lines() []string {
	var lines []string
	for _, line := range strings.Split(c.text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Find matches selector against the card root itself and its descendants.
func (c *Card) Find(selector string) *goquery.Selection {
	if c.root.Is(selector) {
		return c.root.AddSelection(c.root.Find(selector))
	}
	return c.root.Find(selector)
}

func (c *Card) Root() *goquery.Selection {
	return c.root
}

// Resolve turns a relative link into an absolute one using the source's base URL.
func (c *Card) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}

	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() || c.baseURL == "" {
		return href
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
