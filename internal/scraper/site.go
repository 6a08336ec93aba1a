package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/market-scout/internal/browser"
	"github.com/maltedev/market-scout/internal/challenge"
	"github.com/maltedev/market-scout/internal/extract"
	"github.com/maltedev/market-scout/internal/models"
	"github.com/maltedev/market-scout/internal/parser"
)

const (
	defaultNavTimeout   = 60 * time.Second
	defaultReadyTimeout = 20 * time.Second
	defaultScrollPause  = time.Second
)

// Site describes how one external site is searched and read. Every adapter
// is a Site run through the same flow.
type Site struct {
	Platform string
	Kind     models.SourceKind
	Currency models.Currency
	Profile  browser.Profile

	SearchURL func(keyword string) (string, error)
	// BaseURL resolves relative card links.
	BaseURL string

	NavTimeout     time.Duration
	ReadySelectors []string
	ReadyTimeout   time.Duration

	// Prepare runs after the results wait and before scrolling, e.g. to
	// dismiss a modal. Errors are logged and ignored.
	Prepare func(ctx context.Context, page browser.Page) error

	Scrolls     int
	ScrollBy    int
	ScrollPause time.Duration

	CardSelector string
	Plan         extract.Plan
	// Accept drops cards that resolved but do not look like real offers.
	Accept func(f extract.Fields, c *extract.Card) bool
	Dedupe bool

	Secondary extract.Field
	Extras    []extract.Field

	// Signals extends the detector's challenge signals for this site.
	Signals []string
	// Setup runs before the browser session is opened.
	Setup func() error
}

type Deps struct {
	Launcher browser.Launcher
	Detector *challenge.Detector
	Sink     DiagnosticSink
	Logger   *slog.Logger
}

// SiteAdapter runs a Site through the shared search flow.
type SiteAdapter struct {
	site     Site
	launcher browser.Launcher
	detector *challenge.Detector
	sink     DiagnosticSink
	prices   parser.PriceParser
	logger   *slog.Logger
}

func NewSiteAdapter(site Site, deps Deps) *SiteAdapter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := deps.Sink
	if sink == nil {
		sink = NoopSink{}
	}
	detector := deps.Detector
	if detector == nil {
		detector = challenge.NewDetector(challenge.Config{Unattended: true}, logger)
	}
	if len(site.Signals) > 0 {
		detector = detector.WithSignals(site.Signals...)
	}

	if site.NavTimeout <= 0 {
		site.NavTimeout = defaultNavTimeout
	}
	if site.ReadyTimeout <= 0 {
		site.ReadyTimeout = defaultReadyTimeout
	}
	if site.ScrollPause <= 0 {
		site.ScrollPause = defaultScrollPause
	}
	if site.Profile.Name == "" {
		site.Profile = browser.DefaultProfile(site.Platform)
	}

	return &SiteAdapter{
		site:     site,
		launcher: deps.Launcher,
		detector: detector,
		sink:     sink,
		prices:   parser.NewPriceParser(site.Currency),
		logger:   logger.With("component", "scraper", "source", site.Platform),
	}
}

func (a *SiteAdapter) Name() string {
	return a.site.Platform
}

func (a *SiteAdapter) Kind() models.SourceKind {
	return a.site.Kind
}

func (a *SiteAdapter) Site() Site {
	return a.site
}

func (a *SiteAdapter) Search(ctx context.Context, keyword string, limit int) ([]models.Listing, error) {
	searchURL, err := a.site.SearchURL(keyword)
	if err != nil {
		return nil, fmt.Errorf("failed to build search URL: %w", err)
	}

	if a.site.Setup != nil {
		if err := a.site.Setup(); err != nil {
			return nil, fmt.Errorf("failed to prepare %s: %w", a.site.Platform, err)
		}
	}

	session, err := a.launcher.Open(ctx, a.site.Profile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open browser session: %v", ErrNavigationFailed, err)
	}
	defer session.Close()

	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create page: %v", ErrNavigationFailed, err)
	}
	defer page.Close()

	a.logger.Info("searching", "keyword", keyword, "url", searchURL)

	if err := page.Goto(ctx, searchURL, a.site.NavTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.sink.Capture(ctx, page, a.site.Platform, "navigation")
		return nil, fmt.Errorf("%w: %s: %v", ErrNavigationFailed, searchURL, err)
	}

	var warnings []error

	state := a.detector.Check(ctx, page)
	if state == challenge.TimedOut {
		warnings = append(warnings, ErrChallengeTimedOut)
	}

	if err := page.WaitForSelector(ctx, a.site.ReadySelectors, a.site.ReadyTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn("results did not load in time, extracting anyway", "error", err)
		a.sink.Capture(ctx, page, a.site.Platform, "wait")
		if state == challenge.Clear && a.detector.Check(ctx, page) == challenge.TimedOut {
			warnings = append(warnings, ErrChallengeTimedOut)
		}
	}

	if a.site.Prepare != nil {
		if err := a.site.Prepare(ctx, page); err != nil {
			a.logger.Debug("prepare step failed", "error", err)
		}
	}

	if err := a.scroll(ctx, page); err != nil {
		return nil, err
	}

	listings, err := a.extract(ctx, page, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrExtractionIncomplete) {
			return nil, err
		}
		warnings = append(warnings, err)
	}

	if len(listings) == 0 {
		a.sink.Capture(ctx, page, a.site.Platform, "empty")
	}

	a.logger.Info("search finished", "listings", len(listings), "warnings", len(warnings))
	return listings, errors.Join(warnings...)
}

func (a *SiteAdapter) scroll(ctx context.Context, page browser.Page) error {
	for i := 0; i < a.site.Scrolls; i++ {
		script := fmt.Sprintf("window.scrollBy(0, %d)", a.site.ScrollBy)
		if _, err := page.Evaluate(ctx, script, nil); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Debug("scroll failed", "error", err)
		}
		if err := sleep(ctx, a.site.ScrollPause); err != nil {
			return err
		}
	}
	return nil
}

// extract reads cards until limit listings are accepted. A card that fails is
// skipped; skipped cards are reported as ErrExtractionIncomplete.
func (a *SiteAdapter) extract(ctx context.Context, page browser.Page, limit int) ([]models.Listing, error) {
	elements, err := page.QueryAll(ctx, a.site.CardSelector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: failed to query cards: %v", ErrExtractionIncomplete, err)
	}

	a.logger.Debug("found cards", "count", len(elements))

	var (
		listings []models.Listing
		seen     = make(map[string]bool)
		skipped  int
	)

	for i, el := range elements {
		if limit > 0 && len(listings) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		listing, ok, err := a.readCard(ctx, el)
		if err != nil {
			skipped++
			a.logger.Debug("skipping card", "index", i, "error", err)
			continue
		}
		if !ok {
			continue
		}

		if a.site.Dedupe && listing.URL != "" {
			if seen[listing.URL] {
				continue
			}
			seen[listing.URL] = true
		}

		listings = append(listings, listing)
	}

	if skipped > 0 {
		return listings, fmt.Errorf("%w: skipped %d of %d cards", ErrExtractionIncomplete, skipped, len(elements))
	}
	return listings, nil
}

func (a *SiteAdapter) readCard(ctx context.Context, el browser.Element) (models.Listing, bool, error) {
	html, err := el.OuterHTML(ctx)
	if err != nil {
		return models.Listing{}, false, fmt.Errorf("failed to read card HTML: %w", err)
	}
	text, err := el.InnerText(ctx)
	if err != nil {
		text = ""
	}

	card, err := extract.NewCard(html, text, a.site.BaseURL)
	if err != nil {
		return models.Listing{}, false, err
	}

	fields, err := a.site.Plan.Apply(card)
	if err != nil {
		return models.Listing{}, false, err
	}

	if a.site.Accept != nil && !a.site.Accept(fields, card) {
		return models.Listing{}, false, nil
	}

	return a.build(fields), true, nil
}

func (a *SiteAdapter) build(f extract.Fields) models.Listing {
	priceRaw := f.Get(extract.FieldPrice)
	if priceRaw == "" {
		priceRaw = parser.NotAvailable
	}

	l := models.NewListing(a.site.Platform, f.Get(extract.FieldTitle), priceRaw, a.prices.Parse(priceRaw))
	l.URL = f.Get(extract.FieldLink)

	if a.site.Secondary != "" {
		l.Secondary = &models.Metric{
			Kind:  models.MetricKind(a.site.Secondary),
			Value: f.Get(a.site.Secondary),
		}
	}
	for _, field := range a.site.Extras {
		l.Extras = append(l.Extras, models.Metric{Kind: models.MetricKind(field), Value: f.Get(field)})
	}
	return l
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
