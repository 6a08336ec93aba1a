package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

type Options struct {
	Headless    bool
	BrowserType string
	Timeout     time.Duration
	ProxyServer string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:    true,
		BrowserType: "chromium",
		Timeout:     30 * time.Second,
	}
}

// Playwright launches one browser process and hands out an isolated context
// per Open call. Profiles with a UserDataDir get their own persistent context.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

func New(opts *Options, logger *slog.Logger) (*Playwright, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browserType, err := selectBrowserType(pw, opts.BrowserType)
	if err != nil {
		pw.Stop()
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     launchArgs(opts.BrowserType),
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	browser, err := browserType.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Playwright{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

func selectBrowserType(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch strings.ToLower(name) {
	case "", "chromium", "chrome":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unsupported browser type %q", name)
	}
}

func launchArgs(browserType string) []string {
	if browserType != "" && browserType != "chromium" && browserType != "chrome" {
		return nil
	}
	return []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-setuid-sandbox",
	}
}

func (b *Playwright) Open(ctx context.Context, profile Profile) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		bctx playwright.BrowserContext
		err  error
	)
	if profile.UserDataDir != "" {
		bctx, err = b.launchPersistent(profile)
	} else {
		bctx, err = b.browser.NewContext(contextOptions(profile))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context for %s: %w", profile.Name, err)
	}

	if len(profile.Cookies) > 0 {
		if err := bctx.AddCookies(toCookies(profile.Cookies)); err != nil {
			bctx.Close()
			return nil, fmt.Errorf("failed to set cookies for %s: %w", profile.Name, err)
		}
	}

	if profile.Stealth {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
			bctx.Close()
			return nil, fmt.Errorf("failed to add stealth script for %s: %w", profile.Name, err)
		}
	}

	b.logger.Debug("opened browser session", "profile", profile.Name, "persistent", profile.UserDataDir != "")

	return &session{ctx: bctx, timeout: b.opts.Timeout}, nil
}

func (b *Playwright) launchPersistent(profile Profile) (playwright.BrowserContext, error) {
	browserType, err := selectBrowserType(b.pw, b.opts.BrowserType)
	if err != nil {
		return nil, err
	}

	opts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:         playwright.Bool(b.opts.Headless),
		Args:             launchArgs(b.opts.BrowserType),
		UserAgent:        playwright.String(profile.UserAgent),
		Locale:           playwright.String(profile.Locale),
		TimezoneId:       playwright.String(profile.TimezoneID),
		ExtraHttpHeaders: profile.ExtraHeaders,
		Viewport: &playwright.Size{
			Width:  profile.ViewportWidth,
			Height: profile.ViewportHeight,
		},
	}
	return browserType.LaunchPersistentContext(profile.UserDataDir, opts)
}

func contextOptions(profile Profile) playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(profile.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(profile.Locale),
		TimezoneId:        playwright.String(profile.TimezoneID),
		ExtraHttpHeaders:  profile.ExtraHeaders,
		Viewport: &playwright.Size{
			Width:  profile.ViewportWidth,
			Height: profile.ViewportHeight,
		},
	}
	if profile.Mobile {
		opts.IsMobile = playwright.Bool(true)
		opts.HasTouch = playwright.Bool(true)
	}
	if profile.DeviceScaleFactor > 0 {
		opts.DeviceScaleFactor = playwright.Float(profile.DeviceScaleFactor)
	}
	return opts
}

func toCookies(cookies []Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		out = append(out, playwright.OptionalCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: playwright.String(c.Domain),
			Path:   playwright.String(path),
		})
	}
	return out
}

func (b *Playwright) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

type session struct {
	ctx     playwright.BrowserContext
	timeout time.Duration
}

func (s *session) NewPage(ctx context.Context) (Page, error) {
	p, err := await(ctx, nil, s.ctx.NewPage)
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	p.SetDefaultTimeout(float64(s.timeout.Milliseconds()))
	return &page{p: p}, nil
}

func (s *session) Close() error {
	if err := s.ctx.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}

type page struct {
	p playwright.Page
}

func (pg *page) abort() {
	pg.p.Close()
}

func (pg *page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	_, err := await(ctx, pg.abort, func() (playwright.Response, error) {
		return pg.p.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		})
	})
	return err
}

func (pg *page) WaitForSelector(ctx context.Context, selectors []string, timeout time.Duration) error {
	if len(selectors) == 0 {
		return nil
	}
	_, err := await(ctx, pg.abort, func() (struct{}, error) {
		return struct{}{}, pg.p.Locator(strings.Join(selectors, ", ")).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrSelectorNotFound, err)
	}
	return err
}

func (pg *page) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	locators, err := await(ctx, pg.abort, pg.p.Locator(selector).All)
	if err != nil {
		return nil, err
	}
	elements := make([]Element, 0, len(locators))
	for _, l := range locators {
		elements = append(elements, &element{l: l, abort: pg.abort})
	}
	return elements, nil
}

func (pg *page) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	return await(ctx, pg.abort, func() (any, error) {
		if arg == nil {
			return pg.p.Evaluate(script)
		}
		return pg.p.Evaluate(script, arg)
	})
}

func (pg *page) Screenshot(ctx context.Context, path string) error {
	_, err := await(ctx, nil, func() ([]byte, error) {
		return pg.p.Screenshot(playwright.PageScreenshotOptions{
			Path:     playwright.String(path),
			FullPage: playwright.Bool(true),
		})
	})
	return err
}

func (pg *page) Title(ctx context.Context) (string, error) {
	return await(ctx, pg.abort, pg.p.Title)
}

func (pg *page) Content(ctx context.Context) (string, error) {
	return await(ctx, pg.abort, pg.p.Content)
}

func (pg *page) URL() string {
	return pg.p.URL()
}

func (pg *page) Close() error {
	if pg.p.IsClosed() {
		return nil
	}
	return pg.p.Close()
}

type element struct {
	l     playwright.Locator
	abort func()
}

func (e *element) OuterHTML(ctx context.Context) (string, error) {
	v, err := await(ctx, e.abort, func() (any, error) {
		return e.l.Evaluate("el => el.outerHTML", nil)
	})
	if err != nil {
		return "", err
	}
	html, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected outerHTML type %T", v)
	}
	return html, nil
}

func (e *element) InnerText(ctx context.Context) (string, error) {
	return await(ctx, e.abort, func() (string, error) { return e.l.InnerText() })
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	return await(ctx, e.abort, func() (string, error) { return e.l.GetAttribute(name) })
}
