package browser

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed           = errors.New("page closed")
	ErrSelectorNotFound = errors.New("no candidate selector appeared")
)

// Element is one node returned by Page.QueryAll.
type Element interface {
	OuterHTML(ctx context.Context) (string, error)
	InnerText(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
}

// Page is the rendering capability adapters drive. Every blocking call
// honors ctx so a stuck navigation can be aborted mid-flight.
type Page interface {
	Goto(ctx context.Context, url string, timeout time.Duration) error
	// WaitForSelector returns once any of selectors is attached, or
	// ErrSelectorNotFound after timeout.
	WaitForSelector(ctx context.Context, selectors []string, timeout time.Duration) error
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	Evaluate(ctx context.Context, script string, arg any) (any, error)
	Screenshot(ctx context.Context, path string) error
	Title(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	URL() string
	Close() error
}

// Session is a browsing context owned by exactly one adapter run.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher opens sessions configured by a Profile.
type Launcher interface {
	Open(ctx context.Context, profile Profile) (Session, error)
}

type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Profile describes the browsing context one source needs.
type Profile struct {
	Name              string
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	Locale            string
	TimezoneID        string
	ExtraHeaders      map[string]string
	Cookies           []Cookie
	Mobile            bool
	DeviceScaleFactor float64
	// UserDataDir selects a persistent context. Only one run may use a given
	// directory at a time.
	UserDataDir string
	Stealth     bool
}

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const mobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

func DefaultProfile(name string) Profile {
	return Profile{
		Name:           name,
		UserAgent:      desktopUserAgent,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         "en-US",
		TimezoneID:     "America/New_York",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"DNT":             "1",
		},
	}
}

// MobileProfile emulates a phone, for sources that serve a usable layout only
// to mobile clients.
func MobileProfile(name string) Profile {
	p := DefaultProfile(name)
	p.UserAgent = mobileUserAgent
	p.ViewportWidth = 390
	p.ViewportHeight = 844
	p.Mobile = true
	p.DeviceScaleFactor = 3
	return p
}

// ChineseProfile is the desktop profile localized for mainland sourcing sites.
func ChineseProfile(name string) Profile {
	p := DefaultProfile(name)
	p.Locale = "zh-CN"
	p.TimezoneID = "Asia/Shanghai"
	p.ExtraHeaders["Accept-Language"] = "zh-CN,zh;q=0.9,en;q=0.8"
	return p
}

// stealthScript hides the most common automation fingerprints.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = { runtime: {} };
`

// await runs fn on its own goroutine and returns early when ctx is done,
// calling abort so the in-flight operation is torn down.
func await[T any](ctx context.Context, abort func(), fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		if abort != nil {
			abort()
		}
		var zero T
		return zero, ctx.Err()
	}
}
