// Package browsertest provides in-memory Page, Session and Launcher fakes.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maltedev/market-scout/internal/browser"
)

// Element is a canned browser.Element.
type Element struct {
	HTML  string
	Text  string
	Attrs map[string]string
	Err   error
}

func (e *Element) OuterHTML(ctx context.Context) (string, error) {
	if e.Err != nil {
		return "", e.Err
	}
	return e.HTML, nil
}

func (e *Element) InnerText(ctx context.Context) (string, error) {
	if e.Err != nil {
		return "", e.Err
	}
	return e.Text, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	return e.Attrs[name], nil
}

// Snapshot is what the page renders at one point in time.
type Snapshot struct {
	Title   string
	Content string
}

// Page is a scripted browser.Page. Each Title/Content pair advances through
// Snapshots; the last snapshot repeats once the script runs out.
type Page struct {
	mu sync.Mutex

	Snapshots []Snapshot
	Cards     map[string][]browser.Element
	GotoErr   error
	// GotoBlocks makes Goto wait for ctx, emulating a hung navigation.
	GotoBlocks bool
	WaitErr    error
	EvalResult any

	Visited     []string
	Evaluated   []string
	Screenshots []string
	Closed      bool

	reads int
}

func (p *Page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	p.mu.Lock()
	p.Visited = append(p.Visited, url)
	blocks, err := p.GotoBlocks, p.GotoErr
	p.mu.Unlock()

	if blocks {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *Page) WaitForSelector(ctx context.Context, selectors []string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.WaitErr != nil {
		return p.WaitErr
	}
	for _, s := range selectors {
		if len(p.Cards[s]) > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", browser.ErrSelectorNotFound, selectors)
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Cards[selector], nil
}

func (p *Page) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Evaluated = append(p.Evaluated, script)
	return p.EvalResult, nil
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Screenshots = append(p.Screenshots, path)
	return nil
}

func (p *Page) snapshot() Snapshot {
	if len(p.Snapshots) == 0 {
		return Snapshot{}
	}
	i := p.reads / 2
	if i >= len(p.Snapshots) {
		i = len(p.Snapshots) - 1
	}
	p.reads++
	return p.Snapshots[i]
}

func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot().Title, nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot().Content, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Visited) == 0 {
		return ""
	}
	return p.Visited[len(p.Visited)-1]
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Session hands out the same Page every time.
type Session struct {
	Page   *Page
	Closed bool
}

func (s *Session) NewPage(ctx context.Context) (browser.Page, error) {
	if s.Page == nil {
		return nil, errors.New("no page configured")
	}
	return s.Page, nil
}

func (s *Session) Close() error {
	s.Closed = true
	return nil
}

// Launcher returns a per-profile Session and records the profiles it saw.
type Launcher struct {
	mu       sync.Mutex
	Sessions map[string]*Session
	Profiles []browser.Profile
}

func (l *Launcher) Open(ctx context.Context, profile browser.Profile) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Profiles = append(l.Profiles, profile)
	s, ok := l.Sessions[profile.Name]
	if !ok {
		return nil, fmt.Errorf("no session for profile %s", profile.Name)
	}
	return s, nil
}
