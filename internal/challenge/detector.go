package challenge

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

type State int

const (
	Clear State = iota
	Challenged
	Recovering
	TimedOut
)

func (s State) String() string {
	switch s {
	case Clear:
		return "clear"
	case Challenged:
		return "challenged"
	case Recovering:
		return "recovering"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// DefaultSignals are matched case-insensitively against page title and content.
var DefaultSignals = []string{
	"robot check",
	"verification",
	"验证",
	"captcha",
	"verify",
}

const (
	DefaultInterval = time.Second
	DefaultMaxPolls = 60
)

// Page is the part of the page capability the detector reads.
type Page interface {
	Title(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
}

type Config struct {
	Signals []string
	// Unattended disables the recovery loop; nobody is there to solve the challenge.
	Unattended bool
	Interval   time.Duration
	MaxPolls   int
}

type Detector struct {
	signals    []string
	unattended bool
	interval   time.Duration
	maxPolls   int
	logger     *slog.Logger

	// Observer, when set, is told about every state transition.
	Observer func(from, to State)
}

func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	signals := cfg.Signals
	if len(signals) == 0 {
		signals = DefaultSignals
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}

	lowered := make([]string, 0, len(signals))
	for _, s := range signals {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			lowered = append(lowered, s)
		}
	}

	return &Detector{
		signals:    lowered,
		unattended: cfg.Unattended,
		interval:   cfg.Interval,
		maxPolls:   cfg.MaxPolls,
		logger:     logger.With("component", "challenge"),
	}
}

// WithSignals returns a copy of d that also matches extra.
func (d *Detector) WithSignals(extra ...string) *Detector {
	cp := *d
	cp.signals = append(append([]string(nil), d.signals...), lowerAll(extra)...)
	return &cp
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}

// Match reports the first signal found in title or content.
func (d *Detector) Match(title, content string) (string, bool) {
	haystack := strings.ToLower(title) + "\n" + strings.ToLower(content)
	for _, s := range d.signals {
		if strings.Contains(haystack, s) {
			return s, true
		}
	}
	return "", false
}

func (d *Detector) probe(ctx context.Context, page Page) (string, bool) {
	title, err := page.Title(ctx)
	if err != nil {
		d.logger.Debug("failed to read page title", "error", err)
	}
	content, err := page.Content(ctx)
	if err != nil {
		d.logger.Debug("failed to read page content", "error", err)
	}
	return d.Match(title, content)
}

func (d *Detector) transition(from, to State) State {
	if d.Observer != nil {
		d.Observer(from, to)
	}
	return to
}

// Check inspects the page and, when challenged in interactive mode, polls
// until the challenge clears or the poll budget runs out. TimedOut is not an
// error: callers carry on with best-effort extraction.
func (d *Detector) Check(ctx context.Context, page Page) State {
	signal, hit := d.probe(ctx, page)
	if !hit {
		return Clear
	}

	state := d.transition(Clear, Challenged)
	d.logger.Warn("challenge detected", "signal", signal, "unattended", d.unattended)

	if d.unattended {
		return d.transition(state, TimedOut)
	}

	state = d.transition(state, Recovering)
	d.logger.Info("waiting for challenge to be solved in the browser window",
		"interval", d.interval, "max_polls", d.maxPolls)

	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	for poll := 1; poll <= d.maxPolls; poll++ {
		select {
		case <-ctx.Done():
			return d.transition(state, TimedOut)
		case <-timer.C:
		}

		if _, hit := d.probe(ctx, page); !hit {
			d.logger.Info("challenge cleared", "polls", poll)
			return d.transition(state, Clear)
		}
		timer.Reset(d.interval)
	}

	d.logger.Warn("challenge not cleared", "polls", d.maxPolls)
	return d.transition(state, TimedOut)
}
