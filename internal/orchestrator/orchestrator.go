package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/market-scout/internal/models"
	"github.com/maltedev/market-scout/internal/scraper"
)

var (
	ErrAdapterTimeout = errors.New("adapter timed out")
	ErrCancelled      = errors.New("run cancelled")
	ErrAdapterPanic   = errors.New("adapter panicked")
)

// Orchestrator fans a keyword out to adapters. One adapter's failure,
// timeout or panic is recorded in its own SourceResult and never reaches
// its siblings.
type Orchestrator struct {
	concurrency int
	middleware  []Middleware
	logger      *slog.Logger
}

// New builds an orchestrator. concurrency <= 0 runs every adapter at once.
// Middleware is applied in order, the first one outermost.
func New(concurrency int, logger *slog.Logger, middleware ...Middleware) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		concurrency: concurrency,
		middleware:  middleware,
		logger:      logger.With("component", "orchestrator"),
	}
}

// RunAll runs every adapter and returns one result per adapter, in adapter
// order. It returns only when every adapter has finished or been abandoned.
func (o *Orchestrator) RunAll(ctx context.Context, keyword string, adapters []scraper.Adapter, limit int, timeout time.Duration) []models.SourceResult {
	results := make([]models.SourceResult, len(adapters))

	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}

	o.logger.Info("starting run", "keyword", keyword, "adapters", len(adapters), "limit", limit, "timeout", timeout)

	for i, a := range adapters {
		g.Go(func() error {
			results[i] = o.runOne(ctx, keyword, Chain(a, o.middleware...), limit, timeout)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	o.logger.Info("run finished", "keyword", keyword, "listings", models.CountListings(results), "failed", failed)

	return results
}

type outcome struct {
	listings []models.Listing
	err      error
}

func (o *Orchestrator) runOne(ctx context.Context, keyword string, a scraper.Adapter, limit int, timeout time.Duration) models.SourceResult {
	start := time.Now()
	result := models.SourceResult{Source: a.Name(), Kind: a.Kind(), Listings: []models.Listing{}}

	if err := ctx.Err(); err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrCancelled, err)
		return result
	}

	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrAdapterPanic, r)}
			}
		}()
		listings, err := a.Search(actx, keyword, limit)
		done <- outcome{listings: listings, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-actx.Done():
		// The adapter ignored cancellation; abandon it. Its goroutine exits
		// into the buffered channel whenever it returns.
		out.err = actx.Err()
	}

	result.Elapsed = time.Since(start)

	if scraper.IsFatal(out.err) {
		result.Err = classify(ctx, actx, out.err, timeout)
		return result
	}

	for _, l := range out.listings {
		result.Listings = append(result.Listings, l.WithKeyword(keyword))
	}
	result.Warnings = scraper.Warnings(out.err)
	return result
}

// classify maps context errors caused by the run itself onto the
// orchestrator's sentinels and leaves adapter errors as they are.
func classify(parent, actx context.Context, err error, timeout time.Duration) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrAdapterTimeout, timeout)
	}
	return err
}
