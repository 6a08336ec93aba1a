package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/maltedev/market-scout/internal/metrics"
	"github.com/maltedev/market-scout/internal/models"
	"github.com/maltedev/market-scout/internal/ratelimit"
	"github.com/maltedev/market-scout/internal/scraper"
)

// Middleware wraps an adapter with behavior shared by every source.
type Middleware func(scraper.Adapter) scraper.Adapter

type SearchFunc func(ctx context.Context, keyword string, limit int) ([]models.Listing, error)

type wrapped struct {
	scraper.Adapter
	search SearchFunc
}

func (w wrapped) Search(ctx context.Context, keyword string, limit int) ([]models.Listing, error) {
	return w.search(ctx, keyword, limit)
}

// Wrap replaces an adapter's Search while keeping its name and kind.
func Wrap(a scraper.Adapter, search SearchFunc) scraper.Adapter {
	return wrapped{Adapter: a, search: search}
}

// Chain applies middleware so that mw[0] is the outermost layer.
func Chain(a scraper.Adapter, mw ...Middleware) scraper.Adapter {
	for i := len(mw) - 1; i >= 0; i-- {
		a = mw[i](a)
	}
	return a
}

// WithPoliteness delays each search by the source's adaptive limiter and
// feeds the outcome back into it.
func WithPoliteness(limiters *ratelimit.Registry) Middleware {
	return func(next scraper.Adapter) scraper.Adapter {
		return Wrap(next, func(ctx context.Context, keyword string, limit int) ([]models.Listing, error) {
			limiter := limiters.For(next.Name())
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}

			listings, err := next.Search(ctx, keyword, limit)
			if scraper.IsFatal(err) || len(listings) == 0 {
				limiter.RecordError()
			} else {
				limiter.RecordSuccess()
			}
			return listings, err
		})
	}
}

// WithMetrics records duration, outcome and listing count per source.
func WithMetrics(m *metrics.Metrics) Middleware {
	return func(next scraper.Adapter) scraper.Adapter {
		return Wrap(next, func(ctx context.Context, keyword string, limit int) ([]models.Listing, error) {
			start := time.Now()
			listings, err := next.Search(ctx, keyword, limit)

			outcome := metrics.OutcomeOK
			switch {
			case scraper.IsFatal(err):
				outcome = metrics.OutcomeError
			case err != nil:
				outcome = metrics.OutcomeWarning
			}
			m.ObserveAdapter(next.Name(), outcome, len(listings), time.Since(start))
			return listings, err
		})
	}
}

func WithLogging(logger *slog.Logger) Middleware {
	return func(next scraper.Adapter) scraper.Adapter {
		log := logger.With("component", "adapter", "source", next.Name(), "kind", next.Kind())
		return Wrap(next, func(ctx context.Context, keyword string, limit int) ([]models.Listing, error) {
			start := time.Now()
			log.Debug("adapter started", "keyword", keyword, "limit", limit)

			listings, err := next.Search(ctx, keyword, limit)

			elapsed := time.Since(start).Round(time.Millisecond)
			switch {
			case scraper.IsFatal(err):
				log.Error("adapter failed", "error", err, "elapsed", elapsed)
			case err != nil:
				log.Warn("adapter finished with warnings", "listings", len(listings), "warnings", scraper.Warnings(err), "elapsed", elapsed)
			default:
				log.Info("adapter finished", "listings", len(listings), "elapsed", elapsed)
			}
			return listings, err
		})
	}
}
