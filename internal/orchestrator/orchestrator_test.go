package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/market-scout/internal/metrics"
	"github.com/maltedev/market-scout/internal/models"
	"github.com/maltedev/market-scout/internal/ratelimit"
	"github.com/maltedev/market-scout/internal/scraper"
)

type fakeAdapter struct {
	name     string
	kind     models.SourceKind
	listings []models.Listing
	err      error
	// blocks waits for ctx; ignoresCtx sleeps past any deadline.
	blocks     bool
	ignoresCtx time.Duration
	panics     bool
}

func (f *fakeAdapter) Name() string            { return f.name }
func (f *fakeAdapter) Kind() models.SourceKind { return f.kind }

func (f *fakeAdapter) Search(ctx context.Context, keyword string, limit int) ([]models.Listing, error) {
	if f.panics {
		panic("selector engine crashed")
	}
	if f.blocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.ignoresCtx > 0 {
		time.Sleep(f.ignoresCtx)
	}
	if f.err != nil && scraper.IsFatal(f.err) {
		return nil, f.err
	}
	return f.listings, f.err
}

func listingsFor(platform string, n int) []models.Listing {
	out := make([]models.Listing, n)
	for i := range out {
		out[i] = models.NewListing(platform, fmt.Sprintf("%s item %d", platform, i), "$1.00", models.UnknownMoney())
	}
	return out
}

func TestRunAllIsolatesFailures(t *testing.T) {
	adapters := []scraper.Adapter{
		&fakeAdapter{name: "A", kind: models.KindSales, listings: listingsFor("A", 2)},
		&fakeAdapter{name: "B", kind: models.KindSales, err: fmt.Errorf("%w: dns", scraper.ErrNavigationFailed)},
		&fakeAdapter{name: "C", kind: models.KindSales, listings: listingsFor("C", 3)},
	}

	results := New(0, nil).RunAll(context.Background(), "yoga mat", adapters, 5, time.Second)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{results[0].Source, results[1].Source, results[2].Source})

	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Listings, 2)

	assert.ErrorIs(t, results[1].Err, scraper.ErrNavigationFailed)
	assert.Empty(t, results[1].Listings)

	assert.NoError(t, results[2].Err)
	assert.Len(t, results[2].Listings, 3)

	for _, l := range results[2].Listings {
		assert.Equal(t, "yoga mat", l.Keyword)
	}
}

func TestRunAllTimesOutSlowAdapters(t *testing.T) {
	adapters := []scraper.Adapter{
		&fakeAdapter{name: "stuck", blocks: true},
		&fakeAdapter{name: "deaf", ignoresCtx: 2 * time.Second},
		&fakeAdapter{name: "fast", listings: listingsFor("fast", 1)},
	}

	start := time.Now()
	results := New(0, nil).RunAll(context.Background(), "mat", adapters, 5, 30*time.Millisecond)

	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, results[0].Err, ErrAdapterTimeout)
	assert.ErrorIs(t, results[1].Err, ErrAdapterTimeout)
	assert.NoError(t, results[2].Err)
	assert.Len(t, results[2].Listings, 1)
}

func TestRunAllRecoversPanics(t *testing.T) {
	adapters := []scraper.Adapter{
		&fakeAdapter{name: "boom", panics: true},
		&fakeAdapter{name: "fine", listings: listingsFor("fine", 1)},
	}

	results := New(0, nil).RunAll(context.Background(), "mat", adapters, 5, time.Second)

	assert.ErrorIs(t, results[0].Err, ErrAdapterPanic)
	assert.Contains(t, results[0].Err.Error(), "selector engine crashed")
	assert.True(t, results[1].OK())
}

func TestRunAllCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapters := []scraper.Adapter{
		&fakeAdapter{name: "one", blocks: true},
		&fakeAdapter{name: "two", blocks: true},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := New(0, nil).RunAll(ctx, "mat", adapters, 5, time.Minute)

	assert.Less(t, time.Since(start), time.Second)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, ErrCancelled)
	}
}

func TestRunAllKeepsPartialResultsWithWarnings(t *testing.T) {
	adapters := []scraper.Adapter{
		&fakeAdapter{
			name:     "partial",
			listings: listingsFor("partial", 2),
			err:      errors.Join(scraper.ErrChallengeTimedOut, fmt.Errorf("%w: skipped 1 of 3 cards", scraper.ErrExtractionIncomplete)),
		},
	}

	results := New(0, nil).RunAll(context.Background(), "mat", adapters, 5, time.Second)

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Listings, 2)
	assert.Equal(t, []string{"challenge not cleared", "extraction incomplete: skipped 1 of 3 cards"}, results[0].Warnings)
}

func TestRunAllRespectsConcurrencyLimit(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	track := func(next scraper.Adapter) scraper.Adapter {
		return Wrap(next, func(ctx context.Context, keyword string, limit int) ([]models.Listing, error) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return next.Search(ctx, keyword, limit)
		})
	}

	var adapters []scraper.Adapter
	for i := 0; i < 6; i++ {
		adapters = append(adapters, &fakeAdapter{name: fmt.Sprintf("s%d", i)})
	}

	New(2, nil, track).RunAll(context.Background(), "mat", adapters, 5, time.Second)

	assert.LessOrEqual(t, peak, 2)
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next scraper.Adapter) scraper.Adapter {
			return Wrap(next, func(ctx context.Context, keyword string, limit int) ([]models.Listing, error) {
				order = append(order, name)
				return next.Search(ctx, keyword, limit)
			})
		}
	}

	a := Chain(&fakeAdapter{name: "x", kind: models.KindTrend}, tag("outer"), tag("inner"))
	_, err := a.Search(context.Background(), "mat", 1)

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, "x", a.Name())
	assert.Equal(t, models.KindTrend, a.Kind())
}

func TestWithMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	adapters := []scraper.Adapter{
		&fakeAdapter{name: "ok", listings: listingsFor("ok", 3)},
		&fakeAdapter{name: "bad", err: scraper.ErrNavigationFailed},
	}

	New(0, nil, WithMetrics(m)).RunAll(context.Background(), "mat", adapters, 5, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterRuns.WithLabelValues("ok", metrics.OutcomeOK)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ListingsScraped.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterRuns.WithLabelValues("bad", metrics.OutcomeError)))
}

func TestWithPolitenessBacksOffFailingSource(t *testing.T) {
	limiters := ratelimit.NewRegistry(time.Millisecond, time.Millisecond)
	bad := &fakeAdapter{name: "bad", err: scraper.ErrNavigationFailed}
	good := &fakeAdapter{name: "good", listings: listingsFor("good", 1)}
	o := New(0, nil, WithPoliteness(limiters))

	for i := 0; i < 3; i++ {
		o.RunAll(context.Background(), "mat", []scraper.Adapter{bad, good}, 5, time.Second)
	}

	badMin, _ := limiters.For("bad").Delays()
	goodMin, _ := limiters.For("good").Delays()
	assert.Greater(t, badMin, time.Millisecond)
	assert.Equal(t, time.Millisecond, goodMin)
}
