package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/market-scout/internal/models"
)

func testResults() []models.SourceResult {
	priced := models.NewListing("Amazon", "Yoga Mat", "$10.00",
		models.Money{Amount: decimal.NewFromInt(10), Currency: models.CurrencyUSD}).WithKeyword("yoga mat")
	priced.Secondary = &models.Metric{Kind: models.MetricRating, Value: "4.5 out of 5 stars"}

	unpriced := models.NewListing("1688", "瑜伽垫", "N/A", models.UnknownMoney()).WithKeyword("瑜伽垫")

	return []models.SourceResult{
		{Source: "Amazon", Kind: models.KindSales, Listings: []models.Listing{priced}},
		{Source: "Temu", Kind: models.KindSales, Err: assert.AnError},
		{Source: "1688", Kind: models.KindSourcing, Listings: []models.Listing{unpriced}},
	}
}

func TestListingRows(t *testing.T) {
	runID := uuid.New()
	rows := listingRows(runID, testResults())

	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Len(t, row, len(listingColumns))
		assert.Equal(t, runID, row[0])
	}

	assert.Equal(t, 0, rows[0][1])
	assert.Equal(t, "Amazon", rows[0][2])
	assert.Equal(t, "sales", rows[0][3])
	assert.Equal(t, 10.0, rows[0][8])
	assert.Equal(t, "rating", rows[0][10])

	assert.Equal(t, 1, rows[1][1])
	assert.Nil(t, rows[1][8], "unknown price is stored as NULL")
	assert.Equal(t, "UNKNOWN", rows[1][9])
	assert.Nil(t, rows[1][10])
}

func TestRunRepository_InvalidID(t *testing.T) {
	repo := &RunRepository{}
	ctx := context.Background()

	_, err := repo.GetRun(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrRunNotFound)

	assert.ErrorIs(t, repo.MarkRunning(ctx, "not-a-uuid"), models.ErrRunNotFound)
	assert.ErrorIs(t, repo.CompleteRun(ctx, "not-a-uuid", models.AnalysisReport{}, nil), models.ErrRunNotFound)
}

func TestRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRunRepository(db)

	run, err := repo.CreateRun(ctx, "yoga mat")
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, run.Status)

	require.NoError(t, repo.MarkRunning(ctx, run.ID))

	report := models.AnalysisReport{
		Keyword:        "yoga mat",
		GrossMarginPct: 0.537,
		Recommendation: models.HighPotential,
		SourcingAvgCNY: models.Money{Amount: decimal.NewFromInt(50), Currency: models.CurrencyCNY},
	}
	require.NoError(t, repo.CompleteRun(ctx, run.ID, report, testResults()))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.Status)
	require.NotNil(t, got.Report)
	assert.Equal(t, models.HighPotential, got.Report.Recommendation)
	assert.True(t, got.Report.SourcingAvgCNY.Amount.Equal(decimal.NewFromInt(50)))
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	var listings int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM analysis_listing WHERE run_id = $1", run.ID).Scan(&listings))
	assert.Equal(t, 2, listings)

	var outboxed int
	require.NoError(t, db.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox_event WHERE aggregate_id = $1 AND event_type = 'ANALYSIS_COMPLETED'", run.ID).Scan(&outboxed))
	assert.Equal(t, 1, outboxed)

	_, err = repo.GetRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}
