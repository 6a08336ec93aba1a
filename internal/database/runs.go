package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/market-scout/internal/events"
	"github.com/maltedev/market-scout/internal/models"
)

// RunRepository persists analysis runs. Completing a run writes the
// report, its listings and the ANALYSIS_COMPLETED outbox event in one
// transaction.
type RunRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db, outbox: NewOutboxRepository(db)}
}

func (r *RunRepository) CreateRun(ctx context.Context, keyword string) (*models.Run, error) {
	run := &models.Run{
		ID:        uuid.New().String(),
		Keyword:   keyword,
		Status:    models.RunPending,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO analysis_run (id, keyword, status, created_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Keyword, run.Status, run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) MarkRunning(ctx context.Context, id string) error {
	return r.update(ctx,
		`UPDATE analysis_run SET status = $1, started_at = $2 WHERE id = $3`,
		models.RunRunning, time.Now().UTC(), id)
}

func (r *RunRepository) FailRun(ctx context.Context, id string, cause error) error {
	return r.update(ctx,
		`UPDATE analysis_run SET status = $1, completed_at = $2, error_message = $3 WHERE id = $4`,
		models.RunFailed, time.Now().UTC(), cause.Error(), id)
}

func (r *RunRepository) CompleteRun(ctx context.Context, id string, report models.AnalysisReport, results []models.SourceResult) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}

	event, err := AnalysisCompletedEvent(events.NewAnalysisCompleted(id, report))
	if err != nil {
		return err
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE analysis_run SET status = $1, report = $2, completed_at = $3 WHERE id = $4`,
			models.RunCompleted, reportJSON, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to complete run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
		}

		rows := listingRows(uuid.MustParse(id), results)
		if len(rows) > 0 {
			_, err = tx.CopyFrom(ctx, pgx.Identifier{"analysis_listing"}, listingColumns, pgx.CopyFromRows(rows))
			if err != nil {
				return fmt.Errorf("failed to store listings: %w", err)
			}
		}

		return r.outbox.InsertWithTx(ctx, tx, event)
	})
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}

	row := r.db.QueryRow(ctx, `
		SELECT id, keyword, status, report, error_message, created_at, started_at, completed_at
		FROM analysis_run
		WHERE id = $1`, id)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, keyword, status, report, error_message, created_at, started_at, completed_at
		FROM analysis_run
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}

func (r *RunRepository) update(ctx context.Context, query string, args ...interface{}) error {
	id := args[len(args)-1].(string)
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	return nil
}

func scanRun(row pgx.Row) (*models.Run, error) {
	var (
		run        models.Run
		id         uuid.UUID
		status     string
		reportJSON []byte
		errMsg     *string
	)

	err := row.Scan(&id, &run.Keyword, &status, &reportJSON, &errMsg,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}

	run.ID = id.String()
	run.Status = models.RunStatus(status)
	if errMsg != nil {
		run.Error = *errMsg
	}
	if len(reportJSON) > 0 {
		var report models.AnalysisReport
		if err := json.Unmarshal(reportJSON, &report); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
		run.Report = &report
	}
	return &run, nil
}

var listingColumns = []string{
	"run_id", "position", "source", "kind", "platform", "keyword", "title",
	"price_raw", "price_amount", "currency", "metric_kind", "metric_value", "url",
}

// listingRows flattens every listing of a run into copy rows. Unknown prices
// are stored as NULL amounts.
func listingRows(runID uuid.UUID, results []models.SourceResult) [][]interface{} {
	var rows [][]interface{}
	position := 0
	for _, res := range results {
		for _, l := range res.Listings {
			var amount interface{}
			if l.Price.IsKnown() {
				amount = l.Price.Float()
			}

			var metricKind, metricValue interface{}
			if l.Secondary != nil {
				metricKind = string(l.Secondary.Kind)
				metricValue = l.Secondary.Value
			}

			rows = append(rows, []interface{}{
				runID, position, res.Source, string(res.Kind), l.Platform, l.Keyword, l.Title,
				l.PriceRaw, amount, string(l.Price.Currency), metricKind, metricValue, l.URL,
			})
			position++
		}
	}
	return rows
}
