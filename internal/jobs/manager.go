package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/market-scout/internal/metrics"
	"github.com/maltedev/market-scout/internal/models"
	"github.com/maltedev/market-scout/internal/pipeline"
	"github.com/maltedev/market-scout/internal/queue"
	"github.com/maltedev/market-scout/internal/storage"
)

var ErrInvalidKeyword = errors.New("keyword is required")

// Store persists runs. Both the Postgres repository and the file-backed
// run store satisfy it.
type Store interface {
	CreateRun(ctx context.Context, keyword string) (*models.Run, error)
	MarkRunning(ctx context.Context, id string) error
	CompleteRun(ctx context.Context, id string, report models.AnalysisReport, results []models.SourceResult) error
	FailRun(ctx context.Context, id string, cause error) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
}

type Runner interface {
	Run(ctx context.Context, keyword string) (*pipeline.Result, error)
}

type ReportSink interface {
	Write(report models.AnalysisReport, results []models.SourceResult) (storage.Paths, error)
}

type Manager struct {
	store   Store
	queue   queue.Queue
	runner  Runner
	reports ReportSink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewManager wires the job manager. reports, m and logger may be nil.
func NewManager(store Store, q queue.Queue, runner Runner, reports ReportSink, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		queue:   q,
		runner:  runner,
		reports: reports,
		metrics: m,
		logger:  logger.With("component", "job_manager"),
	}
}

// Submit records a pending run and queues it for the worker.
func (m *Manager) Submit(ctx context.Context, keyword string) (*models.Run, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrInvalidKeyword
	}

	run, err := m.store.CreateRun(ctx, keyword)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	if err := m.queue.Push(&queue.Task{RunID: run.ID, Keyword: keyword}); err != nil {
		if failErr := m.store.FailRun(ctx, run.ID, err); failErr != nil {
			m.logger.Error("failed to mark unqueued run as failed", "id", run.ID, "error", failErr)
		}
		return nil, fmt.Errorf("failed to queue run: %w", err)
	}
	m.observeQueue()

	m.logger.Info("run queued", "id", run.ID, "keyword", keyword)
	return run, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Run, error) {
	return m.store.GetRun(ctx, id)
}

func (m *Manager) List(ctx context.Context, limit int) ([]*models.Run, error) {
	return m.store.ListRuns(ctx, limit)
}

func (m *Manager) QueueSize() int {
	return m.queue.Size()
}

func (m *Manager) observeQueue() {
	if m.metrics != nil {
		m.metrics.QueueDepth.Set(float64(m.queue.Size()))
	}
}
