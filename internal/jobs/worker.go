package jobs

import (
	"context"
	"errors"

	"github.com/maltedev/market-scout/internal/queue"
)

// StartWorker processes queued runs one at a time until ctx is cancelled
// or the queue is closed.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("job worker stopping")
				return
			}
			m.logger.Error("failed to pop task", "error", err)
			continue
		}
		m.observeQueue()
		m.process(ctx, task)
	}
}

func (m *Manager) process(ctx context.Context, task *queue.Task) {
	logger := m.logger.With("id", task.RunID, "keyword", task.Keyword)
	logger.Info("processing run")

	if err := m.store.MarkRunning(ctx, task.RunID); err != nil {
		logger.Error("failed to update run status", "error", err)
		return
	}

	res, err := m.runner.Run(ctx, task.Keyword)
	if err != nil {
		logger.Error("run failed", "error", err)
		// the run record outlives a cancelled worker context
		if failErr := m.store.FailRun(context.WithoutCancel(ctx), task.RunID, err); failErr != nil {
			logger.Error("failed to mark run as failed", "error", failErr)
		}
		return
	}

	if err := m.store.CompleteRun(ctx, task.RunID, res.Report, res.All()); err != nil {
		logger.Error("failed to store completed run", "error", err)
		return
	}

	if m.reports != nil {
		paths, err := m.reports.Write(res.Report, res.All())
		if err != nil {
			logger.Warn("failed to write report files", "error", err)
		} else {
			logger.Info("report written", "json", paths.JSON, "csv", paths.CSV)
		}
	}

	logger.Info("run completed",
		"recommendation", res.Report.Recommendation,
		"gross_margin", res.Report.GrossMarginPct)
}
