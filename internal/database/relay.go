package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/market-scout/internal/events"
	"github.com/maltedev/market-scout/internal/metrics"
)

var ErrUnsupportedEvent = errors.New("unsupported event type")

// RedisClient is the subset of the Redis client the relay publishes with.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

// Relay publishes committed analysis events from the outbox as flat stream
// entries, so stream readers can filter on keyword or recommendation
// without decoding JSON.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	metrics   *metrics.Metrics
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func NewRelay(outbox OutboxRepo, redisClient RedisClient, m *metrics.Metrics, logger *slog.Logger, cfg RelayConfig) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		metrics:   m,
		logger:    logger.With("component", "relay"),
		interval:  cfg.PollInterval,
		batchSize: cfg.BatchSize,
	}
}

// Start flushes the outbox once, then on every tick until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("outbox flush failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch of pending events. A failed event is marked for
// retry and does not stop the batch.
func (r *Relay) Flush(ctx context.Context) (published, failed int, err error) {
	pending, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	for _, event := range pending {
		logger := r.logger.With("event_id", event.ID, "run_id", event.AggregateID)

		if pubErr := r.publish(ctx, event); pubErr != nil {
			failed++
			r.observe(false)
			logger.Warn("publish failed", "retry_count", event.RetryCount, "error", pubErr)
			if markErr := r.outbox.MarkFailed(ctx, event.ID, pubErr); markErr != nil {
				logger.Error("failed to record publish failure", "error", markErr)
			}
			continue
		}

		if markErr := r.outbox.MarkProcessed(ctx, event.ID); markErr != nil {
			// the entry is on the stream; it will be published again next flush
			logger.Error("failed to mark event as processed", "error", markErr)
			failed++
			continue
		}
		published++
		r.observe(true)
		logger.Info("analysis event published", "stream", event.TargetStream)
	}

	if len(pending) > 0 {
		r.logger.Debug("outbox flushed", "published", published, "failed", failed)
	}
	return published, failed, nil
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	values, err := streamValues(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{Stream: event.TargetStream, Values: values}
	if err := r.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// streamValues flattens an outbox row into stream fields.
func streamValues(event *OutboxEvent) (map[string]interface{}, error) {
	if event.EventType != string(events.EventTypeAnalysisCompleted) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.EventType)
	}

	var p events.AnalysisCompletedPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
	}

	values, err := p.StreamValues()
	if err != nil {
		return nil, err
	}
	values["outbox_id"] = event.ID.String()
	values["retry_count"] = strconv.Itoa(event.RetryCount)
	return values, nil
}

func (r *Relay) observe(ok bool) {
	if r.metrics == nil {
		return
	}
	if ok {
		r.metrics.OutboxPublished.Inc()
	} else {
		r.metrics.OutboxFailed.Inc()
	}
}
