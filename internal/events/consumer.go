package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamClient is the subset of the Redis client the consumer needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

type Handler func(ctx context.Context, p *AnalysisCompletedPayload) error

type ConsumerConfig struct {
	Stream string
	Group  string
	Name   string
	Block  time.Duration
	Count  int64
}

// Consumer reads ANALYSIS_COMPLETED events from a stream through a
// consumer group and acknowledges each message its handler accepted.
type Consumer struct {
	redis   StreamClient
	cfg     ConsumerConfig
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client StreamClient, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = StreamMarketAnalysis
	}
	if cfg.Group == "" {
		cfg.Group = "market-scout-watchers"
	}
	if cfg.Name == "" {
		cfg.Name = "watcher-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	return &Consumer{
		redis:   client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "event_consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.cfg.Stream, "group", c.cfg.Group)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *Consumer) poll(ctx context.Context) error {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if err := c.process(ctx, msg); err != nil {
				c.logger.Error("failed to process message", "id", msg.ID, "error", err)
				continue
			}
			if err := c.redis.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
			}
		}
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) error {
	if t, _ := msg.Values["event_type"].(string); t != string(EventTypeAnalysisCompleted) {
		return nil
	}

	payload, err := Decode(msg.Values)
	if err != nil {
		return err
	}
	return c.handler(ctx, payload)
}

// Decode reads the payload back from the stream fields written by the
// outbox relay.
func Decode(values map[string]interface{}) (*AnalysisCompletedPayload, error) {
	raw, ok := values["data"].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("missing data field in event")
	}

	var p AnalysisCompletedPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if p.RunID == "" {
		return nil, fmt.Errorf("payload has no run_id")
	}
	return &p, nil
}
