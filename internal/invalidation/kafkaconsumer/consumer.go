// Package kafkaconsumer applies route invalidation events from a Kafka topic.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	obs "github.com/mohammed-shakir/route-cache/internal/core/observability"
	"github.com/mohammed-shakir/route-cache/internal/invalidation"
	mylog "github.com/mohammed-shakir/route-cache/internal/logger"
)

type Purger interface {
	Purge(ctx context.Context, keys ...string) error
}

type Consumer struct {
	cfg      Config
	logger   *slog.Logger
	store    Purger
	resolver invalidation.Resolver
	dedupe   *invalidation.BlockDedupe
}

func New(cfg Config, logger *slog.Logger, store Purger, resolver invalidation.Resolver) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Consumer{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		resolver: resolver,
		dedupe:   invalidation.NewBlockDedupe(cfg.DedupeSize),
	}
}

// Start joins the consumer group and blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil || c.resolver == nil {
		return errors.New("kafkaconsumer: missing dependencies (store/resolver)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}
	ctx = mylog.WithComponent(ctx, "invalidation")

	c.logger.InfoContext(ctx, "route invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil && ctx.Err() == nil {
			obs.IncKafkaConsumerError("consume")
			c.logger.ErrorContext(ctx, "kafka consumer error", "err", err, "topic", c.cfg.Topic)
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "route invalidation consumer shutting down")
			return nil
		}
	}
}

// ProcessOne applies a single invalidation message. Malformed messages are
// logged and skipped; only store failures are returned so the offset is not
// committed.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		obs.IncInvalidation("invalid")
		c.logger.WarnContext(ctx, "dropping undecodable invalidation",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	pair, err := ev.Pair()
	if err != nil {
		obs.IncInvalidation("invalid")
		c.logger.WarnContext(ctx, "dropping invalid invalidation",
			"offset", msg.Offset, "id", ev.ID, "err", err)
		return nil
	}

	pk := pair.String()
	delKeys := invalidation.WindowKeys(c.resolver, pair)
	if len(delKeys) == 0 {
		obs.IncInvalidation("uncached")
		c.logger.DebugContext(ctx, "no cached windows for pair", "pair", pk)
		return nil
	}
	if !c.dedupe.ShouldApply(pk, ev.BlockNumber) {
		obs.IncInvalidation("stale")
		c.logger.DebugContext(ctx, "skipping stale invalidation", "pair", pk, "block", ev.BlockNumber)
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.store.Purge(opCtx, delKeys...); err != nil {
		c.dedupe.Forget(pk, ev.BlockNumber)
		obs.IncKafkaConsumerError("purge")
		obs.IncInvalidation("error")
		c.logger.ErrorContext(ctx, "route purge failed",
			"pair", pk, "keys", len(delKeys), "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return fmt.Errorf("purge %s: %w", pk, err)
	}

	obs.IncInvalidation("applied")
	c.logger.DebugContext(ctx, "invalidated route windows",
		"pair", pk, "keys", len(delKeys), "block", ev.BlockNumber, "reason", ev.Reason)
	return nil
}
