package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/however6234/trading-system/internal/store"
	"github.com/however6234/trading-system/pkg/rabbitmq"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute
)

// PublisherFactory opens a broker connection on demand.
type PublisherFactory func() (rabbitmq.Publisher, error)

// OutboxDispatcher relays committed outbox events to the broker.
type OutboxDispatcher struct {
	outbox              store.OutboxStore
	newPublisher        PublisherFactory
	logger              *slog.Logger
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	producer            rabbitmq.Publisher
}

func NewOutboxDispatcher(outbox store.OutboxStore, newPublisher PublisherFactory, logger *slog.Logger, pollInterval time.Duration) *OutboxDispatcher {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &OutboxDispatcher{
		outbox:              outbox,
		newPublisher:        newPublisher,
		logger:              logger,
		batchSize:           defaultBatchSize,
		pollInterval:        pollInterval,
		staleProcessingTime: defaultStaleProcessing,
	}
}

// NewRabbitMQPublisherFactory dials amqpURL each time a fresh producer is needed.
func NewRabbitMQPublisherFactory(amqpURL string) PublisherFactory {
	return func() (rabbitmq.Publisher, error) {
		return rabbitmq.NewEventProducer(amqpURL)
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.closeProducer()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.flushOnce(ctx); err != nil {
				d.logger.Error("outbox flush error", "error", err)
			}
		}
	}
}

func (d *OutboxDispatcher) flushOnce(ctx context.Context) error {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.outbox.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			retryAfter := retryDelaySeconds(message.Attempts)
			d.logger.Warn("failed to publish outbox message",
				"outbox_id", message.ID,
				"routing_key", message.RoutingKey,
				"attempts", message.Attempts,
				"retry_after_seconds", retryAfter,
				"error", err,
			)
			_ = d.outbox.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error())
			continue
		}
		if err := d.outbox.MarkOutboxPublished(ctx, message.ID); err != nil {
			d.logger.Error("failed to mark outbox message as published", "outbox_id", message.ID, "error", err)
		}
	}
	return nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	if d.producer == nil {
		producer, err := d.newPublisher()
		if err != nil {
			return err
		}
		d.producer = producer
	}

	if err := d.producer.Publish(ctx, message.Exchange, message.RoutingKey, json.RawMessage(message.Payload)); err != nil {
		d.closeProducer()
		return err
	}
	return nil
}

func (d *OutboxDispatcher) closeProducer() {
	if d.producer != nil {
		d.producer.Close()
		d.producer = nil
	}
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << min(attempt, 8)
	if delay > 300 {
		return 300
	}
	return delay
}
