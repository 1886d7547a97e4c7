// Package ingest consumes upload events from the broker topic published
// by the file-ingest subsystem and routes them to the scheduler's
// event-driven path.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"nimbus/internal/automation/models"
)

const adminTimeout = 10 * time.Second

// UploadHandler receives decoded upload events.
type UploadHandler interface {
	HandleUpload(ctx context.Context, event models.UploadEvent)
}

type Consumer struct {
	client  *kgo.Client
	topic   string
	handler UploadHandler
	logger  *slog.Logger
	done    chan struct{}
}

// NewConsumer connects a consumer group to the upload topic, creating
// the topic if the broker does not have it yet.
func NewConsumer(brokers []string, topic, group string, handler UploadHandler, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(client, topic); err != nil {
		client.Close()
		return nil, err
	}

	return &Consumer{
		client:  client,
		topic:   topic,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// ensureTopic creates the upload topic if missing. A topic that already
// exists (created by the producer side) is fine.
func ensureTopic(client *kgo.Client, topic string) error {
	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("ensure topic %q: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("ensure topic %q: %w", topic, resp.Err)
	}
	return nil
}

// Start polls the topic until ctx is cancelled. Malformed records are
// logged and skipped; the consumer never stops over one bad message.
func (c *Consumer) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			fetches := c.client.PollFetches(ctx)
			if fetches.IsClientClosed() || ctx.Err() != nil {
				return
			}
			fetches.EachError(func(topic string, partition int32, err error) {
				c.logger.Warn("upload topic fetch error",
					"topic", topic, "partition", partition, "error", err)
			})
			fetches.EachRecord(func(record *kgo.Record) {
				var event models.UploadEvent
				if err := json.Unmarshal(record.Value, &event); err != nil {
					c.logger.Warn("skipping malformed upload event",
						"topic", record.Topic, "offset", record.Offset, "error", err)
					return
				}
				c.handler.HandleUpload(ctx, event)
			})
		}
	}()
}

// Stop closes the client and waits for the poll loop to exit.
func (c *Consumer) Stop() {
	c.client.Close()
	<-c.done
}
