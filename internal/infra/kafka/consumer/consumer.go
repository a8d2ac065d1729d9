package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/config"
)

// handler processes a single fetched message.
type handler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// Consumer reads settings changes from Kafka and hands them to the handler.
type Consumer struct {
	Client   *wbfkafka.Consumer
	handler  handler
	cfg      *config.Kafka
	strategy retry.Strategy
}

// New creates a Consumer subscribed to the settings topic.
func New(cfg *config.Kafka, s retry.Strategy, h handler) *Consumer {
	return &Consumer{
		Client:   wbfkafka.NewConsumer(cfg.Brokers, cfg.SettingsTopic, cfg.GroupID),
		handler:  h,
		cfg:      cfg,
		strategy: s,
	}
}

// Consume continuously fetches messages from Kafka, processes them using the handler,
// and commits offsets after processing. It stops gracefully on context cancellation.
//
// A message the handler rejects is committed as well: settings are
// validated before they reach the pipeline, so redelivery cannot help.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().
		Str("topic", c.cfg.SettingsTopic).
		Msg("starting consumer")

	for {
		// Exit if context is canceled (graceful shutdown).
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return
		}

		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.Client.Fetch(ctx)
			return fetchErr
		}, c.strategy)

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			zlog.Logger.Err(err).Msg("failed to fetch message")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := c.handler.Handle(ctx, msg); err != nil {
			zlog.Logger.Err(err).
				Str("message", string(msg.Value)).
				Msg("failed to apply settings")
		}

		err = retry.Do(func() error {
			return c.Client.Commit(ctx, msg)
		}, c.strategy)
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to commit message after retries")
			continue
		}

		zlog.Logger.Debug().
			Int64("offset", msg.Offset).
			Msg("message handled")
	}
}
