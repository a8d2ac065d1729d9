package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/config"
	"github.com/aliskhannn/image-compressor/internal/model"
)

// sender is the part of the Kafka client the producer uses.
type sender interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key, value []byte) error
}

// Producer publishes side completion events. Events are queued so that
// pipeline workers never wait on the broker; when the queue is full the
// event is dropped and logged.
type Producer struct {
	Client   *wbfkafka.Producer
	sender   sender
	strategy retry.Strategy
	events   chan model.SideEvent
}

// New creates a Producer writing to the events topic.
func New(cfg *config.Kafka, s retry.Strategy) *Producer {
	client := wbfkafka.NewProducer(cfg.Brokers, cfg.EventsTopic)

	p := newProducer(client, s)
	p.Client = client
	return p
}

func newProducer(snd sender, s retry.Strategy) *Producer {
	return &Producer{
		sender:   snd,
		strategy: s,
		events:   make(chan model.SideEvent, 64),
	}
}

// Notify queues ev for publishing. It never blocks.
func (p *Producer) Notify(ev model.SideEvent) {
	select {
	case p.events <- ev:
	default:
		zlog.Logger.Warn().Int("side", int(ev.Side)).Msg("event queue full, dropping side event")
	}
}

// Produce serializes the event to JSON and sends it to Kafka.
// The side is used as the message key so events of one side stay ordered.
func (p *Producer) Produce(ctx context.Context, ev model.SideEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := []byte(ev.Side.String())

	if err = p.sender.SendWithRetry(ctx, p.strategy, key, data); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}

	return nil
}

// Run publishes queued events until ctx is cancelled.
func (p *Producer) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("shutdown signal received, stopping producer")
			return
		case ev := <-p.events:
			if err := p.Produce(ctx, ev); err != nil {
				zlog.Logger.Err(err).Int("side", int(ev.Side)).Msg("failed to publish side event")
			}
		}
	}
}
