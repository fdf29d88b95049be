package compareevents

import (
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/route-cache/internal/core/observability"
)

// KafkaPublisher queues events in memory and forwards them to an async
// producer. Publish never blocks; events are dropped when the queue is full.
type KafkaPublisher struct {
	logger  *slog.Logger
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
	errsCh  chan struct{}
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafka(logger *slog.Logger, brokers []string, topic string, queueSize int) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("compareevents: create async producer: %w", err)
	}
	return newWithProducer(logger, prod, topic, queueSize), nil
}

func newWithProducer(logger *slog.Logger, prod sarama.AsyncProducer, topic string, queueSize int) *KafkaPublisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &KafkaPublisher{
		logger:  logger,
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
		errsCh:  make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				observability.IncCompareEvent("encode_error")
				p.logger.Warn("compare event marshal failed", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Pair),
				Value: sarama.ByteEncoder(b),
			}
			observability.IncCompareEvent("sent")
		}
	}()

	go func() {
		defer close(p.errsCh)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncCompareEvent("producer_error")
				p.logger.Warn("compare event producer error", "err", err)
			}
		}
	}()

	return p
}

func (p *KafkaPublisher) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = NewID()
	}
	select {
	case p.events <- ev:
	default:
		observability.IncCompareEvent("dropped")
	}
}

// Close drains queued events and closes the producer. Publish must not be
// called after Close.
func (p *KafkaPublisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.errsCh
	if err != nil {
		return fmt.Errorf("compareevents: close producer: %w", err)
	}
	return nil
}
