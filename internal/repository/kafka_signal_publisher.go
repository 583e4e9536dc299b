package repository

import (
	"context"
	"fmt"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	pkgkafka "SignalFuse/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSignalPublisher writes one message per final signal, keyed by symbol
// so a symbol's signals stay ordered within a partition.
type KafkaSignalPublisher struct {
	producer batchProducer
	topic    string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, a *models.Analysis) error {
	if a == nil {
		return nil
	}
	recs := a.Records()
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(recs))
	for i, r := range recs {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(r.Symbol),
			Value: r,
			Headers: []kafka.Header{
				{Key: "horizon", Value: []byte(r.Signal.Horizon)},
				{Key: pkgkafka.TraceHeader, Value: []byte(r.AnalysisID)},
			},
		}
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish signals: %w", err)
	}
	return nil
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
