package repository

import (
	"context"

	"CopyRelay/internal/domain/models"
	pkgkafka "CopyRelay/pkg/kafka"
)

// KafkaArchive publishes each signal as one JSON message, keyed by the
// publishing master so per-master ordering survives partitioning.
type KafkaArchive struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaArchive(producer *pkgkafka.Producer, topic string) *KafkaArchive {
	return &KafkaArchive{producer: producer, topic: topic}
}

func (a *KafkaArchive) Archive(ctx context.Context, sig models.Signal) error {
	return a.producer.Publish(ctx, a.topic, []byte(sig.Master), sig)
}

func (a *KafkaArchive) Close() error {
	return a.producer.Close()
}
