package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

type Producer interface {
	PublishEntryJoined(ctx context.Context, event EntryJoinedEvent) error
	PublishEntryCalled(ctx context.Context, event EntryCalledEvent) error
	PublishEntryEntered(ctx context.Context, event EntryEnteredEvent) error
	PublishEntryCancelled(ctx context.Context, event EntryCancelledEvent) error
	PublishEntryNoShow(ctx context.Context, event EntryNoShowEvent) error
	Close() error
}

type kafkaProducer struct {
	producer sarama.SyncProducer
	l        logger.Logger
}

func NewProducer(producer sarama.SyncProducer, l logger.Logger) Producer {
	return &kafkaProducer{
		producer: producer,
		l:        l,
	}
}

func (p *kafkaProducer) PublishEntryJoined(ctx context.Context, event EntryJoinedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicEntryJoined, event.ResourceID, event)
}

func (p *kafkaProducer) PublishEntryCalled(ctx context.Context, event EntryCalledEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicEntryCalled, event.ResourceID, event)
}

func (p *kafkaProducer) PublishEntryEntered(ctx context.Context, event EntryEnteredEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicEntryEntered, event.ResourceID, event)
}

func (p *kafkaProducer) PublishEntryCancelled(ctx context.Context, event EntryCancelledEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicEntryCancelled, event.ResourceID, event)
}

func (p *kafkaProducer) PublishEntryNoShow(ctx context.Context, event EntryNoShowEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicEntryNoShow, event.ResourceID, event)
}

func (p *kafkaProducer) publish(ctx context.Context, topic, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().Format(time.RFC3339)),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.l.Errorf(ctx, "kafkaProducer.publish: topic=%s: %v", topic, err)
		return fmt.Errorf("failed to send kafka message: %w", err)
	}

	p.l.Debugf(ctx, "kafka message sent: topic=%s partition=%d offset=%d key=%s",
		topic, partition, offset, key)

	return nil
}

func (p *kafkaProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

// noopProducer keeps the engine oblivious to whether Kafka is enabled.
type noopProducer struct{}

func NewNoopProducer() Producer {
	return noopProducer{}
}

func (noopProducer) PublishEntryJoined(context.Context, EntryJoinedEvent) error       { return nil }
func (noopProducer) PublishEntryCalled(context.Context, EntryCalledEvent) error       { return nil }
func (noopProducer) PublishEntryEntered(context.Context, EntryEnteredEvent) error     { return nil }
func (noopProducer) PublishEntryCancelled(context.Context, EntryCancelledEvent) error { return nil }
func (noopProducer) PublishEntryNoShow(context.Context, EntryNoShowEvent) error       { return nil }
func (noopProducer) Close() error                                                     { return nil }
