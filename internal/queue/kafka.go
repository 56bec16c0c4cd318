package queue

import (
	"context"
	"fmt"
	"time"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/domain"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes jobs keyed by document id, so jobs for one document
// land on one partition.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(cfg config.KafkaConfig) *KafkaProducer {
	return &KafkaProducer{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			Balancer: &kafka.Hash{},
		}),
	}
}

func (p *KafkaProducer) Enqueue(ctx context.Context, job domain.WatermarkJob) (string, error) {
	job = prepare(job, time.Now())
	payload, err := Encode(job)
	if err != nil {
		return "", err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.DocumentID),
		Value: payload,
		Time:  job.EnqueuedAt,
	})
	if err != nil {
		return "", fmt.Errorf("publish watermark job: %w", err)
	}
	return job.ID, nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer is one consumer-group member. Offsets are committed on Ack
// only; anything fetched but not acknowledged is redelivered after a restart
// or rebalance. Committing a message also commits every earlier offset of its
// partition, so callers must settle a delivery before receiving the next one.
// A reader is not shared between goroutines.
type KafkaConsumer struct {
	reader *kafka.Reader
}

func NewKafkaConsumer(cfg config.KafkaConfig) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: 1,
			MaxBytes: 10 << 20,
		}),
	}
}

func (c *KafkaConsumer) Receive(ctx context.Context) (*Delivery, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	job, decodeErr := Decode(msg.Value)
	d := NewDelivery(job, 1, func(ctx context.Context) error {
		return c.reader.CommitMessages(ctx, msg)
	})
	d.Raw, d.DecodeErr = msg.Value, decodeErr
	return d, nil
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
