package outbox

import (
	"context"
	"io"
	"log"

	"github.com/segmentio/kafka-go"
)

// Producer is satisfied by *kafka.Writer.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Dispatcher struct {
	logger   *log.Logger
	producer Producer
	topic    string
}

func NewDispatcher(logger *log.Logger, producer Producer, topic string) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{logger: logger, producer: producer, topic: topic}
}

// NewKafkaWriter returns a writer that waits for all in-sync replicas.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// Dispatch publishes one event keyed by its aggregate id, so events of one
// order land on one partition.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	msg := kafka.Message{
		Topic: d.topic,
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.logger.Printf("outbox: dispatch failed event_id=%d err=%v", event.ID, err)
		return err
	}
	d.logger.Printf("outbox: dispatched event_id=%d type=%s", event.ID, event.Type)
	return nil
}
