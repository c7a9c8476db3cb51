// Package stream mirrors outbox events onto a Kafka topic for downstream
// consumers that prefer a log over HTTP callbacks.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"immersion/internal/broadcast"
	"immersion/internal/outbox/models"
)

const Name = "event-stream"

// Producer is the part of *kgo.Client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher writes each event as JSON, keyed by convention id so every
// convention's events land on one partition in order.
type Publisher struct {
	producer Producer
	topic    string
}

func NewPublisher(producer Producer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func (p *Publisher) Name() string { return Name }

func (p *Publisher) Send(ctx context.Context, event models.DomainEvent) (broadcast.Response, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return broadcast.Response{}, broadcast.NewPartnerError(broadcast.ErrorInternal, Name, "encode event", err)
	}
	record := &kgo.Record{
		Topic:   p.topic,
		Key:     []byte(event.Payload.ConventionSnapshot().ID.String()),
		Value:   value,
		Headers: []kgo.RecordHeader{
			{Key: "event-id", Value: []byte(event.ID.String())},
			{Key: "event-topic", Value: []byte(event.Topic.String())},
		},
		Timestamp: event.OccurredAt,
	}
	produced, err := p.producer.ProduceSync(ctx, record).First()
	if err != nil {
		return broadcast.Response{}, broadcast.NewPartnerError(broadcast.ErrorTimeout, Name, "produce record", err)
	}
	return broadcast.Response{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"partition": produced.Partition,
			"offset":    produced.Offset,
		},
	}, nil
}

// Dial connects to the brokers and checks that at least one answers.
func Dial(ctx context.Context, brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic unless it already exists.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	resp, err := kadm.NewClient(client).CreateTopic(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}
