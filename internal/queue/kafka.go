package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"todo-api/internal/config"
	"todo-api/internal/models"
	"todo-api/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Publisher delivers todo change events.
type Publisher interface {
	Publish(ctx context.Context, evt models.TodoEvent) error
	Close() error
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.TodoEvent) error { return nil }
func (NopPublisher) Close() error                                    { return nil }

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes TodoEvents as JSON, keyed by todo id so events for
// one todo stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher returns a Kafka publisher, or a NopPublisher when cfg has no brokers.
func NewPublisher(ctx context.Context, cfg *config.Config) Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info(ctx, "Change feed disabled (no Kafka brokers)")
		return NopPublisher{}
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		Async:                  true,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error(context.Background(), "Kafka async write failed", "error", err, "count", len(msgs))
			}
		},
	}
	logger.Info(ctx, "Kafka producer initialized", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	return &KafkaPublisher{writer: w, topic: cfg.KafkaTopic}
}

// Publish enqueues one event. With the async writer this does not wait for the broker.
func (p *KafkaPublisher) Publish(ctx context.Context, evt models.TodoEvent) error {
	msg, err := buildMessage(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessage(evt models.TodoEvent) (kafka.Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal todo event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(evt.ID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(evt.Action)},
		},
	}, nil
}

// EnsureTopic creates the change-feed topic with configured partitions (idempotent).
// Failure is logged; the service runs without it.
func EnsureTopic(ctx context.Context, cfg *config.Config) {
	if len(cfg.KafkaBrokers) == 0 {
		return
	}
	conn, err := kafka.DialContext(ctx, "tcp", cfg.KafkaBrokers[0])
	if err != nil {
		logger.Warn(ctx, "Kafka dial for topic creation failed", "error", err)
		return
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		logger.Warn(ctx, "Kafka controller lookup failed", "error", err)
		return
	}
	ctrlConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		logger.Warn(ctx, "Kafka controller dial failed", "error", err)
		return
	}
	defer ctrlConn.Close()
	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.KafkaTopic,
		NumPartitions:     cfg.KafkaPartitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Debug(ctx, "Kafka create topic failed (topic may already exist)", "error", err)
		return
	}
	logger.Info(ctx, "Kafka topic ensured", "topic", cfg.KafkaTopic, "partitions", cfg.KafkaPartitions)
}
