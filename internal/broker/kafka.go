// Package broker wraps the Kafka transport behind small consumer and
// producer types so the rest of the system never touches kafka-go
// directly.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"notifgate/internal/types"
)

// Message is one raw broker message together with the delivery handle
// needed to acknowledge it later.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64

	raw kafka.Message
}

// ConsumerConfig configures a consumer-group reader.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// Tag identifies this consumer instance in logs. When empty a
	// unique tag is generated.
	Tag string
	// Prefetch bounds how many fetched-but-uncommitted messages the
	// reader buffers. Zero means the kafka-go default.
	Prefetch int
}

// Consumer reads messages from a topic as part of a consumer group.
// Offsets are committed explicitly, after the caller has reached a
// terminal state for the message.
type Consumer struct {
	reader *kafka.Reader
	tag    string
	logger types.Logger
}

// NewConsumer creates a consumer-group reader for the given topic.
func NewConsumer(cfg ConsumerConfig, logger types.Logger) *Consumer {
	tag := cfg.Tag
	if tag == "" {
		tag = fmt.Sprintf("%s-%s", cfg.GroupID, uuid.NewString()[:8])
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: false,
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:       cfg.Brokers,
		Topic:         cfg.Topic,
		GroupID:       cfg.GroupID,
		MinBytes:      1,
		MaxBytes:      10e6,
		MaxWait:       1 * time.Second,
		Dialer:        dialer,
		QueueCapacity: queueCapacity(cfg.Prefetch),
		StartOffset:   kafka.FirstOffset,
	})

	return &Consumer{
		reader: r,
		tag:    tag,
		logger: logger.With("consumer_tag", tag, "topic", cfg.Topic),
	}
}

// Fetch blocks until the next message is available or ctx is done.
func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		return Message{}, types.NewAppError(types.ErrCodeTransientBroker, "failed to fetch message", err)
	}
	return Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		raw:       msg,
	}, nil
}

// Commit acknowledges a message, advancing the group offset past it.
func (c *Consumer) Commit(ctx context.Context, msg Message) error {
	if err := c.reader.CommitMessages(ctx, msg.raw); err != nil {
		return types.NewAppError(types.ErrCodeTransientBroker, "failed to commit message", err)
	}
	return nil
}

// Tag returns this consumer instance's log identity.
func (c *Consumer) Tag() string {
	return c.tag
}

// Close shuts the reader down, leaving uncommitted messages for
// redelivery.
func (c *Consumer) Close() error {
	c.logger.Info("closing consumer")
	return c.reader.Close()
}

func queueCapacity(prefetch int) int {
	if prefetch <= 0 {
		return 100
	}
	return prefetch
}

// ProducerConfig configures a topic writer.
type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// Producer publishes messages to a single topic. It is used for the
// dead-letter topic and for outcome events.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a synchronous writer for the given topic.
func NewProducer(cfg ProducerConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: w}
}

// Publish writes one message. Messages with the same key land on the
// same partition, preserving per-key ordering.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
	if err != nil {
		return types.NewAppError(types.ErrCodeTransientBroker, "failed to publish message", err)
	}
	return nil
}

// Topic returns the topic this producer writes to.
func (p *Producer) Topic() string {
	return p.writer.Topic
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
