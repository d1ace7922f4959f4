package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

const readRetryDelay = time.Second

type Consumer struct {
	reader *kafka.Reader
	logger *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})
	return &Consumer{
		reader: reader,
		logger: logger.Named("kafka").With(zap.String("topic", topic), zap.String("group", groupID)),
	}
}

// Consume reads until ctx is cancelled. Handler errors are logged and the
// message is committed anyway; notifications are not replayed.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("read message failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readRetryDelay):
			}
			continue
		}

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("handle message failed",
				zap.ByteString("key", msg.Key),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
