package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer writes JSON messages to one topic.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

// Publish encodes value as JSON. Messages with the same key land on the same
// partition, so per-entity order is kept.
func (p *Producer) Publish(ctx context.Context, key string, value any, headers map[string]string) error {
	msg, err := newMessage(key, value, headers, time.Now())
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func newMessage(key string, value any, headers map[string]string, at time.Time) (kafka.Message, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  at,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
