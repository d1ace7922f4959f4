package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Producer is the subset of the Kafka producer used here.
type Producer interface {
	Publish(ctx context.Context, key string, value any, headers map[string]string) error
}

// KafkaPublisher forwards envelopes to a topic keyed by entity.
type KafkaPublisher struct {
	producer Producer
}

func NewKafkaPublisher(p Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (k *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	headers := map[string]string{
		"entity": string(env.Entity),
		"type":   string(env.Type),
	}
	if err := k.producer.Publish(ctx, string(env.Entity), env, headers); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Relay decodes envelopes consumed from Kafka and republishes them locally.
type Relay struct {
	target Publisher
	logger *zap.Logger
}

func NewRelay(target Publisher, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{target: target, logger: logger.Named("relay")}
}

// HandleMessage matches kafka.MessageHandler.
func (r *Relay) HandleMessage(ctx context.Context, _, value []byte) error {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Entity == "" || env.Type == "" {
		r.logger.Warn("skipping envelope without entity or type")
		return nil
	}
	return r.target.Publish(ctx, env)
}
