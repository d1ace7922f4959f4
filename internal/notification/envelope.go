// Package notification fans catalog change envelopes out to connected clients.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

type Entity string

const (
	EntityProduct  Entity = "PRODUCT"
	EntityCategory Entity = "CATEGORY"
)

type EventType string

const (
	EventCreate EventType = "CREATE"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Envelope is the wire shape of one change notification.
type Envelope struct {
	Entity    Entity          `json:"entity"`
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEnvelope encodes data as the envelope payload.
func NewEnvelope(entity Entity, typ EventType, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Entity:    entity,
		Type:      typ,
		Data:      raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Publisher delivers envelopes somewhere.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, env Envelope) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every envelope.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }

// publishTimeout caps one Notify call when the caller's context has no sooner
// deadline.
var publishTimeout = 2 * time.Second

// publishContext keeps ctx values but not its cancellation, and ends at the
// earlier of ctx's deadline and publishTimeout from now.
func publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline := time.Now().Add(publishTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return context.WithDeadline(context.WithoutCancel(ctx), deadline)
}

// Notify builds and publishes an envelope, logging instead of returning failures.
// Mutations have already committed by the time this runs.
func Notify(ctx context.Context, p Publisher, logger *zap.Logger, entity Entity, typ EventType, data any) {
	if p == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	env, err := NewEnvelope(entity, typ, data)
	if err != nil {
		logger.Error("encode notification failed", zap.String("entity", string(entity)), zap.Error(err))
		return
	}
	pubCtx, cancel := publishContext(ctx)
	defer cancel()
	if err := p.Publish(pubCtx, env); err != nil {
		logger.Warn("publish notification failed",
			zap.String("entity", string(entity)),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
	}
}
