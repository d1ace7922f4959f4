package notification

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Subscriber receives encoded envelopes. A Send error removes the subscriber.
type Subscriber interface {
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Hub broadcasts envelopes to the current subscribers. There is no replay:
// subscribers only see envelopes published after they joined.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[Subscriber]struct{}),
		logger:      logger.Named("hub"),
	}
}

func (h *Hub) Subscribe(s Subscriber) {
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()
	h.logger.Debug("subscriber joined", zap.Int("subscribers", n))
}

// Unsubscribe removes s. Removing an unknown subscriber is a no-op.
func (h *Hub) Unsubscribe(s Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[s]
	delete(h.subscribers, s)
	n := len(h.subscribers)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("subscriber left", zap.Int("subscribers", n))
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) snapshot() []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		out = append(out, s)
	}
	return out
}

// Publish sends env to every subscriber present when the call started. Writes
// happen outside the lock; subscribers whose write fails are removed and closed.
func (h *Hub) Publish(ctx context.Context, env Envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return err
	}

	subs := h.snapshot()
	if len(subs) == 0 {
		return nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []Subscriber
	)
	for _, s := range subs {
		wg.Add(1)
		go func(s Subscriber) {
			defer wg.Done()
			if err := s.Send(ctx, msg); err != nil {
				h.logger.Info("dropping subscriber", zap.Error(err))
				mu.Lock()
				failed = append(failed, s)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	for _, s := range failed {
		h.Unsubscribe(s)
		_ = s.Close()
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[Subscriber]struct{})
	h.mu.Unlock()
	for s := range subs {
		_ = s.Close()
	}
}
