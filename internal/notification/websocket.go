package notification

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type wsSubscriber struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (s *wsSubscriber) Send(_ context.Context, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

func (s *wsSubscriber) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *wsSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// WebSocketHandler upgrades requests and subscribes each connection to hub.
// Inbound messages are ignored; the read loop only detects disconnects.
type WebSocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWebSocketHandler(hub *Hub, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Named("ws"),
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	sub := &wsSubscriber{conn: conn, done: make(chan struct{})}
	h.hub.Subscribe(sub)
	go h.keepAlive(sub)

	defer func() {
		h.hub.Unsubscribe(sub)
		_ = sub.Close()
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("connection closed", zap.Error(err))
			}
			return
		}
	}
}

func (h *WebSocketHandler) keepAlive(sub *wsSubscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			if err := sub.ping(); err != nil {
				h.hub.Unsubscribe(sub)
				_ = sub.Close()
				return
			}
		}
	}
}
