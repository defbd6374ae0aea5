// Package events доставляет события по заказам подписчикам: клиентам WebSocket и брокеру сообщений.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tobikorais/Mealy/internal/model"
)

const (
	sendQueueSize = 16
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
)

// Notifier получает события по заказам.
type Notifier interface {
	Publish(ctx context.Context, ev model.OrderEvent)
}

// Multi рассылает событие всем вложенным получателям.
type Multi []Notifier

// Publish передаёт событие каждому получателю.
func (m Multi) Publish(ctx context.Context, ev model.OrderEvent) {
	for _, n := range m {
		if n != nil {
			n.Publish(ctx, ev)
		}
	}
}

type subscriber struct {
	conn     *websocket.Conn
	username string
	role     model.Role
	send     chan []byte
}

func (s *subscriber) wants(o model.Order) bool {
	return s.role == model.RoleAdmin || s.username == o.CustomerName
}

// Hub рассылает события подключённым клиентам WebSocket. Администраторы получают
// все события, клиенты только события по своим заказам.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub создаёт пустой хаб.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribers возвращает количество подключённых клиентов.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish ставит событие в очередь каждого заинтересованного клиента.
// Клиент с переполненной очередью отключается.
func (h *Hub) Publish(_ context.Context, ev model.OrderEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal order event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		if !s.wants(ev.Order) {
			continue
		}
		select {
		case s.send <- data:
		default:
			h.logger.Warn("dropping slow websocket client", zap.String("user", s.username))
			h.removeLocked(s)
		}
	}
}

// ServeWS переводит соединение на протокол WebSocket и держит подписку до его закрытия.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, username string, role model.Role) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &subscriber{
		conn:     conn,
		username: username,
		role:     role,
		send:     make(chan []byte, sendQueueSize),
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", zap.String("user", username), zap.String("role", string(role)))

	go h.writeLoop(s)
	h.readLoop(s)
}

// Close отключает всех клиентов.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		h.removeLocked(s)
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.send)
}

func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
