package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"autoreply/backend/internal/domain"
)

// EventType 推送给评审界面的事件类型
type EventType string

const (
	// EventDraftCreated 收件循环产生了新草稿
	EventDraftCreated EventType = "draft.created"
	// EventDraftSent 草稿已发送
	EventDraftSent EventType = "draft.sent"
	// EventDraftRejected 草稿已拒绝
	EventDraftRejected EventType = "draft.rejected"
)

// Event 草稿生命周期事件
type Event struct {
	Type      EventType     `json:"type"`
	Draft     *domain.Draft `json:"draft,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// upgrader WebSocket 升级器，带 Origin 验证
func upgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// Hub 管理评审界面的 WebSocket 连接并广播草稿事件。
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub 创建 Hub。
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[*client]struct{}),
		upgrader: upgrader(allowedOrigins),
		log:      log,
	}
}

// Broadcast 向所有连接广播一条草稿事件。
//
// 发送缓冲已满的慢客户端直接丢弃本条消息，避免阻塞收件循环。
func (h *Hub) Broadcast(eventType EventType, draft *domain.Draft) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Draft:     draft,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.log.Warn("failed to encode event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// ClientCount 当前连接数（用于监控与测试）。
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS gin 处理器：升级连接并进入读写循环。
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(cl)
	h.readLoop(cl)
}

// writeLoop 把事件写往客户端，并定期发 ping 保活。
func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-cl.send:
			if !ok {
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop 只消费控制帧；读错误即视为断开。
func (h *Hub) readLoop(cl *client) {
	defer h.drop(cl)

	cl.conn.SetReadLimit(1024)
	cl.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop 注销并关闭客户端连接。
func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
	_ = cl.conn.Close()
}
