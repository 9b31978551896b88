// Package websocket 为只读 Web 收件箱提供新邮件实时推送。
//
// 订阅按邮箱地址分组，无需认证：Web 视图本身就是"知道地址即可读"
// 的被动界面，推送内容不超出该界面已经展示的信息。
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"postdrop/backend/internal/domain"
)

// upgraderFactory 创建带 Origin 校验的升级器。
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// Event 推送给浏览器的事件。
type Event struct {
	Type      string    `json:"type"`
	Address   string    `json:"address"`
	Sender    string    `json:"sender,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	address string
}

// Hub 管理全部 WebSocket 订阅。
type Hub struct {
	mu             sync.RWMutex
	subs           map[string]map[*client]struct{} // address -> clients
	allowedOrigins []string
	log            *zap.Logger
}

// NewHub 创建 Hub。
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs:           make(map[string]map[*client]struct{}),
		allowedOrigins: allowedOrigins,
		log:            log,
	}
}

// Run 阻塞到 ctx 取消后关闭全部连接。
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.subs {
		for c := range clients {
			close(c.send)
		}
	}
	h.subs = make(map[string]map[*client]struct{})
}

// NotifyNewMail 把新邮件事件推给订阅该地址的浏览器（实现 ingest.Notifier）。
func (h *Hub) NotifyNewMail(_ context.Context, mailbox *domain.Mailbox, email *domain.Email, _ *domain.ParsedMessage) {
	event := Event{
		Type:      "new_mail",
		Address:   mailbox.Address,
		Sender:    email.SenderDisplay(),
		Subject:   email.Subject,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	address := strings.ToLower(mailbox.Address)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[address] {
		select {
		case c.send <- data:
		default:
			// 客户端阻塞，跳过
		}
	}
}

// register 登记订阅。
func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[c.address] == nil {
		h.subs[c.address] = make(map[*client]struct{})
	}
	h.subs[c.address][c] = struct{}{}
}

// unregister 注销订阅。
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.subs[c.address]; ok {
		if _, subscribed := clients[c]; subscribed {
			delete(clients, c)
			close(c.send)
			if len(clients) == 0 {
				delete(h.subs, c.address)
			}
		}
	}
}

// SubscriberCount 某地址的在线订阅数（测试用）。
func (h *Hub) SubscriberCount(address string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[strings.ToLower(address)])
}

// Handler 返回处理 WebSocket 升级的 gin 处理函数。
func Handler(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		address := strings.ToLower(strings.TrimSpace(c.Query("address")))
		if address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "address query parameter is required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed",
				zap.Error(err), zap.String("remote_addr", c.ClientIP()))
			return
		}

		cl := &client{
			conn:    conn,
			send:    make(chan []byte, 64),
			address: address,
		}
		hub.register(cl)

		go cl.writePump()
		go cl.readPump(hub)
	}
}

// readPump 只为检测连接关闭，入站消息一律丢弃。
func (c *client) readPump(hub *Hub) {
	defer func() {
		hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump 推送事件并周期 ping。
func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
