package interfaces

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"recall/internal/service/recall/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// funnelMessage 是推给看板的事件，不带 token 和用户名。
type funnelMessage struct {
	Stage      domain.FunnelStage `json:"stage"`
	MerchantID int64              `json:"merchant_id"`
	RecallID   int64              `json:"recall_id,omitempty"`
	Count      int64              `json:"count,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func newFunnelMessage(ev domain.FunnelEvent) funnelMessage {
	return funnelMessage{
		Stage:      ev.Stage,
		MerchantID: ev.MerchantID,
		RecallID:   ev.RecallID,
		Count:      ev.Count,
		OccurredAt: ev.OccurredAt,
	}
}

// FunnelHub 维护所有看板的 websocket 连接，把漏斗事件推给订阅了对应商家的连接。
// 它同时是一个 FunnelPublisher。
type FunnelHub struct {
	clients    map[string]*funnelClient // 使用连接ID作为Key
	register   chan *funnelClient
	unregister chan *funnelClient
	broadcast  chan domain.FunnelEvent
	done       chan struct{}
	closeOnce  sync.Once
	lock       sync.RWMutex

	upgrader websocket.Upgrader
	origins  []string
	key      string
}

type HubOption func(*FunnelHub)

// WithAllowedOrigins 允许这些来源的看板跨域连接，未配置时只接受同源。
func WithAllowedOrigins(origins ...string) HubOption {
	return func(h *FunnelHub) {
		for _, o := range origins {
			if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
				h.origins = append(h.origins, strings.ToLower(o))
			}
		}
	}
}

// WithSubscribeKey 要求订阅时带上 key 参数或 X-Funnel-Key 头。
func WithSubscribeKey(key string) HubOption {
	return func(h *FunnelHub) { h.key = key }
}

func NewFunnelHub(opts ...HubOption) *FunnelHub {
	h := &FunnelHub{
		clients:    make(map[string]*funnelClient),
		register:   make(chan *funnelClient),
		unregister: make(chan *funnelClient),
		broadcast:  make(chan domain.FunnelEvent, sendBuffer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin 放行没有 Origin 头的非浏览器客户端、同源请求和配置的来源。
func (h *FunnelHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return slices.Contains(h.origins, strings.ToLower(strings.TrimRight(origin, "/")))
}

func (h *FunnelHub) authorized(r *http.Request) bool {
	if h.key == "" {
		return true
	}
	got := r.Header.Get("X-Funnel-Key")
	if got == "" {
		got = r.URL.Query().Get("key")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.key)) == 1
}

// Run 处理注册、注销和广播，直到 Close 被调用。
func (h *FunnelHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.lock.Lock()
			h.clients[c.id] = c
			h.lock.Unlock()
			log.Info().Str("client", c.id).Int64("merchant_id", c.merchantID).Msg("funnel subscriber registered")
		case c := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.lock.Unlock()
			log.Info().Str("client", c.id).Msg("funnel subscriber unregistered")
		case ev := <-h.broadcast:
			h.dispatch(ev)
		case <-h.done:
			h.lock.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.lock.Unlock()
			return
		}
	}
}

// dispatch 只在 Run 的 goroutine 中调用，send 通道不会在这期间被关闭。
func (h *FunnelHub) dispatch(ev domain.FunnelEvent) {
	payload, err := json.Marshal(newFunnelMessage(ev))
	if err != nil {
		log.Error().Err(err).Msg("marshal funnel event failed")
		return
	}
	h.lock.RLock()
	defer h.lock.RUnlock()
	for _, c := range h.clients {
		if !c.wants(ev) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			log.Warn().Str("client", c.id).Msg("funnel subscriber too slow, event dropped")
		}
	}
}

// Publish 把事件交给 Run 广播。hub 已关闭时直接丢弃。
func (h *FunnelHub) Publish(ctx context.Context, events ...domain.FunnelEvent) error {
	for _, ev := range events {
		select {
		case h.broadcast <- ev:
		case <-h.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close 停止 Run 并断开所有连接。
func (h *FunnelHub) Close(context.Context) error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

// Clients 返回当前连接数。
func (h *FunnelHub) Clients() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// ServeWS 处理 /ws/funnel?merchant_id=，merchant_id 为必填，配置了订阅 key 时还要校验 key。
func (h *FunnelHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "invalid subscribe key", http.StatusUnauthorized)
		return
	}

	// 1. 从URL参数获取商家ID
	merchantID, err := strconv.ParseInt(r.URL.Query().Get("merchant_id"), 10, 64)
	if err != nil || merchantID <= 0 {
		http.Error(w, "merchant_id is required", http.StatusBadRequest)
		return
	}

	// 2. HTTP升级为WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// 3. 创建客户端实例并注册到Hub
	c := &funnelClient{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		id:         uuid.NewString(),
		merchantID: merchantID,
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	// 4. 启动读写goroutine
	go c.writePump()
	go c.readPump()
}

// funnelClient 是一个看板的 websocket 连接。
type funnelClient struct {
	hub        *FunnelHub
	conn       *websocket.Conn
	send       chan []byte
	id         string
	merchantID int64
}

// wants 判断事件是否推给该连接。没有商家的汇总事件 (清理任务) 推给所有连接。
func (c *funnelClient) wants(ev domain.FunnelEvent) bool {
	return ev.MerchantID == 0 || ev.MerchantID == c.merchantID
}

// writePump 把 send 中的消息写入连接，并定期发送 ping。
func (c *funnelClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只读取 pong 和关闭帧，连接断开时注销。
func (c *funnelClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("funnel subscriber read failed")
			}
			return
		}
	}
}
