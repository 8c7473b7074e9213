package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"streambreakout/protocol"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	maxFrameSize = 1 << 20 // 1MB
	sendQueueLen = 64
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, sendQueueLen),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Close 关闭发送队列与底层连接，可重复调用
func (c *ClientConn) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		// 关闭发送通道以结束写协程
		close(c.send)
	}
	c.mu.Unlock()
	_ = c.ws.Close()
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息并投递到会话；格式错误的帧直接丢弃
func (c *ClientConn) readPump(s *Session, id ClientID, m *Metrics) {
	defer c.ws.Close()
	// 读泵退出时，通知会话在其协程中移除该连接
	defer s.Leave(id)
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debugw("websocket read error", "client", id, "err", err)
			}
			return
		}
		c.dispatch(s, id, m, payload)
	}
}

func (c *ClientConn) dispatch(s *Session, id ClientID, m *Metrics, payload []byte) {
	env, err := protocol.DecodeEnvelope(payload)
	if err != nil {
		m.RejectedEvents.WithLabelValues("malformed").Inc()
		Log.Debugw("malformed frame dropped", "client", id, "err", err)
		return
	}
	switch env.Type {
	case protocol.MsgGameEvent:
		ge, err := protocol.DecodePayload[protocol.GameEvent](env)
		if err != nil {
			m.RejectedEvents.WithLabelValues("malformed").Inc()
			return
		}
		s.SubmitGameEvent(ge)
	case protocol.MsgSimulateEvent:
		ev, err := protocol.DecodePayload[protocol.StreamEvent](env)
		if err == nil {
			err = ev.Validate()
		}
		if err != nil {
			// 手动注入路径：把错误回给发起者
			m.RejectedEvents.WithLabelValues("invalid_event").Inc()
			if b, encErr := protocol.Encode(protocol.MsgError, protocol.ErrorPayload{Error: err.Error()}); encErr == nil {
				c.Enqueue(b)
			}
			return
		}
		s.SubmitStreamEvent(ev, SourceWS)
	default:
		m.RejectedEvents.WithLabelValues("unknown_type").Inc()
		Log.Debugw("unknown message type", "client", id, "type", env.Type)
	}
}

// NewUpgrader 只接受白名单中的 Origin；无 Origin 头（非浏览器客户端）放行，"*" 放行全部
func NewUpgrader(allowed []string) *websocket.Upgrader {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || set["*"] || set[origin]
		},
	}
}

// WSHandler WebSocket 接入：/ws
type WSHandler struct {
	session  *Session
	metrics  *Metrics
	upgrader *websocket.Upgrader
}

func NewWSHandler(s *Session, m *Metrics, allowedOrigins []string) *WSHandler {
	return &WSHandler{session: s, metrics: m, upgrader: NewUpgrader(allowedOrigins)}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade error", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := NewClientConn(ws)
	// 写协程先启动，join 时的 stats_update 才能及时写出
	go client.writePump()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, err := h.session.Join(ctx, client)
	if err != nil {
		Log.Warnw("join failed", "remote", r.RemoteAddr, "err", err)
		client.Close()
		return
	}
	go client.readPump(h.session, id, h.metrics)
}
