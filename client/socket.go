package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"streambreakout/protocol"
)

var ErrNotConnected = errors.New("not connected")

// 重连策略：第 n 次重试前等待 min(1s·2^n, 30s)，最多 5 次，不加抖动
const (
	reconnectInitial  = 2 * time.Second
	reconnectMax      = 30 * time.Second
	reconnectAttempts = 5

	writeWait    = 5 * time.Second
	sendQueueLen = 64
)

// ConnState 连接状态，驱动 UI 上的在线指示
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
	StateFailed // 重连次数耗尽，不再尝试
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

type SocketOptions struct {
	URL     string
	Origin  string
	OnFrame func([]byte)    // 读协程中调用，须尽快返回
	OnState func(ConnState) // 可为 nil
	Logger  *zap.SugaredLogger

	// NewBackOff 测试可替换；默认按上面的重连策略
	NewBackOff func() backoff.BackOff
}

// Socket 自动重连的 WebSocket 客户端
type Socket struct {
	opts   SocketOptions
	dialer *websocket.Dialer
	log    *zap.SugaredLogger

	mu   sync.Mutex
	send chan []byte // nil 表示当前无连接
}

func NewSocket(opts SocketOptions) *Socket {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = DefaultBackOff
	}
	return &Socket{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: 20 * time.Second},
		log:    opts.Logger,
	}
}

// DefaultBackOff 指数退避，无随机化，总时长不限（次数由 Run 控制）
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitial
	b.Multiplier = 2
	b.MaxInterval = reconnectMax
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run 连接并保持；成功连上后重连计数清零。ctx 结束返回 nil，重连耗尽返回错误
func (s *Socket) Run(ctx context.Context) error {
	for {
		s.setState(StateConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(StateDisconnected)
				return nil
			}
			s.setState(StateFailed)
			return fmt.Errorf("connect %s: %w", s.opts.URL, err)
		}
		s.log.Infow("connected", "url", s.opts.URL)
		s.setState(StateConnected)
		s.serve(ctx, conn)
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warnw("connection lost, reconnecting", "url", s.opts.URL)
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	hdr := http.Header{}
	if s.opts.Origin != "" {
		hdr.Set("Origin", s.opts.Origin)
	}
	var conn *websocket.Conn
	op := func() error {
		c, _, err := s.dialer.DialContext(ctx, s.opts.URL, hdr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warnw("connect failed, retrying", "err", err, "wait", wait)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(s.opts.NewBackOff(), reconnectAttempts), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return conn, nil
}

// serve 阻塞直到连接断开或 ctx 结束
func (s *Socket) serve(ctx context.Context, conn *websocket.Conn) {
	send := make(chan []byte, sendQueueLen)
	s.mu.Lock()
	s.send = send
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			case msg, ok := <-send:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if s.opts.OnFrame != nil {
			s.opts.OnFrame(b)
		}
	}

	s.mu.Lock()
	s.send = nil
	close(send)
	s.mu.Unlock()
	_ = conn.Close()
	<-done
}

// Send 编码并入队（非阻塞）；无连接或队列满时返回 false
func (s *Socket) Send(msgType string, payload any) bool {
	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		s.log.Errorw("encode failed", "type", msgType, "err", err)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send == nil {
		return false
	}
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send != nil
}

func (s *Socket) setState(st ConnState) {
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}
