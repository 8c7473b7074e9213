package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"streambreakout/protocol"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrCommandPanicked = errors.New("session command panicked")
)

// Status GET /api/status 负载
type Status struct {
	Status           string                   `json:"status"`
	GameState        protocol.Counters        `json:"gameState"`
	Upgrades         []protocol.UpgradeStatus `json:"upgrades"`
	ConnectedClients int                      `json:"connectedClients"`
	Uptime           float64                  `json:"uptime"` // 秒
}

type result[T any] struct {
	val T
	err error
}

// failReply 非阻塞：命令可能已经回复过
func failReply[T any](ch chan result[T], err error) {
	select {
	case ch <- result[T]{err: err}:
	default:
	}
}

type failer interface{ fail(error) }

type joinCmd struct {
	peer  Peer
	reply chan result[ClientID]
}

type leaveCmd struct{ id ClientID }

type streamCmd struct {
	ev     protocol.StreamEvent
	source string
	reply  chan result[protocol.StreamEvent] // nil 表示即发即忘
}

type outcomeCmd struct{ ev protocol.GameEvent }

type resetCmd struct{ reply chan result[protocol.Counters] }

type statusCmd struct{ reply chan result[Status] }

type autoEventCmd struct{}

func (c joinCmd) fail(err error)   { failReply(c.reply, err) }
func (c streamCmd) fail(err error) { failReply(c.reply, err) }
func (c resetCmd) fail(err error)  { failReply(c.reply, err) }
func (c statusCmd) fail(err error) { failReply(c.reply, err) }

// Session 单个直播会话：计数、升级表与连接表只由 Run 协程修改
type Session struct {
	cfg     *Config
	hub     *Hub
	agg     *Aggregator
	metrics *Metrics
	rng     *rand.Rand

	inbox chan any
	done  chan struct{}

	startedAt time.Time
	now       func() time.Time
}

func NewSession(cfg *Config, m *Metrics) *Session {
	hub := NewHub(m)
	return &Session{
		cfg:       cfg,
		hub:       hub,
		agg:       NewAggregator(cfg.Upgrades, hub, m),
		metrics:   m,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		inbox:     make(chan any, 256), // 足够缓冲，避免网络读阻塞
		done:      make(chan struct{}),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Run 串行处理全部命令，ctx 结束时断开所有连接
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.hub.CloseAll()
	Log.Infow("session started", "upgrades", len(s.cfg.Upgrades))
	for {
		select {
		case <-ctx.Done():
			Log.Info("session stopped")
			return
		case cmd := <-s.inbox:
			s.handle(cmd)
		}
	}
}

func (s *Session) handle(cmd any) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.CommandPanics.Inc()
			Log.Errorw("session command panicked", "cmd", fmt.Sprintf("%T", cmd), "panic", r)
			if f, ok := cmd.(failer); ok {
				f.fail(ErrCommandPanicked)
			}
		}
		s.metrics.CommandDuration.Observe(time.Since(start).Seconds())
	}()

	switch c := cmd.(type) {
	case joinCmd:
		id := s.hub.Add(c.peer)
		Log.Infow("client connected", "client", id, "clients", s.hub.Len())
		s.agg.ClientConnected()
		c.reply <- result[ClientID]{val: id}
	case leaveCmd:
		if s.hub.Remove(c.id) {
			Log.Infow("client disconnected", "client", c.id, "clients", s.hub.Len())
			s.agg.ClientDisconnected()
		}
	case streamCmd:
		ev, err := s.applyStreamEvent(c.ev, c.source)
		if c.reply != nil {
			c.reply <- result[protocol.StreamEvent]{val: ev, err: err}
		}
	case outcomeCmd:
		if err := s.agg.ApplyGameOutcome(c.ev); err != nil {
			s.metrics.RejectedEvents.WithLabelValues("unknown_outcome").Inc()
			Log.Warnw("game event rejected", "err", err)
		}
	case resetCmd:
		counters := s.agg.Reset()
		Log.Info("session counters reset")
		c.reply <- result[protocol.Counters]{val: counters}
	case statusCmd:
		c.reply <- result[Status]{val: s.status()}
	case autoEventCmd:
		s.autoEvent()
	default:
		Log.Warnw("unknown session command", "cmd", fmt.Sprintf("%T", cmd))
	}
}

func (s *Session) applyStreamEvent(ev protocol.StreamEvent, source string) (protocol.StreamEvent, error) {
	ev, err := s.agg.ApplyStreamEvent(ev)
	if err != nil {
		s.metrics.RejectedEvents.WithLabelValues("invalid_event").Inc()
		Log.Warnw("stream event rejected", "source", source, "err", err)
		return ev, err
	}
	s.metrics.StreamEvents.WithLabelValues(string(ev.Type), source).Inc()
	Log.Infow("stream event", "source", source, "type", ev.Type, "user", ev.UserData.Name, "level", ev.UserData.Level)
	return ev, nil
}

// autoEvent 没有观众在线时不产生事件
func (s *Session) autoEvent() {
	if s.agg.Counters().ConnectedClients == 0 {
		return
	}
	ev, ok := RandomStreamEvent(s.rng, s.cfg.TestUsers, s.now())
	if !ok {
		return
	}
	_, _ = s.applyStreamEvent(ev, SourceAuto)
}

func (s *Session) status() Status {
	snap := s.agg.Snapshot()
	return Status{
		Status:           "running",
		GameState:        snap.Counters,
		Upgrades:         snap.Upgrades,
		ConnectedClients: snap.ConnectedClients,
		Uptime:           s.now().Sub(s.startedAt).Seconds(),
	}
}

// send 阻塞投递；会话已结束时立即返回
func (s *Session) send(ctx context.Context, cmd any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.inbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// trySend 不阻塞：收件箱满则丢弃，保证网络读协程不被拖住
func (s *Session) trySend(cmd any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- cmd:
		return true
	default:
		s.metrics.InboxDropped.Inc()
		return false
	}
}

// request 投递后只等待回复或会话结束，避免命令已生效而调用方不知情
func request[T any](ctx context.Context, s *Session, build func(chan result[T]) any) (T, error) {
	reply := make(chan result[T], 1)
	var zero T
	if err := s.send(ctx, build(reply)); err != nil {
		return zero, err
	}
	select {
	case r := <-reply:
		return r.val, r.err
	case <-s.done:
		return zero, ErrSessionClosed
	}
}

// Join 登记连接，随后全体收到新的 stats_update
func (s *Session) Join(ctx context.Context, p Peer) (ClientID, error) {
	return request(ctx, s, func(ch chan result[ClientID]) any { return joinCmd{peer: p, reply: ch} })
}

// Leave 在会话协程中移除连接，避免并发改动连接表
func (s *Session) Leave(id ClientID) {
	_ = s.send(context.Background(), leaveCmd{id: id})
}

// InjectEvent 管理接口注入，返回带 id 与时间戳的事件或校验错误
func (s *Session) InjectEvent(ctx context.Context, ev protocol.StreamEvent, source string) (protocol.StreamEvent, error) {
	return request(ctx, s, func(ch chan result[protocol.StreamEvent]) any {
		return streamCmd{ev: ev, source: source, reply: ch}
	})
}

// SubmitStreamEvent 即发即忘，供网络读协程使用
func (s *Session) SubmitStreamEvent(ev protocol.StreamEvent, source string) bool {
	return s.trySend(streamCmd{ev: ev, source: source})
}

func (s *Session) SubmitGameEvent(ev protocol.GameEvent) bool {
	return s.trySend(outcomeCmd{ev: ev})
}

// TriggerAutoEvent 由 AutoEventer 定时调用
func (s *Session) TriggerAutoEvent() bool {
	return s.trySend(autoEventCmd{})
}

func (s *Session) Reset(ctx context.Context) (protocol.Counters, error) {
	return request(ctx, s, func(ch chan result[protocol.Counters]) any { return resetCmd{reply: ch} })
}

func (s *Session) Status(ctx context.Context) (Status, error) {
	return request(ctx, s, func(ch chan result[Status]) any { return statusCmd{reply: ch} })
}

// Done 会话协程退出后关闭
func (s *Session) Done() <-chan struct{} { return s.done }
