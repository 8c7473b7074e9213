package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streambreakout/protocol"
)

type fakePeer struct {
	frames chan []byte

	mu     sync.Mutex
	closed bool
	panics bool
}

func newFakePeer() *fakePeer {
	return &fakePeer{frames: make(chan []byte, 64)}
}

func (f *fakePeer) Enqueue(b []byte) bool {
	if f.panics {
		panic("boom")
	}
	select {
	case f.frames <- b:
		return true
	default:
		return false
	}
}

func (f *fakePeer) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakePeer) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// next 跳过其它类型，返回第一条 msgType 消息
func (f *fakePeer) next(t *testing.T, msgType string) protocol.Envelope {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case b := <-f.frames:
			env, err := protocol.DecodeEnvelope(b)
			require.NoError(t, err)
			if env.Type == msgType {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}

func (f *fakePeer) drain() {
	for {
		select {
		case <-f.frames:
		default:
			return
		}
	}
}

func startSession(t *testing.T, cfg *Config) (*Session, *Metrics) {
	t.Helper()
	m := NewMetrics()
	s := NewSession(cfg, m)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s, m
}

func TestJoinBroadcastsStats(t *testing.T) {
	s, _ := startSession(t, DefaultConfig())
	ctx := context.Background()

	p1 := newFakePeer()
	id1, err := s.Join(ctx, p1)
	require.NoError(t, err)
	stats, err := protocol.DecodePayload[protocol.Stats](p1.next(t, protocol.MsgStatsUpdate))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ConnectedClients)
	assert.Len(t, stats.Upgrades, 4)

	p2 := newFakePeer()
	id2, err := s.Join(ctx, p2)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	for _, p := range []*fakePeer{p1, p2} {
		stats, err := protocol.DecodePayload[protocol.Stats](p.next(t, protocol.MsgStatsUpdate))
		require.NoError(t, err)
		assert.Equal(t, 2, stats.ConnectedClients)
	}
}

func TestInjectEventReachesEveryClient(t *testing.T) {
	s, m := startSession(t, DefaultConfig())
	ctx := context.Background()
	peers := []*fakePeer{newFakePeer(), newFakePeer()}
	for _, p := range peers {
		_, err := s.Join(ctx, p)
		require.NoError(t, err)
	}

	ev, err := s.InjectEvent(ctx, streamEvent(protocol.EventSubscription, "SubGod", 10), SourceAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)

	for _, p := range peers {
		got, err := protocol.DecodePayload[protocol.StreamEvent](p.next(t, protocol.MsgStreamEvent))
		require.NoError(t, err)
		assert.Equal(t, ev.ID, got.ID)
		assert.Equal(t, "SubGod", got.UserData.Name)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamEvents.WithLabelValues("subscription", SourceAdmin)))

	_, err = s.InjectEvent(ctx, streamEvent("raid", "x", 1), SourceAdmin)
	assert.ErrorIs(t, err, protocol.ErrUnknownEventType)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedEvents.WithLabelValues("invalid_event")))
}

func TestLeaveIsIdempotent(t *testing.T) {
	s, _ := startSession(t, DefaultConfig())
	ctx := context.Background()
	stay, gone := newFakePeer(), newFakePeer()
	_, err := s.Join(ctx, stay)
	require.NoError(t, err)
	id, err := s.Join(ctx, gone)
	require.NoError(t, err)

	s.Leave(id)
	s.Leave(id)
	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConnectedClients)
	assert.True(t, gone.isClosed())
	assert.False(t, stay.isClosed())
}

func TestSessionReset(t *testing.T) {
	s, _ := startSession(t, DefaultConfig())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Join(ctx, newFakePeer())
		require.NoError(t, err)
	}
	for i := 0; i < 4; i++ {
		_, err := s.InjectEvent(ctx, streamEvent(protocol.EventComment, "x", 1), SourceAdmin)
		require.NoError(t, err)
	}
	require.True(t, s.SubmitGameEvent(protocol.GameEvent{Type: protocol.OutcomeEnemyDestroyed}))

	got, err := s.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Counters{ConnectedClients: 3}, got)

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, got, st.GameState)
	assert.GreaterOrEqual(t, st.Uptime, 0.0)
}

func TestGameEventsAreSerialized(t *testing.T) {
	s, _ := startSession(t, DefaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, _ = s.InjectEvent(ctx, streamEvent(protocol.EventComment, "x", 1), SourceWS)
			}
		}()
	}
	wg.Wait()

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, st.GameState.TotalComments)
	assert.Equal(t, 100, st.GameState.CurrentCombo)
}

func TestPanicInCommandKeepsSessionAlive(t *testing.T) {
	s, m := startSession(t, DefaultConfig())
	ctx := context.Background()

	bad := newFakePeer()
	bad.panics = true
	_, err := s.Join(ctx, bad)
	assert.ErrorIs(t, err, ErrCommandPanicked)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandPanics))

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "running", st.Status)
}

func TestSubmitDropsWhenInboxFull(t *testing.T) {
	m := NewMetrics()
	s := NewSession(DefaultConfig(), m)
	// 不启动 Run：收件箱只进不出
	for i := 0; i < cap(s.inbox); i++ {
		require.True(t, s.SubmitGameEvent(protocol.GameEvent{Type: protocol.OutcomeLifeLost}))
	}
	assert.False(t, s.SubmitGameEvent(protocol.GameEvent{Type: protocol.OutcomeLifeLost}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboxDropped))
}

func TestClosedSessionRejectsCommands(t *testing.T) {
	s := NewSession(DefaultConfig(), NewMetrics())
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	p := newFakePeer()
	_, err := s.Join(context.Background(), p)
	require.NoError(t, err)

	cancel()
	<-s.Done()
	assert.True(t, p.isClosed())

	_, err = s.Join(context.Background(), newFakePeer())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.False(t, s.SubmitGameEvent(protocol.GameEvent{Type: protocol.OutcomeLifeLost}))
	s.Leave(1)
}

func TestAutoEventNeedsAudience(t *testing.T) {
	s := NewSession(DefaultConfig(), NewMetrics())
	s.handle(autoEventCmd{})
	assert.Equal(t, protocol.Counters{}, s.agg.Counters())

	p := newFakePeer()
	reply := make(chan result[ClientID], 1)
	s.handle(joinCmd{peer: p, reply: reply})
	require.NoError(t, (<-reply).err)
	p.drain()

	s.handle(autoEventCmd{})
	c := s.agg.Counters()
	assert.Equal(t, 1, c.TotalLikes+c.TotalComments+c.TotalSubscriptions)
	p.next(t, protocol.MsgStreamEvent)
}

func TestSlowPeerDoesNotBlockOthers(t *testing.T) {
	m := NewMetrics()
	s := NewSession(DefaultConfig(), m)
	slow := &fakePeer{frames: make(chan []byte)} // 无缓冲且无人读取
	fast := newFakePeer()
	for _, p := range []*fakePeer{slow, fast} {
		reply := make(chan result[ClientID], 1)
		s.handle(joinCmd{peer: p, reply: reply})
	}
	fast.drain()

	reply := make(chan result[protocol.StreamEvent], 1)
	s.handle(streamCmd{ev: streamEvent(protocol.EventLike, "x", 1), source: SourceWS, reply: reply})
	require.NoError(t, (<-reply).err)
	fast.next(t, protocol.MsgStreamEvent)
	assert.Greater(t, testutil.ToFloat64(m.SendDropped), 0.0)
}
