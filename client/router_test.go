package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streambreakout/engine"
	"streambreakout/protocol"
)

type fakeSpawner struct {
	spawned []protocol.UserData
	bounces int
	cleared int
}

func (f *fakeSpawner) SpawnEnemy(ud protocol.UserData) *engine.Enemy {
	f.spawned = append(f.spawned, ud)
	return engine.NewEnemy(0, 0, ud)
}

func (f *fakeSpawner) AddBounceUpgrade() { f.bounces++ }
func (f *fakeSpawner) ClearUpgrades()    { f.cleared++ }

type fakeSender struct {
	offline bool
	sent    []protocol.Envelope
}

func (f *fakeSender) Send(msgType string, payload any) bool {
	if f.offline {
		return false
	}
	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		return false
	}
	env, err := protocol.DecodeEnvelope(b)
	if err != nil {
		return false
	}
	f.sent = append(f.sent, env)
	return true
}

func (f *fakeSender) gameEvents(t *testing.T) []protocol.GameEvent {
	t.Helper()
	var out []protocol.GameEvent
	for _, env := range f.sent {
		if env.Type != protocol.MsgGameEvent {
			continue
		}
		ge, err := protocol.DecodePayload[protocol.GameEvent](env)
		require.NoError(t, err)
		out = append(out, ge)
	}
	return out
}

func newTestRouter() (*Router, *fakeSpawner, *fakeSender) {
	sp, out := &fakeSpawner{}, &fakeSender{}
	return NewRouter(sp, out, nil), sp, out
}

func TestPlanSpawnsSubscriptionAl(t *testing.T) {
	ev := protocol.StreamEvent{
		ID:       "evt",
		Type:     protocol.EventSubscription,
		UserData: protocol.UserData{Name: "Al", Level: 5, ID: "u1"},
	}
	spawns := PlanSpawns(ev)
	require.Len(t, spawns, 2)
	for i, ud := range spawns {
		require.NotNil(t, ud.CharacterIndex)
		assert.Equal(t, i, *ud.CharacterIndex)
		assert.Equal(t, i*200, ud.SpawnDelay)
		assert.Equal(t, protocol.EventSubscription, ud.EventType)
	}
	assert.Equal(t, "u1-0", spawns[0].ID)
	assert.Equal(t, "u1-1", spawns[1].ID)

	texts := []string{
		engine.NewEnemy(0, 0, spawns[0]).DisplayText(),
		engine.NewEnemy(0, 0, spawns[1]).DisplayText(),
	}
	assert.Equal(t, []string{"A", "L"}, texts)
}

func TestPlanSpawnsCounts(t *testing.T) {
	tests := []struct {
		name  string
		typ   protocol.EventType
		user  string
		count int
	}{
		{"点赞只生成一个", protocol.EventLike, "StreamerFan123", 1},
		{"评论只生成一个", protocol.EventComment, "GamerPro", 1},
		{"订阅按字符数", protocol.EventSubscription, "Bob", 3},
		{"订阅最多五个", protocol.EventSubscription, "StreamerFan123", 5},
		{"多字节名字按字符计", protocol.EventSubscription, "José", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spawns := PlanSpawns(protocol.StreamEvent{Type: tt.typ, UserData: protocol.UserData{Name: tt.user}})
			assert.Len(t, spawns, tt.count)
			if tt.typ != protocol.EventSubscription {
				assert.Nil(t, spawns[0].CharacterIndex)
			}
		})
	}
}

func TestPlanSpawnsBaseID(t *testing.T) {
	ev := protocol.StreamEvent{ID: "evt-9", Type: protocol.EventLike, UserData: protocol.UserData{Name: "x"}}
	assert.Equal(t, "evt-9-0", PlanSpawns(ev)[0].ID)

	ev.ID = ""
	assert.Equal(t, "x-0", PlanSpawns(ev)[0].ID)
}

func TestStreamEventStaggersSpawns(t *testing.T) {
	r, sp, _ := newTestRouter()
	now := time.Unix(1700000000, 0)
	r.HandleStreamEvent(protocol.StreamEvent{
		ID: "e", Type: protocol.EventSubscription, UserData: protocol.UserData{Name: "Carol", Level: 2},
	}, now)

	require.Len(t, sp.spawned, 1, "first enemy spawns immediately")
	assert.Equal(t, 4, r.Pending())

	r.Tick(now.Add(199 * time.Millisecond))
	assert.Len(t, sp.spawned, 1)
	r.Tick(now.Add(400 * time.Millisecond))
	assert.Len(t, sp.spawned, 3)
	r.Tick(now.Add(time.Second))
	require.Len(t, sp.spawned, 5)
	for i, ud := range sp.spawned {
		assert.Equal(t, i, *ud.CharacterIndex)
	}
	assert.Equal(t, 1, r.Counters().TotalSubscriptions)
	assert.Equal(t, "¡Carol se suscribió! 5 enemigos generados (5 caracteres).", r.Chat()[0].Text)
}

func TestUpgradeUnlockIsOneWay(t *testing.T) {
	r, sp, out := newTestRouter()
	u := protocol.UpgradeUnlocked{Type: UpgradeBounce, Description: "+1 Rebote desbloqueado", Timestamp: 1}
	r.HandleUpgradeUnlocked(u)
	r.HandleUpgradeUnlocked(u)
	assert.Equal(t, 1, sp.bounces)
	assert.True(t, r.Unlocked(UpgradeBounce))

	evs := out.gameEvents(t)
	require.Len(t, evs, 1)
	assert.Equal(t, protocol.OutcomeUpgradeUnlocked, evs[0].Type)

	r.HandleUpgradeUnlocked(protocol.UpgradeUnlocked{Type: "multi_ball", Description: "x"})
	assert.Equal(t, 1, sp.bounces, "only the bounce upgrade changes the simulation")
}

func stats(likes int, bounceUnlocked bool) protocol.Stats {
	return protocol.Stats{
		Counters: protocol.Counters{TotalLikes: likes, ConnectedClients: 2},
		Upgrades: []protocol.UpgradeStatus{
			{ID: UpgradeBounce, Type: protocol.StatLikes, Required: 10, Unlocked: bounceUnlocked},
			{ID: "multi_ball", Type: protocol.StatComments, Required: 20},
		},
	}
}

func TestStatsSnapshotDrivesProgress(t *testing.T) {
	r, sp, _ := newTestRouter()
	r.HandleStats(stats(7, false))
	ups := r.Upgrades()
	require.Len(t, ups, 2)
	assert.Equal(t, 7, ups[0].Progress)
	assert.Equal(t, 10, ups[0].Required)
	assert.Equal(t, 2, r.Counters().ConnectedClients)
	assert.Zero(t, sp.bounces)

	// 错过 upgrade_unlocked 的客户端从快照补上
	r.HandleStats(stats(12, true))
	assert.True(t, r.Unlocked(UpgradeBounce))
	assert.Equal(t, 1, sp.bounces)
	r.HandleStats(stats(13, true))
	assert.Equal(t, 1, sp.bounces)
}

func TestServerResetRelocks(t *testing.T) {
	r, sp, _ := newTestRouter()
	r.HandleUpgradeUnlocked(protocol.UpgradeUnlocked{Type: UpgradeBounce, Description: "x"})
	r.HandleStats(stats(0, false))
	assert.False(t, r.Unlocked(UpgradeBounce))
	assert.Equal(t, 1, sp.cleared)
	assert.Equal(t, 0, r.Upgrades()[0].Progress)

	r.HandleUpgradeUnlocked(protocol.UpgradeUnlocked{Type: UpgradeBounce, Description: "x"})
	assert.Equal(t, 2, sp.bounces, "relocked upgrades apply again")
}

func TestHandleFrame(t *testing.T) {
	r, sp, _ := newTestRouter()
	now := time.Now()
	b, err := protocol.Encode(protocol.MsgStreamEvent, protocol.StreamEvent{
		ID: "abc", Type: protocol.EventComment, UserData: protocol.UserData{Name: "GamerPro", Level: 3},
	})
	require.NoError(t, err)
	require.NoError(t, r.HandleFrame(b, now))
	require.Len(t, sp.spawned, 1)
	assert.Equal(t, "abc-0", sp.spawned[0].ID)

	b, err = protocol.Encode(protocol.MsgError, protocol.ErrorPayload{Error: "user name is required"})
	require.NoError(t, err)
	require.NoError(t, r.HandleFrame(b, now))
	assert.Equal(t, ChatError, r.Chat()[len(r.Chat())-1].Kind)

	assert.Error(t, r.HandleFrame([]byte("{"), now))
	b, _ = protocol.Encode("test_event", map[string]int{"a": 1})
	assert.NoError(t, r.HandleFrame(b, now))
}

func TestReportsAndSimulate(t *testing.T) {
	r, _, out := newTestRouter()
	r.ReportEnemyDestroyed(protocol.UserData{Name: "SubGod", Level: 10, ID: "s-0"})
	r.ReportLifeLost()

	evs := out.gameEvents(t)
	require.Len(t, evs, 2)
	assert.Equal(t, protocol.OutcomeEnemyDestroyed, evs[0].Type)
	assert.JSONEq(t, `{"name":"SubGod","level":10,"eventType":"","id":"s-0"}`, string(evs[0].Data))
	assert.Equal(t, protocol.OutcomeLifeLost, evs[1].Type)

	chat := r.Chat()
	require.Len(t, chat, 2)
	assert.Equal(t, "¡Enemigo SubGod destruido!", chat[0].Text)
	assert.Equal(t, ChatLifeLost, chat[1].Kind)

	require.NoError(t, r.Simulate(protocol.EventLike, "Tester", 2))
	last := out.sent[len(out.sent)-1]
	assert.Equal(t, protocol.MsgSimulateEvent, last.Type)

	assert.ErrorIs(t, r.Simulate(protocol.EventLike, "", 2), protocol.ErrMissingUserName)
	out.offline = true
	assert.ErrorIs(t, r.Simulate(protocol.EventLike, "Tester", 2), ErrNotConnected)
	r.ReportLifeLost()
}
