package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"streambreakout/protocol"
)

var ErrUnknownOutcome = errors.New("unknown game event type")

// Broadcaster 广播出口（即发即忘，实现方不得阻塞）
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

// Aggregator 权威计数与升级表的唯一写者；非并发安全，由 Session 串行调用
type Aggregator struct {
	state    protocol.Counters
	upgrades []Upgrade

	out     Broadcaster
	metrics *Metrics

	now   func() time.Time
	newID func() string
}

func NewAggregator(upgrades []UpgradeConfig, out Broadcaster, m *Metrics) *Aggregator {
	return &Aggregator{
		upgrades: NewUpgradeTable(upgrades),
		out:      out,
		metrics:  m,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Counters 当前计数的副本
func (a *Aggregator) Counters() protocol.Counters {
	return a.state
}

// Snapshot stats_update 负载
func (a *Aggregator) Snapshot() protocol.Stats {
	return protocol.Stats{Counters: a.state, Upgrades: UpgradeStatuses(a.upgrades)}
}

// Upgrades 升级表副本
func (a *Aggregator) Upgrades() []Upgrade {
	out := make([]Upgrade, len(a.upgrades))
	copy(out, a.upgrades)
	return out
}

// ApplyStreamEvent 校验 -> 计数 -> 检查升级 -> 广播事件与快照。
// 校验失败时计数保持不变。
func (a *Aggregator) ApplyStreamEvent(ev protocol.StreamEvent) (protocol.StreamEvent, error) {
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	if ev.ID == "" {
		ev.ID = a.newID()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = a.now().UnixMilli()
	}

	a.state.CountEvent(ev.Type)

	for _, i := range EvaluateUpgrades(a.state, a.upgrades) {
		u := &a.upgrades[i]
		u.Unlocked = true
		Log.Infow("upgrade unlocked", "upgrade", u.ID, "stat", u.Type, "value", a.state.Value(u.Type), "required", u.Required)
		a.metrics.UpgradesUnlocked.WithLabelValues(u.ID).Inc()
		a.out.Broadcast(protocol.MsgUpgradeUnlocked, protocol.UpgradeUnlocked{
			Type:        u.ID,
			Description: u.Description,
			Timestamp:   a.now().UnixMilli(),
		})
	}

	a.out.Broadcast(protocol.MsgStreamEvent, ev)
	a.broadcastStats()
	return ev, nil
}

// ApplyGameOutcome 客户端上报：击毁计数 / 丢命清空连击
func (a *Aggregator) ApplyGameOutcome(ge protocol.GameEvent) error {
	switch ge.Type {
	case protocol.OutcomeEnemyDestroyed:
		a.state.EnemiesDestroyed++
	case protocol.OutcomeLifeLost:
		a.state.BreakCombo()
	case protocol.OutcomeUpgradeUnlocked:
		// 仅记录，解锁由服务端自行判定
		Log.Debugw("client reported upgrade unlock", "data", string(ge.Data))
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, ge.Type)
	}
	a.metrics.Outcomes.WithLabelValues(ge.Type).Inc()
	a.broadcastStats()
	return nil
}

// Reset 除在线人数外全部清零，升级重新上锁
func (a *Aggregator) Reset() protocol.Counters {
	a.state = protocol.Counters{ConnectedClients: a.state.ConnectedClients}
	for i := range a.upgrades {
		a.upgrades[i].Unlocked = false
	}
	a.broadcastStats()
	return a.state
}

// ClientConnected / ClientDisconnected 调整在线人数并广播
func (a *Aggregator) ClientConnected() {
	a.state.ConnectedClients++
	a.metrics.ConnectedClients.Set(float64(a.state.ConnectedClients))
	a.broadcastStats()
}

func (a *Aggregator) ClientDisconnected() {
	if a.state.ConnectedClients > 0 {
		a.state.ConnectedClients--
	}
	a.metrics.ConnectedClients.Set(float64(a.state.ConnectedClients))
	a.broadcastStats()
}

func (a *Aggregator) broadcastStats() {
	a.out.Broadcast(protocol.MsgStatsUpdate, a.Snapshot())
}
