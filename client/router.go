package client

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"streambreakout/engine"
	"streambreakout/protocol"
)

const (
	// MaxSubscriptionSpawns 订阅按名字字符数生成敌人的上限
	MaxSubscriptionSpawns = 5
	// SpawnStagger 同一事件内相邻敌人的生成间隔
	SpawnStagger = 200 * time.Millisecond

	UpgradeBounce = "bounce_upgrade"
)

// Spawner 路由驱动的玩法侧接口，由 engine.Simulation 实现
type Spawner interface {
	SpawnEnemy(ud protocol.UserData) *engine.Enemy
	AddBounceUpgrade()
	ClearUpgrades()
}

// Sender 出站通道；不阻塞，断线时返回 false
type Sender interface {
	Send(msgType string, payload any) bool
}

// UpgradeView 本地镜像的升级进度
type UpgradeView struct {
	protocol.UpgradeStatus
	Progress int
}

// PlanSpawns 一个直播事件展开为若干敌人：订阅按名字字符数（最多 5 个），其余 1 个
func PlanSpawns(ev protocol.StreamEvent) []protocol.UserData {
	count := 1
	if ev.Type == protocol.EventSubscription {
		count = min(utf8.RuneCountInString(ev.UserData.Name), MaxSubscriptionSpawns)
		count = max(count, 1)
	}
	base := ev.UserData.ID
	if base == "" {
		base = ev.ID
	}
	if base == "" {
		base = ev.UserData.Name
	}

	out := make([]protocol.UserData, count)
	for i := 0; i < count; i++ {
		ud := ev.UserData
		ud.EventType = ev.Type
		ud.ID = fmt.Sprintf("%s-%d", base, i)
		ud.SpawnDelay = i * int(SpawnStagger/time.Millisecond)
		if ev.Type == protocol.EventSubscription {
			idx := i
			ud.CharacterIndex = &idx
		}
		out[i] = ud
	}
	return out
}

// Router 把服务端消息翻译成玩法动作与 UI 状态；只在游戏循环协程内使用
type Router struct {
	sim   Spawner
	out   Sender
	queue SpawnQueue
	chat  *ChatLog
	log   *zap.SugaredLogger

	counters protocol.Counters
	upgrades []UpgradeView
	unlocked map[string]bool
}

func NewRouter(sim Spawner, out Sender, log *zap.SugaredLogger) *Router {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Router{
		sim:      sim,
		out:      out,
		chat:     NewChatLog(),
		log:      log,
		unlocked: make(map[string]bool),
	}
}

func (r *Router) Counters() protocol.Counters { return r.counters }
func (r *Router) Chat() []ChatLine             { return r.chat.Lines() }
func (r *Router) Pending() int                 { return r.queue.Len() }

func (r *Router) Upgrades() []UpgradeView {
	out := make([]UpgradeView, len(r.upgrades))
	copy(out, r.upgrades)
	return out
}

func (r *Router) Unlocked(id string) bool { return r.unlocked[id] }

// HandleFrame 解码并分发一帧；未知类型忽略
func (r *Router) HandleFrame(b []byte, now time.Time) error {
	env, err := protocol.DecodeEnvelope(b)
	if err != nil {
		return err
	}
	switch env.Type {
	case protocol.MsgStreamEvent:
		ev, err := protocol.DecodePayload[protocol.StreamEvent](env)
		if err != nil {
			return err
		}
		r.HandleStreamEvent(ev, now)
	case protocol.MsgUpgradeUnlocked:
		u, err := protocol.DecodePayload[protocol.UpgradeUnlocked](env)
		if err != nil {
			return err
		}
		r.HandleUpgradeUnlocked(u)
	case protocol.MsgStatsUpdate:
		st, err := protocol.DecodePayload[protocol.Stats](env)
		if err != nil {
			return err
		}
		r.HandleStats(st)
	case protocol.MsgError:
		e, err := protocol.DecodePayload[protocol.ErrorPayload](env)
		if err != nil {
			return err
		}
		r.log.Warnw("server rejected message", "err", e.Error)
		r.chat.Add(ChatLine{Kind: ChatError, Text: e.Error, Timestamp: now})
	default:
		r.log.Debugw("ignored message", "type", env.Type)
	}
	return nil
}

// HandleStreamEvent 第一个敌人立即生成，其余进入延迟队列
func (r *Router) HandleStreamEvent(ev protocol.StreamEvent, now time.Time) {
	r.counters.CountEvent(ev.Type)

	spawns := PlanSpawns(ev)
	ts := now
	if ev.Timestamp > 0 {
		ts = time.UnixMilli(ev.Timestamp)
	}
	r.chat.Add(ChatLine{
		Kind:      ChatKind(ev.Type),
		Text:      eventMessage(ev, len(spawns)),
		Timestamp: ts,
		UserName:  ev.UserData.Name,
		Level:     ev.UserData.Level,
	})

	r.sim.SpawnEnemy(spawns[0])
	for i := 1; i < len(spawns); i++ {
		r.queue.Push(now.Add(time.Duration(i)*SpawnStagger), spawns[i])
	}
}

// Tick 生成到期的延迟敌人，由游戏循环每帧调用
func (r *Router) Tick(now time.Time) {
	for _, ud := range r.queue.Due(now) {
		r.sim.SpawnEnemy(ud)
	}
}

// HandleUpgradeUnlocked 本地单向解锁，重复通知忽略
func (r *Router) HandleUpgradeUnlocked(u protocol.UpgradeUnlocked) {
	if r.unlocked[u.Type] {
		return
	}
	ts := time.Now()
	if u.Timestamp > 0 {
		ts = time.UnixMilli(u.Timestamp)
	}
	r.chat.Add(ChatLine{Kind: ChatUpgrade, Text: fmt.Sprintf("¡%s!", u.Description), Timestamp: ts})
	r.unlock(u.Type)
}

// HandleStats 快照覆盖本地镜像；服务端重置后重新上锁并撤销效果，
// 错过 upgrade_unlocked 的客户端在这里补上解锁
func (r *Router) HandleStats(st protocol.Stats) {
	r.counters = st.Counters

	relocked := false
	views := make([]UpgradeView, 0, len(st.Upgrades))
	for _, u := range st.Upgrades {
		views = append(views, UpgradeView{UpgradeStatus: u, Progress: st.Value(u.Type)})
		switch {
		case u.Unlocked && !r.unlocked[u.ID]:
			r.unlock(u.ID)
		case !u.Unlocked && r.unlocked[u.ID]:
			delete(r.unlocked, u.ID)
			relocked = true
		}
	}
	r.upgrades = views
	if relocked {
		r.log.Infow("upgrades relocked by server reset")
		r.sim.ClearUpgrades()
	}
}

func (r *Router) unlock(id string) {
	r.unlocked[id] = true
	for i := range r.upgrades {
		if r.upgrades[i].ID == id {
			r.upgrades[i].Unlocked = true
		}
	}
	switch id {
	case UpgradeBounce:
		r.sim.AddBounceUpgrade()
	default:
		r.log.Debugw("upgrade has no local effect", "upgrade", id)
	}
	data, _ := json.Marshal(map[string]string{"upgradeId": id})
	r.report(protocol.OutcomeUpgradeUnlocked, data)
}

// ReportEnemyDestroyed 即发即忘
func (r *Router) ReportEnemyDestroyed(ud protocol.UserData) {
	data, err := json.Marshal(ud)
	if err != nil {
		r.log.Errorw("encode enemy data failed", "err", err)
		return
	}
	r.report(protocol.OutcomeEnemyDestroyed, data)
	r.chat.Add(ChatLine{
		Kind:      ChatEnemyDestroyed,
		Text:      fmt.Sprintf("¡Enemigo %s destruido!", ud.Name),
		Timestamp: time.Now(),
		UserName:  ud.Name,
		Level:     ud.Level,
	})
}

func (r *Router) ReportLifeLost() {
	r.report(protocol.OutcomeLifeLost, nil)
	r.chat.Add(ChatLine{Kind: ChatLifeLost, Text: "💔 ¡Vida perdida!", Timestamp: time.Now()})
}

// Simulate 请求服务端注入一个测试事件，本地先校验
func (r *Router) Simulate(t protocol.EventType, name string, level int) error {
	ev := protocol.StreamEvent{
		Type:      t,
		UserData:  protocol.UserData{Name: name, Level: level},
		Timestamp: time.Now().UnixMilli(),
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if !r.out.Send(protocol.MsgSimulateEvent, ev) {
		return ErrNotConnected
	}
	return nil
}

// ClearPending 重开一局时丢弃尚未生成的敌人
func (r *Router) ClearPending() { r.queue.Clear() }

func (r *Router) report(outcome string, data json.RawMessage) {
	ge := protocol.GameEvent{Type: outcome, Data: data, Timestamp: time.Now().UnixMilli()}
	if !r.out.Send(protocol.MsgGameEvent, ge) {
		r.log.Debugw("game event not sent, offline", "type", outcome)
	}
}

func eventMessage(ev protocol.StreamEvent, count int) string {
	name := ev.UserData.Name
	switch ev.Type {
	case protocol.EventSubscription:
		if count > 1 {
			return fmt.Sprintf("¡%s se suscribió! %d enemigos generados (%d caracteres).", name, count, utf8.RuneCountInString(name))
		}
		return fmt.Sprintf("¡%s se suscribió! Enemigo generado.", name)
	case protocol.EventComment:
		return fmt.Sprintf("%s comentó. Enemigo rápido generado.", name)
	case protocol.EventLike:
		return "¡Nuevo like! Enemigo anónimo generado."
	}
	return "Evento desconocido"
}
