package server

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"streambreakout/protocol"
)

var ErrInvalidInterval = errors.New("autoEvent interval must satisfy 0 < min <= max")

// AutoEventer 以随机间隔向会话注入模拟事件；每次触发后重新抽取间隔
type AutoEventer struct {
	session *Session

	mu      sync.Mutex
	enabled bool
	min     time.Duration
	max     time.Duration

	rng *rand.Rand // 仅 Run 协程使用
}

func NewAutoEventer(s *Session, cfg AutoEventConfig) *AutoEventer {
	return &AutoEventer{
		session: s,
		enabled: cfg.Enabled,
		min:     cfg.MinInterval(),
		max:     cfg.MaxInterval(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Config 当前的间隔设置（热更新后的值）
func (a *AutoEventer) Config() AutoEventConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AutoEventConfig{
		Enabled:       a.enabled,
		MinIntervalMs: int(a.min / time.Millisecond),
		MaxIntervalMs: int(a.max / time.Millisecond),
	}
}

// Update 热更新；下一次抽取间隔时生效
func (a *AutoEventer) Update(cfg AutoEventConfig) error {
	if cfg.MinIntervalMs <= 0 || cfg.MaxIntervalMs < cfg.MinIntervalMs {
		return ErrInvalidInterval
	}
	a.mu.Lock()
	a.enabled = cfg.Enabled
	a.min = cfg.MinInterval()
	a.max = cfg.MaxInterval()
	a.mu.Unlock()
	Log.Infow("auto events updated", "enabled", cfg.Enabled, "minMs", cfg.MinIntervalMs, "maxMs", cfg.MaxIntervalMs)
	return nil
}

func (a *AutoEventer) next() (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sampleInterval(a.rng, a.min, a.max), a.enabled
}

// Run 阻塞直到 ctx 结束或会话退出
func (a *AutoEventer) Run(ctx context.Context) {
	for {
		d, enabled := a.next()
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-a.session.Done():
			timer.Stop()
			return
		case <-timer.C:
			if enabled {
				a.session.TriggerAutoEvent()
			}
		}
	}
}

// sampleInterval 在 [min, max] 内均匀取值
func sampleInterval(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}

// RandomStreamEvent 随机观众 + 随机事件类型；没有测试观众时返回 false
func RandomStreamEvent(rng *rand.Rand, users []TestUser, now time.Time) (protocol.StreamEvent, bool) {
	if len(users) == 0 {
		return protocol.StreamEvent{}, false
	}
	u := users[rng.Intn(len(users))]
	t := protocol.EventTypes[rng.Intn(len(protocol.EventTypes))]
	return protocol.StreamEvent{
		Type:      t,
		UserData:  protocol.UserData{Name: u.Name, Level: u.Level, EventType: t},
		Timestamp: now.UnixMilli(),
	}, true
}
