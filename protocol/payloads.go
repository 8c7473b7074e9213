package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventType 直播事件类型
type EventType string

const (
	EventLike         EventType = "like"
	EventComment      EventType = "comment"
	EventSubscription EventType = "subscription"
)

// EventTypes 固定顺序，随机事件按此抽样
var EventTypes = []EventType{EventLike, EventComment, EventSubscription}

// ParseEventType 大小写不敏感地解析事件类型
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return t, nil
}

func (t EventType) Valid() bool {
	switch t {
	case EventLike, EventComment, EventSubscription:
		return true
	}
	return false
}

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingUserName  = errors.New("user name is required")
	ErrNegativeLevel    = errors.New("user level must not be negative")
	ErrUnknownStatType  = errors.New("unknown stat type")
)

// UserData 触发事件的观众信息；客户端生成敌人时补充 ID / CharacterIndex
type UserData struct {
	Name           string    `json:"name"`
	Level          int       `json:"level"`
	EventType      EventType `json:"eventType"`
	ID             string    `json:"id,omitempty"`
	SpawnDelay     int       `json:"spawnDelay,omitempty"` // ms
	CharacterIndex *int      `json:"characterIndex,omitempty"`
}

// StreamEvent 一次直播互动，服务端盖上 ID 与时间戳后广播
type StreamEvent struct {
	ID        string    `json:"id,omitempty"`
	Type      EventType `json:"type"`
	UserData  UserData  `json:"userData"`
	Timestamp int64     `json:"timestamp"` // unix ms
}

// Validate 检查必填字段，并将 userData.eventType 与外层类型对齐
func (e *StreamEvent) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	if strings.TrimSpace(e.UserData.Name) == "" {
		return ErrMissingUserName
	}
	if e.UserData.Level < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLevel, e.UserData.Level)
	}
	e.UserData.EventType = e.Type
	return nil
}

// UpgradeUnlocked 升级解锁通知
type UpgradeUnlocked struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Timestamp   int64  `json:"timestamp"`
}

// GameEvent 客户端上报的玩法结果（即发即忘）
type GameEvent struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// UpgradeStatus 快照中的升级进度，客户端据此计算进度条
type UpgradeStatus struct {
	ID       string   `json:"id"`
	Type     StatType `json:"type"`
	Required int      `json:"required"`
	Unlocked bool     `json:"unlocked"`
}

// Stats stats_update 负载：计数器 + 升级表
type Stats struct {
	Counters
	Upgrades []UpgradeStatus `json:"upgrades,omitempty"`
}

// ErrorPayload 发给单个客户端的错误提示
type ErrorPayload struct {
	Error string `json:"error"`
}
