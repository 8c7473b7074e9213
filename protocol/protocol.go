package protocol

import "encoding/json"

// 消息类型（与浏览器端 socket 事件名保持一致）
const (
	// server -> client
	MsgStreamEvent     = "stream_event"
	MsgUpgradeUnlocked = "upgrade_unlocked"
	MsgStatsUpdate     = "stats_update"
	MsgError           = "error"

	// client -> server
	MsgGameEvent     = "game_event"
	MsgSimulateEvent = "simulate_event"
)

// game_event 的子类型
const (
	OutcomeEnemyDestroyed  = "enemy_destroyed"
	OutcomeLifeLost        = "life_lost"
	OutcomeUpgradeUnlocked = "upgrade_unlocked"
)

// Envelope 所有 WebSocket 文本帧的外层结构
// 示例：{"type":"stats_update","data":{...}}
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}
