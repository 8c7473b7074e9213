package server

import "streambreakout/protocol"

// Upgrade 社区升级：阈值来自配置，unlocked 只会 false -> true（重置除外）
type Upgrade struct {
	ID          string
	Required    int
	Type        protocol.StatType
	Description string
	Unlocked    bool
}

// NewUpgradeTable 按配置顺序建表，评估顺序与之相同
func NewUpgradeTable(cfgs []UpgradeConfig) []Upgrade {
	table := make([]Upgrade, 0, len(cfgs))
	for _, c := range cfgs {
		desc := c.Description
		if desc == "" {
			desc = "Upgrade desbloqueado"
		}
		table = append(table, Upgrade{
			ID:          c.ID,
			Required:    c.Required,
			Type:        protocol.StatType(c.Type),
			Description: desc,
		})
	}
	return table
}

// EvaluateUpgrades 纯函数：返回在当前计数下应当解锁、且尚未解锁的升级下标
func EvaluateUpgrades(c protocol.Counters, table []Upgrade) []int {
	var idx []int
	for i, u := range table {
		if u.Unlocked {
			continue
		}
		if c.Value(u.Type) >= u.Required {
			idx = append(idx, i)
		}
	}
	return idx
}

// UpgradeStatuses 供 stats_update 携带的升级进度
func UpgradeStatuses(table []Upgrade) []protocol.UpgradeStatus {
	out := make([]protocol.UpgradeStatus, 0, len(table))
	for _, u := range table {
		out = append(out, protocol.UpgradeStatus{
			ID:       u.ID,
			Type:     u.Type,
			Required: u.Required,
			Unlocked: u.Unlocked,
		})
	}
	return out
}
