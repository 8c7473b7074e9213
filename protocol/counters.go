package protocol

import "fmt"

// StatType 升级依赖的统计来源
type StatType string

const (
	StatLikes         StatType = "likes"
	StatComments      StatType = "comments"
	StatSubscriptions StatType = "subscriptions"
	StatCombo         StatType = "combo"
)

func (s StatType) Valid() bool {
	switch s {
	case StatLikes, StatComments, StatSubscriptions, StatCombo:
		return true
	}
	return false
}

func ParseStatType(s string) (StatType, error) {
	st := StatType(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatType, s)
	}
	return st, nil
}

// Counters 全局聚合计数（服务端权威，客户端镜像）
type Counters struct {
	TotalLikes         int `json:"totalLikes"`
	TotalComments      int `json:"totalComments"`
	TotalSubscriptions int `json:"totalSubscriptions"`
	CurrentCombo       int `json:"currentCombo"`
	EnemiesDestroyed   int `json:"enemiesDestroyed"`
	ConnectedClients   int `json:"connectedClients"`
}

// CountEvent 按事件类型累加：评论与订阅推进连击，点赞不推进
func (c *Counters) CountEvent(t EventType) {
	switch t {
	case EventLike:
		c.TotalLikes++
	case EventComment:
		c.TotalComments++
		c.CurrentCombo++
	case EventSubscription:
		c.TotalSubscriptions++
		c.CurrentCombo++
	}
}

// BreakCombo 丢命时连击清零
func (c *Counters) BreakCombo() {
	c.CurrentCombo = 0
}

// Value 读取某个统计来源的当前值
func (c Counters) Value(s StatType) int {
	switch s {
	case StatLikes:
		return c.TotalLikes
	case StatComments:
		return c.TotalComments
	case StatSubscriptions:
		return c.TotalSubscriptions
	case StatCombo:
		return c.CurrentCombo
	}
	return 0
}
