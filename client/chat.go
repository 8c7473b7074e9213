package client

import "time"

// ChatCapacity 聊天栏只保留最近的条目
const ChatCapacity = 50

// ChatKind 聊天条目类别，决定图标
type ChatKind string

const (
	ChatLike           ChatKind = "like"
	ChatComment        ChatKind = "comment"
	ChatSubscription   ChatKind = "subscription"
	ChatEnemyDestroyed ChatKind = "enemy_destroyed"
	ChatUpgrade        ChatKind = "upgrade"
	ChatLifeLost       ChatKind = "life_lost"
	ChatError          ChatKind = "error"
)

func (k ChatKind) Icon() string {
	switch k {
	case ChatSubscription:
		return "⭐"
	case ChatComment:
		return "💬"
	case ChatLike:
		return "👍"
	case ChatEnemyDestroyed:
		return "💥"
	case ChatUpgrade:
		return "🚀"
	case ChatLifeLost:
		return "💔"
	}
	return "📢"
}

type ChatLine struct {
	Kind      ChatKind
	Text      string
	Timestamp time.Time
	UserName  string
	Level     int
}

// ChatLog 固定容量环形缓冲
type ChatLog struct {
	lines []ChatLine
	start int
	n     int
}

func NewChatLog() *ChatLog {
	return &ChatLog{lines: make([]ChatLine, ChatCapacity)}
}

func (c *ChatLog) Add(l ChatLine) {
	idx := (c.start + c.n) % len(c.lines)
	c.lines[idx] = l
	if c.n < len(c.lines) {
		c.n++
		return
	}
	c.start = (c.start + 1) % len(c.lines)
}

// Lines 从旧到新
func (c *ChatLog) Lines() []ChatLine {
	out := make([]ChatLine, c.n)
	for i := 0; i < c.n; i++ {
		out[i] = c.lines[(c.start+i)%len(c.lines)]
	}
	return out
}

func (c *ChatLog) Len() int { return c.n }
