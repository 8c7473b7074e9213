package engine

import (
	"unicode"
	"unicode/utf8"

	"streambreakout/protocol"
)

// Enemy 由直播事件生成、向下移动的敌人
type Enemy struct {
	X, Y      float64
	Speed     float64
	Health    int
	MaxHealth int
	UserData  protocol.UserData

	serial uint64 // Simulation 分配的稳定标识，碰撞判重用
	state  lifeState
	anim   Animation
}

// NewEnemy 速度与血量只由 level 决定，eventType 仅影响外观
func NewEnemy(x, y float64, ud protocol.UserData) *Enemy {
	hp := ud.Level / 2
	if hp < 1 {
		hp = 1
	}
	return &Enemy{
		X:         x,
		Y:         y,
		Speed:     EnemyBaseSpeed + float64(ud.Level)*EnemySpeedPerLevel,
		Health:    hp,
		MaxHealth: hp,
		UserData:  ud,
	}
}

func (e *Enemy) Serial() uint64 { return e.serial }

func (e *Enemy) IsActive() bool   { return e.state == stateAlive }
func (e *Enemy) Destroying() bool { return e.state == stateDying }
func (e *Enemy) Removed() bool    { return e.state == stateGone }

func (e *Enemy) Animation() Animation { return e.anim }

// Update 向下移动
func (e *Enemy) Update(dt float64) {
	if e.state != stateAlive {
		return
	}
	e.Y += e.Speed * dt
}

// TakeDamage 扣 1 点血；仅在血量由 >0 变为 <=0 的那一次返回 true
func (e *Enemy) TakeDamage() bool {
	if e.state != stateAlive {
		return false
	}
	e.Health--
	if e.Health <= 0 {
		e.state = stateDying
		e.anim = newAnimation(e.DeathAnimation())
		return true
	}
	return false
}

// HasReachedBottom 越过底部红线
func (e *Enemy) HasReachedBottom(screenHeight float64) bool {
	return e.Y > screenHeight-BottomMargin
}

// Bounds 以 (X,Y) 为中心的包围盒
func (e *Enemy) Bounds() Rect {
	return Rect{X: e.X - EnemyHalfWidth, Y: e.Y - EnemyHalfHeight, W: 2 * EnemyHalfWidth, H: 2 * EnemyHalfHeight}
}

// Destroy 立即移除（触底或重置）
func (e *Enemy) Destroy() {
	e.state = stateGone
}

func (e *Enemy) advanceAnimation(dt float64) {
	if e.state != stateDying {
		return
	}
	if e.anim.Advance(dt) {
		e.state = stateGone
	}
}

// DeathAnimation 按 level 选择死亡动画
func (e *Enemy) DeathAnimation() AnimKind {
	switch {
	case e.UserData.Level < 5:
		return AnimSimple
	case e.UserData.Level < 15:
		return AnimSpark
	default:
		return AnimLightning
	}
}

// DisplayText 订阅显示名字中的指定字符，评论显示首字母，点赞显示 👍
func (e *Enemy) DisplayText() string {
	name := e.UserData.Name
	switch e.UserData.EventType {
	case protocol.EventSubscription:
		idx := 0
		if e.UserData.CharacterIndex != nil {
			idx = *e.UserData.CharacterIndex
		}
		return upperRuneAt(name, idx)
	case protocol.EventComment:
		return upperRuneAt(name, 0)
	case protocol.EventLike:
		return "👍"
	}
	return "?"
}

// Color 按事件类型的主色（RGB）
func (e *Enemy) Color() uint32 {
	switch e.UserData.EventType {
	case protocol.EventSubscription:
		return 0xFF6B6B
	case protocol.EventComment:
		return 0x4ECDC4
	case protocol.EventLike:
		return 0xFFE66D
	}
	return 0x95E1D3
}

func upperRuneAt(s string, idx int) string {
	if idx < 0 || idx >= utf8.RuneCountInString(s) {
		return ""
	}
	r := []rune(s)[idx]
	return string(unicode.ToUpper(r))
}
