package engine

import "math"

// lifeState 实体生命周期：存活 -> 播放销毁动画 -> 移除
type lifeState uint8

const (
	stateAlive lifeState = iota
	stateDying
	stateGone
)

// Ball 自动发射的小球，由 Simulation 独占
type Ball struct {
	X, Y   float64
	VX, VY float64

	EnemyBounces     int
	EnemyBounceLimit int
	WallBounces      int
	WallBounceLimit  int

	state lifeState
	anim  Animation
}

// NewBall 以给定角度（弧度，自水平方向起算）向上发射
func NewBall(x, y, angle float64) *Ball {
	return &Ball{
		X:                x,
		Y:                y,
		VX:               math.Cos(angle) * BallSpeed,
		VY:               -math.Sin(angle) * BallSpeed, // 负值向上
		EnemyBounceLimit: BallEnemyBounceLimit,
		WallBounceLimit:  BallWallBounceLimit,
	}
}

// IsActive 仍参与移动与碰撞
func (b *Ball) IsActive() bool { return b.state == stateAlive }

// Destroying 正在播放销毁动画
func (b *Ball) Destroying() bool { return b.state == stateDying }

// Removed 可从容器中移除
func (b *Ball) Removed() bool { return b.state == stateGone }

// Animation 当前销毁动画（未销毁时 Kind 为 AnimNone）
func (b *Ball) Animation() Animation { return b.anim }

// Update 推进位置并处理四周边界反弹
func (b *Ball) Update(dt, width, height float64) {
	if b.state != stateAlive {
		return
	}
	b.X += b.VX * dt
	b.Y += b.VY * dt

	if b.X <= BallRadius || b.X >= width-BallRadius {
		b.VX = -b.VX
		b.X = math.Max(BallRadius, math.Min(width-BallRadius, b.X))
		b.bounceOffWall()
	}
	if b.Y <= BallRadius {
		b.VY = -b.VY
		b.Y = BallRadius
		b.bounceOffWall()
	}
	if b.Y >= height-BallRadius {
		b.VY = -b.VY
		b.Y = height - BallRadius
		b.bounceOffWall()
	}
}

func (b *Ball) bounceOffWall() {
	b.WallBounces++
	if b.WallBounces >= b.WallBounceLimit {
		b.startDestroy()
	}
}

// BounceOffEnemy 撞到敌人后强制向上，并计入敌人反弹次数
func (b *Ball) BounceOffEnemy() {
	if b.state == stateGone {
		return
	}
	b.VY = -math.Abs(b.VY)
	b.EnemyBounces++
	if b.EnemyBounces >= b.EnemyBounceLimit {
		b.startDestroy()
	}
}

// AddBounce 社区升级：可多击中一个敌人，可叠加
func (b *Ball) AddBounce() {
	b.EnemyBounceLimit++
}

// Bounds 碰撞包围盒
func (b *Ball) Bounds() Rect {
	return Rect{X: b.X - BallRadius, Y: b.Y - BallRadius, W: 2 * BallRadius, H: 2 * BallRadius}
}

// Destroy 立即移除（重置时使用，不播放动画）
func (b *Ball) Destroy() {
	b.state = stateGone
}

func (b *Ball) startDestroy() {
	if b.state != stateAlive {
		return
	}
	b.state = stateDying
	b.anim = newAnimation(AnimFade)
}

// advanceAnimation 动画播放完毕后转为可移除
func (b *Ball) advanceAnimation(dt float64) {
	if b.state != stateDying {
		return
	}
	if b.anim.Advance(dt) {
		b.state = stateGone
	}
}
