package engine

import (
	"math"
	"math/rand"
	"time"

	"streambreakout/protocol"
)

// Hooks 模拟向上层抛出的结果，均在 Tick 结束时同步回调
type Hooks struct {
	OnBallSpawned    func(*Ball)
	OnLifeLost       func(protocol.UserData)
	OnEnemyDestroyed func(protocol.UserData)
	OnGameOver       func()
}

// TickResult 单帧产生的结果，便于测试与上层统计
type TickResult struct {
	BallSpawned bool
	LifeLost    []protocol.UserData
	Destroyed   []protocol.UserData
}

type fader interface {
	advanceAnimation(dt float64)
	Removed() bool
}

// Simulation 客户端每帧推进的玩法循环，单线程使用
type Simulation struct {
	Width, Height float64

	balls   []*Ball
	enemies []*Enemy
	fading  []fader // 已退出玩法、仅剩销毁动画的实体

	lastBallTime time.Time
	running      bool
	nextSerial   uint64
	bonusBounces int

	rng   *rand.Rand
	hooks Hooks
}

// NewSimulation rng 为 nil 时使用时间种子
func NewSimulation(rng *rand.Rand, hooks Hooks) *Simulation {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulation{
		Width:   WorldWidth,
		Height:  WorldHeight,
		running: true,
		rng:     rng,
		hooks:   hooks,
	}
}

func (s *Simulation) Running() bool { return s.running }
func (s *Simulation) Balls() []*Ball { return s.balls }
func (s *Simulation) Enemies() []*Enemy { return s.enemies }
func (s *Simulation) Fading() int { return len(s.fading) }
func (s *Simulation) BonusBounces() int { return s.bonusBounces }

// Tick 推进一帧：发球 -> 小球 -> 敌人与触底 -> 碰撞 -> 清理。
// 触底检查先于碰撞，同帧既触底又被击中的敌人按丢命处理。
func (s *Simulation) Tick(now time.Time, dt float64) TickResult {
	var res TickResult
	if !s.running {
		return res
	}

	s.advanceFading(dt)

	if s.lastBallTime.IsZero() || now.Sub(s.lastBallTime) > BallSpawnInterval {
		s.spawnBall()
		s.lastBallTime = now
		res.BallSpawned = true
	}

	balls := s.balls[:0]
	for _, b := range s.balls {
		b.Update(dt, s.Width, s.Height)
		if b.IsActive() {
			balls = append(balls, b)
		} else if b.Destroying() {
			s.fading = append(s.fading, b)
		}
	}
	clearTail(s.balls, len(balls))
	s.balls = balls

	enemies := s.enemies[:0]
	for _, e := range s.enemies {
		if !e.IsActive() {
			continue
		}
		e.Update(dt)
		if e.HasReachedBottom(s.Height) {
			e.Destroy()
			res.LifeLost = append(res.LifeLost, e.UserData)
			continue
		}
		enemies = append(enemies, e)
	}
	clearTail(s.enemies, len(enemies))
	s.enemies = enemies

	ResolveCollisions(s.balls, s.enemies, func(e *Enemy) {
		res.Destroyed = append(res.Destroyed, e.UserData)
	})

	enemies = s.enemies[:0]
	for _, e := range s.enemies {
		if e.IsActive() {
			enemies = append(enemies, e)
		} else if e.Destroying() {
			s.fading = append(s.fading, e)
		}
	}
	clearTail(s.enemies, len(enemies))
	s.enemies = enemies

	s.dispatch(res)
	return res
}

func (s *Simulation) dispatch(res TickResult) {
	for _, ud := range res.LifeLost {
		if s.hooks.OnLifeLost != nil {
			s.hooks.OnLifeLost(ud)
		}
	}
	for _, ud := range res.Destroyed {
		if s.hooks.OnEnemyDestroyed != nil {
			s.hooks.OnEnemyDestroyed(ud)
		}
	}
}

func (s *Simulation) advanceFading(dt float64) {
	kept := s.fading[:0]
	for _, f := range s.fading {
		f.advanceAnimation(dt)
		if !f.Removed() {
			kept = append(kept, f)
		}
	}
	for i := len(kept); i < len(s.fading); i++ {
		s.fading[i] = nil
	}
	s.fading = kept
}

func (s *Simulation) spawnBall() {
	deg := BallMinAngleDeg + s.rng.Float64()*(BallMaxAngleDeg-BallMinAngleDeg)
	b := NewBall(BallLaunchX, BallLaunchY, deg*math.Pi/180)
	b.EnemyBounceLimit += s.bonusBounces
	s.balls = append(s.balls, b)
	if s.hooks.OnBallSpawned != nil {
		s.hooks.OnBallSpawned(b)
	}
}

// SpawnEnemy 在顶部随机横坐标生成敌人；停止状态下忽略
func (s *Simulation) SpawnEnemy(ud protocol.UserData) *Enemy {
	if !s.running {
		return nil
	}
	x := EnemySpawnMinX + s.rng.Float64()*EnemySpawnSpanX
	e := NewEnemy(x, EnemySpawnY, ud)
	s.nextSerial++
	e.serial = s.nextSerial
	s.enemies = append(s.enemies, e)
	return e
}

// AddBounceUpgrade 当前与之后发射的小球都多一次敌人反弹
func (s *Simulation) AddBounceUpgrade() {
	s.bonusBounces++
	for _, b := range s.balls {
		b.AddBounce()
	}
}

// ClearUpgrades 服务端重置后撤销累积的升级效果（已在场的小球保持不变）
func (s *Simulation) ClearUpgrades() {
	s.bonusBounces = 0
}

// NotifyLives 生命数由调用方维护；归零时停止、清场并只触发一次游戏结束
func (s *Simulation) NotifyLives(lives int) {
	if lives > 0 || !s.running {
		return
	}
	s.running = false
	s.clear()
	if s.hooks.OnGameOver != nil {
		s.hooks.OnGameOver()
	}
}

// Reset 清场、重置发球计时并恢复运行，与生命数无关
func (s *Simulation) Reset() {
	s.clear()
	s.lastBallTime = time.Time{}
	s.running = true
}

func (s *Simulation) clear() {
	for _, b := range s.balls {
		b.Destroy()
	}
	for _, e := range s.enemies {
		e.Destroy()
	}
	s.balls = nil
	s.enemies = nil
	s.fading = nil
}

func clearTail[T any](xs []*T, from int) {
	for i := from; i < len(xs); i++ {
		xs[i] = nil
	}
}
