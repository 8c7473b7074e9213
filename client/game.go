package client

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"streambreakout/engine"
	"streambreakout/protocol"
)

const (
	DefaultLives        = 10
	DefaultTickRate     = 60
	DefaultRestartDelay = 5 * time.Second
	ScorePerLevel       = 10

	inboxLen = 256
	maxDt    = 3 // 卡顿后单帧最多补 3 帧
)

type GameOptions struct {
	Lives        int
	TickRate     int           // 每秒帧数
	RestartDelay time.Duration // 游戏结束后自动重开；<0 表示不重开
	Seed         int64         // 0 表示时间种子
	Logger       *zap.SugaredLogger
}

func (o *GameOptions) withDefaults() {
	if o.Lives <= 0 {
		o.Lives = DefaultLives
	}
	if o.TickRate <= 0 {
		o.TickRate = DefaultTickRate
	}
	if o.RestartDelay == 0 {
		o.RestartDelay = DefaultRestartDelay
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
}

// Game 无界面的玩家端：生命、分数、模拟与消息路由，全部在 Run 协程内推进
type Game struct {
	opts   GameOptions
	log    *zap.SugaredLogger
	sim    *engine.Simulation
	router *Router
	inbox  chan []byte

	lives      int
	score      int
	gameOverAt time.Time
	lastTick   time.Time
	frame      time.Duration
}

func NewGame(out Sender, opts GameOptions) *Game {
	opts.withDefaults()
	g := &Game{
		opts:  opts,
		log:   opts.Logger,
		inbox: make(chan []byte, inboxLen),
		lives: opts.Lives,
		frame: time.Second / time.Duration(opts.TickRate),
	}
	g.sim = engine.NewSimulation(rand.New(rand.NewSource(opts.Seed)), engine.Hooks{
		OnLifeLost:       g.onLifeLost,
		OnEnemyDestroyed: g.onEnemyDestroyed,
		OnGameOver:       g.onGameOver,
	})
	g.router = NewRouter(g.sim, out, g.log)
	return g
}

func (g *Game) Lives() int                     { return g.lives }
func (g *Game) Score() int                     { return g.score }
func (g *Game) Router() *Router                { return g.router }
func (g *Game) Simulation() *engine.Simulation { return g.sim }

// Deliver 由网络读协程调用；收件箱满时丢弃
func (g *Game) Deliver(b []byte) bool {
	select {
	case g.inbox <- b:
		return true
	default:
		g.log.Warn("game inbox full, frame dropped")
		return false
	}
}

// Run 固定帧率推进，直到 ctx 结束
func (g *Game) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.frame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-g.inbox:
			g.handleFrame(b, time.Now())
		case now := <-ticker.C:
			g.Step(now)
		}
	}
}

func (g *Game) handleFrame(b []byte, now time.Time) {
	defer g.recoverPanic("frame")
	if err := g.router.HandleFrame(b, now); err != nil {
		g.log.Debugw("bad frame from server", "err", err)
	}
}

// Step 推进一帧；可在测试中直接调用
func (g *Game) Step(now time.Time) {
	defer g.recoverPanic("tick")

	if !g.sim.Running() {
		if g.opts.RestartDelay > 0 && !g.gameOverAt.IsZero() && now.Sub(g.gameOverAt) >= g.opts.RestartDelay {
			g.Restart()
		}
		g.lastTick = now
		return
	}

	dt := 1.0
	if !g.lastTick.IsZero() {
		dt = float64(now.Sub(g.lastTick)) / float64(g.frame)
		dt = min(max(dt, 0), maxDt)
	}
	g.lastTick = now

	g.router.Tick(now)
	g.sim.Tick(now, dt)
}

// Restart 重开一局：生命与分数复位，未生成的敌人丢弃；升级效果保留
func (g *Game) Restart() {
	g.log.Infow("game restarted", "lastScore", g.score)
	g.lives = g.opts.Lives
	g.score = 0
	g.gameOverAt = time.Time{}
	g.router.ClearPending()
	g.sim.Reset()
}

func (g *Game) onLifeLost(ud protocol.UserData) {
	g.lives = max(0, g.lives-1)
	g.log.Debugw("life lost", "enemy", ud.ID, "lives", g.lives)
	g.router.ReportLifeLost()
	g.sim.NotifyLives(g.lives)
}

func (g *Game) onEnemyDestroyed(ud protocol.UserData) {
	g.score += ud.Level * ScorePerLevel
	g.router.ReportEnemyDestroyed(ud)
}

func (g *Game) onGameOver() {
	g.gameOverAt = g.lastTick
	if g.gameOverAt.IsZero() {
		g.gameOverAt = time.Now()
	}
	g.log.Infow("game over", "score", g.score)
}

func (g *Game) recoverPanic(where string) {
	if r := recover(); r != nil {
		g.log.Errorw("recovered panic in game loop", "where", where, "panic", r, zap.Stack("stack"))
	}
}
