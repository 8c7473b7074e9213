package engine

import "time"

// 画布与实体参数（dt 以 60Hz 帧为单位，1.0 = 一帧）
const (
	WorldWidth  = 800.0
	WorldHeight = 600.0

	BallRadius           = 8.0
	BallSpeed            = 5.0
	BallLaunchX          = 400.0
	BallLaunchY          = 550.0
	BallMinAngleDeg      = 65.0
	BallMaxAngleDeg      = 115.0
	BallEnemyBounceLimit = 2 // 可击中敌人次数
	BallWallBounceLimit  = 5 // 边界反弹次数
	BallSpawnInterval    = 2000 * time.Millisecond

	EnemyBaseSpeed     = 1.0
	EnemySpeedPerLevel = 0.1
	EnemySpawnY        = -30.0
	EnemySpawnMinX     = 25.0
	EnemySpawnSpanX    = 750.0
	EnemyHalfWidth     = 45.0 // 字形放大 3 倍后的近似包围盒
	EnemyHalfHeight    = 45.0
	BottomMargin       = 50.0 // 越过 WorldHeight-BottomMargin 即丢命

	// 销毁动画时长（帧）
	BallFadeFrames       = 20.0
	EnemySimpleFrames    = 13.0
	EnemySparkFrames     = 17.0
	EnemyLightningFrames = 32.0
)
