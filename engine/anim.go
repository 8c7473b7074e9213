package engine

// AnimKind 销毁动画种类
type AnimKind uint8

const (
	AnimNone AnimKind = iota
	AnimFade          // 小球：淡出放大
	AnimSimple        // 敌人 level<5：放大淡出
	AnimSpark         // 敌人 level<15：旋转放大淡出
	AnimLightning     // 敌人 level>=15：闪烁
)

func (k AnimKind) String() string {
	switch k {
	case AnimFade:
		return "fade"
	case AnimSimple:
		return "simple"
	case AnimSpark:
		return "spark"
	case AnimLightning:
		return "lightning"
	}
	return "none"
}

// Animation 时间累加式状态机，由 Simulation 每 Tick 推进一次
type Animation struct {
	Kind     AnimKind
	Elapsed  float64
	Duration float64
}

func newAnimation(kind AnimKind) Animation {
	var d float64
	switch kind {
	case AnimFade:
		d = BallFadeFrames
	case AnimSimple:
		d = EnemySimpleFrames
	case AnimSpark:
		d = EnemySparkFrames
	case AnimLightning:
		d = EnemyLightningFrames
	}
	return Animation{Kind: kind, Duration: d}
}

// Advance 推进 dt 帧，返回是否播放完毕
func (a *Animation) Advance(dt float64) bool {
	if dt > 0 {
		a.Elapsed += dt
	}
	return a.Done()
}

func (a Animation) Done() bool {
	return a.Elapsed >= a.Duration
}

// Progress 0..1，供渲染层插值
func (a Animation) Progress() float64 {
	if a.Duration <= 0 {
		return 1
	}
	p := a.Elapsed / a.Duration
	if p > 1 {
		return 1
	}
	return p
}
