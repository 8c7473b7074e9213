package engine

// Rect 轴对齐包围盒
type Rect struct {
	X, Y, W, H float64
}

// Intersects 边缘相切也算相交
func (r Rect) Intersects(o Rect) bool {
	return !(r.X+r.W < o.X ||
		o.X+o.W < r.X ||
		r.Y+r.H < o.Y ||
		o.Y+o.H < r.Y)
}

// ResolveCollisions 一次碰撞结算：外层小球、内层敌人。
// 每次调用新建按 serial 记录的已销毁集合，同一敌人只通知一次。
// 小球只在外层判断是否存活，本轮中途触发销毁仍会继续处理剩余敌人。
func ResolveCollisions(balls []*Ball, enemies []*Enemy, onDestroyed func(*Enemy)) int {
	destroyed := make(map[uint64]struct{})
	for _, b := range balls {
		if !b.IsActive() {
			continue
		}
		bb := b.Bounds()
		for _, e := range enemies {
			if _, done := destroyed[e.serial]; done {
				continue
			}
			if !e.IsActive() {
				continue
			}
			if !bb.Intersects(e.Bounds()) {
				continue
			}
			b.BounceOffEnemy()
			if e.TakeDamage() {
				destroyed[e.serial] = struct{}{}
				if onDestroyed != nil {
					onDestroyed(e)
				}
			}
		}
	}
	return len(destroyed)
}
