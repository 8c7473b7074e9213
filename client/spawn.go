package client

import (
	"sort"
	"time"

	"streambreakout/protocol"
)

type pendingSpawn struct {
	due  time.Time
	data protocol.UserData
}

// SpawnQueue 延迟生成的敌人，按到期时间出队；同一时刻按入队顺序
type SpawnQueue struct {
	items []pendingSpawn
}

func (q *SpawnQueue) Push(due time.Time, ud protocol.UserData) {
	i := sort.Search(len(q.items), func(i int) bool { return q.items[i].due.After(due) })
	q.items = append(q.items, pendingSpawn{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = pendingSpawn{due: due, data: ud}
}

// Due 取出所有 due <= now 的条目
func (q *SpawnQueue) Due(now time.Time) []protocol.UserData {
	n := 0
	for n < len(q.items) && !q.items[n].due.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]protocol.UserData, n)
	for i := 0; i < n; i++ {
		out[i] = q.items[i].data
	}
	q.items = append(q.items[:0], q.items[n:]...)
	return out
}

func (q *SpawnQueue) Len() int { return len(q.items) }

func (q *SpawnQueue) Clear() { q.items = q.items[:0] }
