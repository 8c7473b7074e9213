package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"streambreakout/protocol"
)

func TestSpawnQueueOrder(t *testing.T) {
	var q SpawnQueue
	t0 := time.Unix(1700000000, 0)
	q.Push(t0.Add(400*time.Millisecond), protocol.UserData{ID: "a-2"})
	q.Push(t0.Add(200*time.Millisecond), protocol.UserData{ID: "a-1"})
	q.Push(t0.Add(200*time.Millisecond), protocol.UserData{ID: "b-1"})

	assert.Nil(t, q.Due(t0))
	got := q.Due(t0.Add(200 * time.Millisecond))
	assert.Equal(t, []protocol.UserData{{ID: "a-1"}, {ID: "b-1"}}, got)
	assert.Equal(t, 1, q.Len())

	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Due(t0.Add(time.Hour)))
}

func TestChatLogKeepsLastFifty(t *testing.T) {
	c := NewChatLog()
	for i := 0; i < 120; i++ {
		c.Add(ChatLine{Kind: ChatLike, Text: fmt.Sprint(i)})
	}
	lines := c.Lines()
	assert.Len(t, lines, ChatCapacity)
	assert.Equal(t, "70", lines[0].Text)
	assert.Equal(t, "119", lines[len(lines)-1].Text)
}

func TestChatIcons(t *testing.T) {
	assert.Equal(t, "⭐", ChatSubscription.Icon())
	assert.Equal(t, "💔", ChatLifeLost.Icon())
	assert.Equal(t, "📢", ChatError.Icon())
}
