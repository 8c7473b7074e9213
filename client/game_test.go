package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streambreakout/protocol"
)

func newTestGame(t *testing.T, opts GameOptions) (*Game, *fakeSender) {
	t.Helper()
	out := &fakeSender{}
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	return NewGame(out, opts), out
}

func TestGameLifeLostAndAutoRestart(t *testing.T) {
	g, out := newTestGame(t, GameOptions{Lives: 1, RestartDelay: time.Second})
	now := time.Unix(1700000000, 0)

	g.Router().HandleStreamEvent(protocol.StreamEvent{
		ID: "e1", Type: protocol.EventLike, UserData: protocol.UserData{Name: "fan", Level: 1},
	}, now)
	require.Len(t, g.Simulation().Enemies(), 1)
	g.Simulation().Enemies()[0].Y = 560

	g.Step(now)
	assert.Equal(t, 0, g.Lives())
	assert.False(t, g.Simulation().Running())
	evs := out.gameEvents(t)
	require.Len(t, evs, 1)
	assert.Equal(t, protocol.OutcomeLifeLost, evs[0].Type)

	g.Step(now.Add(500 * time.Millisecond))
	assert.False(t, g.Simulation().Running())

	g.Step(now.Add(time.Second))
	assert.True(t, g.Simulation().Running())
	assert.Equal(t, 1, g.Lives())
	assert.Equal(t, 0, g.Score())
}

func TestGameNoAutoRestart(t *testing.T) {
	g, _ := newTestGame(t, GameOptions{Lives: 1, RestartDelay: -1})
	now := time.Unix(1700000000, 0)
	g.Router().HandleStreamEvent(protocol.StreamEvent{Type: protocol.EventLike, UserData: protocol.UserData{Name: "fan"}}, now)
	g.Simulation().Enemies()[0].Y = 560
	g.Step(now)
	g.Step(now.Add(time.Hour))
	assert.False(t, g.Simulation().Running())

	g.Restart()
	assert.True(t, g.Simulation().Running())
	assert.Equal(t, 1, g.Lives())
}

func TestGameScoresDestroyedEnemy(t *testing.T) {
	g, out := newTestGame(t, GameOptions{})
	now := time.Unix(1700000000, 0)
	g.Step(now)
	require.Len(t, g.Simulation().Balls(), 1)
	b := g.Simulation().Balls()[0]
	b.X, b.Y = 300, 300

	g.Router().HandleStreamEvent(protocol.StreamEvent{
		ID: "c", Type: protocol.EventComment, UserData: protocol.UserData{Name: "GamerPro", Level: 3},
	}, now)
	e := g.Simulation().Enemies()[0]
	e.X, e.Y = 300, 300

	g.Step(now.Add(16 * time.Millisecond))
	assert.Equal(t, 30, g.Score())
	assert.Equal(t, DefaultLives, g.Lives())
	evs := out.gameEvents(t)
	require.Len(t, evs, 1)
	assert.Equal(t, protocol.OutcomeEnemyDestroyed, evs[0].Type)
}

func TestGameRestartDropsPendingSpawns(t *testing.T) {
	g, _ := newTestGame(t, GameOptions{})
	now := time.Unix(1700000000, 0)
	g.Router().HandleStreamEvent(protocol.StreamEvent{
		Type: protocol.EventSubscription, UserData: protocol.UserData{Name: "Dave", Level: 1},
	}, now)
	assert.Equal(t, 3, g.Router().Pending())
	g.Restart()
	assert.Equal(t, 0, g.Router().Pending())
	assert.Empty(t, g.Simulation().Enemies())
}

func TestGameDeliverDropsWhenFull(t *testing.T) {
	g, _ := newTestGame(t, GameOptions{})
	for i := 0; i < inboxLen; i++ {
		require.True(t, g.Deliver([]byte("{}")))
	}
	assert.False(t, g.Deliver([]byte("{}")))
}

func TestGameRecoversPanics(t *testing.T) {
	g, _ := newTestGame(t, GameOptions{})
	assert.NotPanics(t, func() {
		defer g.recoverPanic("test")
		panic("boom")
	})
	assert.NotPanics(t, func() { g.handleFrame([]byte("garbage"), time.Now()) })
}
