package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubTimer struct{ stopped bool }

func (s *stubTimer) Stop() bool {
	was := !s.stopped
	s.stopped = true
	return was
}

func TestTimerSetOneLivePerCategory(t *testing.T) {
	ts := NewTimerSet()
	first := &stubTimer{}
	var firstTok uint64
	replaced := ts.Arm(TimerRound, func(tok uint64) Timer { firstTok = tok; return first })
	assert.False(t, replaced)

	second := &stubTimer{}
	var secondTok uint64
	replaced = ts.Arm(TimerRound, func(tok uint64) Timer { secondTok = tok; return second })
	assert.True(t, replaced)
	assert.True(t, first.stopped)
	assert.False(t, second.stopped)
	assert.Equal(t, 1, ts.Live())

	// the replaced timer's callback is stale
	assert.False(t, ts.Fire(TimerRound, firstTok))
	assert.True(t, ts.Fire(TimerRound, secondTok))
	assert.False(t, ts.Active(TimerRound))
	assert.False(t, ts.Fire(TimerRound, secondTok), "a token fires once")
}

func TestTimerSetCancelAll(t *testing.T) {
	ts := NewTimerSet()
	timers := map[TimerCategory]*stubTimer{
		TimerStep:   {},
		TimerResult: {},
		TimerChat:   {},
	}
	toks := map[TimerCategory]uint64{}
	for cat, tm := range timers {
		ts.Arm(cat, func(tok uint64) Timer { toks[cat] = tok; return tm })
	}
	assert.Equal(t, []TimerCategory{TimerStep, TimerResult, TimerChat}, ts.ActiveCategories())

	assert.Equal(t, 3, ts.CancelAll())
	for cat, tm := range timers {
		assert.True(t, tm.stopped, cat.String())
		assert.False(t, ts.Fire(cat, toks[cat]))
	}
	assert.Equal(t, 0, ts.Live())
	assert.Equal(t, 0, ts.CancelAll())
}

func TestTimerSetCancelUnarmed(t *testing.T) {
	ts := NewTimerSet()
	assert.False(t, ts.Cancel(TimerNearMiss))
	assert.False(t, ts.Fire(TimerNearMiss, 0))
}

func TestBarrier(t *testing.T) {
	b := NewBarrier(3)
	assert.False(t, b.IsOpen())
	assert.True(t, b.Signal("a"))
	assert.False(t, b.Signal("a"))
	assert.True(t, b.Signal("b"))
	assert.False(t, b.IsOpen())
	assert.True(t, b.Signal("c"))
	assert.True(t, b.IsOpen())

	b.Reset(2)
	assert.Equal(t, 0, b.Count())
	assert.True(t, b.Signal("a"), "reset forgets earlier signals")
	assert.False(t, b.IsOpen())

	assert.False(t, NewBarrier(0).IsOpen(), "an empty requirement never opens")
}
