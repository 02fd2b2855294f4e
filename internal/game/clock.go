package game

import (
	"time"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
)

// Clock is the engine's source of time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) room.Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) room.Timer {
	return time.AfterFunc(d, f)
}
