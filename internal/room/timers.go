package room

// Timer is a pending clock callback.
type Timer interface {
	Stop() bool
}

// TimerCategory names a slot in a TimerSet. Each slot holds at most one live
// timer.
type TimerCategory int

const (
	TimerStep TimerCategory = iota
	TimerRound
	TimerResult
	TimerChat
	TimerNearMissDelay
	TimerNearMiss
	TimerNextRound
	numTimerCategories
)

func (c TimerCategory) String() string {
	switch c {
	case TimerStep:
		return "step"
	case TimerRound:
		return "round"
	case TimerResult:
		return "result"
	case TimerChat:
		return "chat"
	case TimerNearMissDelay:
		return "near_miss_delay"
	case TimerNearMiss:
		return "near_miss"
	case TimerNextRound:
		return "next_round"
	default:
		return "unknown"
	}
}

type timerSlot struct {
	token uint64
	timer Timer
}

// TimerSet owns every pending timer of a room. Arming a slot always stops
// what was there, so two timers of one category can never be live together.
//
// Stopping a timer cannot recall a callback that has already been queued, so
// each arm gets a token and callbacks must pass Fire before running.
type TimerSet struct {
	slots [numTimerCategories]timerSlot
	seq   uint64
}

func NewTimerSet() *TimerSet {
	return &TimerSet{}
}

// Arm cancels the slot and installs the timer returned by start, which
// receives the token its callback must present to Fire. It reports whether a
// live timer was replaced.
func (ts *TimerSet) Arm(cat TimerCategory, start func(token uint64) Timer) bool {
	replaced := ts.Cancel(cat)
	ts.seq++
	tok := ts.seq
	ts.slots[cat] = timerSlot{token: tok, timer: start(tok)}
	return replaced
}

// Fire claims the slot for a firing callback. It returns false when the token
// is stale (the slot was cancelled or re-armed), in which case the callback
// must do nothing.
func (ts *TimerSet) Fire(cat TimerCategory, token uint64) bool {
	s := ts.slots[cat]
	if s.token == 0 || s.token != token {
		return false
	}
	ts.slots[cat] = timerSlot{}
	return true
}

// Cancel stops the slot's timer. It reports whether one was live.
func (ts *TimerSet) Cancel(cat TimerCategory) bool {
	s := ts.slots[cat]
	if s.token == 0 {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	ts.slots[cat] = timerSlot{}
	return true
}

// CancelAll stops every live timer and returns how many there were.
func (ts *TimerSet) CancelAll() int {
	n := 0
	for c := TimerCategory(0); c < numTimerCategories; c++ {
		if ts.Cancel(c) {
			n++
		}
	}
	return n
}

func (ts *TimerSet) Active(cat TimerCategory) bool {
	return ts.slots[cat].token != 0
}

// Live returns the number of armed slots.
func (ts *TimerSet) Live() int {
	n := 0
	for _, s := range ts.slots {
		if s.token != 0 {
			n++
		}
	}
	return n
}

// ActiveCategories lists the armed slots in category order.
func (ts *TimerSet) ActiveCategories() []TimerCategory {
	var out []TimerCategory
	for c := TimerCategory(0); c < numTimerCategories; c++ {
		if ts.slots[c].token != 0 {
			out = append(out, c)
		}
	}
	return out
}
