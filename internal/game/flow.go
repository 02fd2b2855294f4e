package game

import (
	"time"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
)

// arm starts a one-shot timer in category cat. Arming replaces any live
// timer of the same category. fn runs on the loop, and only if the timer
// is still the live one for its category and the room is still live.
func (e *Engine) arm(r *room.Room, cat room.TimerCategory, d time.Duration, fn func()) {
	r.Timers.Arm(cat, func(tok uint64) room.Timer {
		return e.clock.AfterFunc(d, func() {
			e.post(func() {
				if r.Removed() || !r.Timers.Fire(cat, tok) {
					return
				}
				fn()
			})
		})
	})
}

// countdown ticks once a second in category cat, broadcasting the seconds
// left as msgType, and runs done when it reaches zero.
func (e *Engine) countdown(r *room.Room, cat room.TimerCategory, seconds int, msgType string, done func()) {
	if seconds <= 0 {
		done()
		return
	}
	remaining := seconds
	var tick func()
	tick = func() {
		remaining--
		e.broadcast(r, msgType, map[string]any{"seconds": remaining})
		if remaining <= 0 {
			done()
			return
		}
		e.arm(r, cat, time.Second, tick)
	}
	e.arm(r, cat, time.Second, tick)
}

// advance moves a room to its next step. It refuses while a near-miss
// notification or an active round is running, at the terminal step, and
// when leaving an async step for a sync one before every seated participant
// is ready. In the last case a partial barrier is reset and progress is
// broadcast. Returns true if the room moved.
func (e *Engine) advance(r *room.Room) bool {
	cur := r.CurrentStep()
	if cur == room.StepNearMiss || (cur == room.StepRounds && r.InGame) {
		e.logger.Debug("advance refused", "room", r.Name, "step", cur, "in_game", r.InGame)
		return false
	}
	next, ok := r.NextStep()
	if !ok {
		return false
	}

	if cur.Kind() == room.KindAsync && next.Kind() == room.KindSync {
		r.Ready.SetRequired(r.PlayerCount())
		if !r.Ready.IsOpen() {
			if r.Ready.Count() > 0 {
				e.broadcastProgress(r)
				r.Ready.Reset(r.PlayerCount())
			}
			return false
		}
	}

	e.enterNext(r)
	return true
}

// forceAdvance leaves the near-miss notification once its own clock ran
// out, restoring the default round clocks for the resumed rounds.
func (e *Engine) forceAdvance(r *room.Room) {
	r.RoundDuration = e.settings.RoundDuration
	r.ResultDuration = e.settings.ResultDuration
	if _, ok := r.NextStep(); !ok {
		return
	}
	e.enterNext(r)
}

func (e *Engine) enterNext(r *room.Room) {
	from := r.CurrentStep()
	r.StepIndex++
	r.Ready.Reset(r.PlayerCount())
	r.Timers.CancelAll()

	step := r.CurrentStep()
	e.logger.Info("step entered", "room", r.Name, "from", from, "step", step, "index", r.StepIndex)
	e.broadcastStep(r)
	e.snapshot(r)

	switch step {
	case room.StepRounds:
		e.startRounds(r)
	case room.StepNearMiss:
		e.startNearMiss(r)
	case room.StepGroupChat:
		e.startChat(r)
	default:
		if d := r.StepDuration(step); d > 0 {
			e.arm(r, room.TimerStep, d, func() { e.onStepTimer(r) })
		}
	}

	if r.IsLastStep() && !r.Condition.HasNearMiss() {
		e.broadcast(r, MsgProceedToSurvey, map[string]any{"step": step})
	}
}

// onStepTimer closes a sync step whose clock ran out.
func (e *Engine) onStepTimer(r *room.Room) {
	if e.advance(r) {
		return
	}
	if r.IsLastStep() {
		e.finish(r)
	}
}

// completeAsyncStep records that p finished the current async step. Repeat
// signals are no-ops. The room moves on once every seated participant is
// done; on the final step the room is finished instead.
func (e *Engine) completeAsyncStep(r *room.Room, p *room.Participant, step room.Step) error {
	cur := r.CurrentStep()
	if step != "" && step != cur {
		return ErrInvalidState
	}
	if cur.Kind() != room.KindAsync {
		return ErrInvalidState
	}
	if !r.Ready.Signal(p.ID) {
		return nil
	}
	r.Ready.SetRequired(r.PlayerCount())
	e.broadcastProgress(r)

	if r.IsLastStep() {
		e.send(p.ID, MsgProceedToSurvey, map[string]any{"step": cur})
	}
	if !r.Ready.IsOpen() {
		return nil
	}
	if r.IsLastStep() {
		e.finish(r)
		return nil
	}
	e.advance(r)
	return nil
}

// checkBarrier re-evaluates an async step after the seated count shrank.
func (e *Engine) checkBarrier(r *room.Room) {
	if r.CurrentStep().Kind() != room.KindAsync || !r.Ready.IsOpen() {
		return
	}
	if r.IsLastStep() {
		e.finish(r)
		return
	}
	e.advance(r)
}
