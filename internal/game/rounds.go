package game

import (
	"time"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/economy"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
)

// startRounds runs on entry to the rounds step. A room entering it again
// after the near-miss notification resumes at the following round.
func (e *Engine) startRounds(r *room.Room) {
	r.RoundsEntries++
	if r.RoundsEntries > 1 && r.RoundIndex+1 >= e.settings.Rounds {
		e.logger.Warn("rounds step entered with no rounds left", "room", r.Name, "round", r.RoundIndex)
		r.InGame = false
		e.advance(r)
		return
	}
	r.InGame = true
	if r.RoundsEntries > 1 {
		r.RoundIndex++
	}
	e.startRound(r)
}

func (e *Engine) startRound(r *room.Room) {
	r.Timers.CancelAll()
	r.RoundDuration = e.settings.RoundDuration
	r.ResultDuration = e.settings.ResultDuration
	r.ResultPhaseStarted = false

	e.logger.Debug("round started", "room", r.Name, "round", r.RoundIndex)
	e.broadcast(r, MsgRoundStarted, map[string]any{
		"round":       r.RoundIndex + 1,
		"round_index": r.RoundIndex,
		"rounds":      e.settings.Rounds,
		"seconds":     r.RoundDuration,
	})
	e.arm(r, room.TimerRound, time.Second, func() { e.roundTick(r) })
}

func (e *Engine) roundTick(r *room.Room) {
	if r.RoundDuration > 0 {
		r.RoundDuration--
	}
	e.broadcast(r, MsgRoundTimer, map[string]any{
		"round":   r.RoundIndex + 1,
		"seconds": r.RoundDuration,
	})
	if r.RoundDuration <= 0 || r.AllDecided(r.RoundIndex) {
		e.enterResultPhase(r)
		return
	}
	e.arm(r, room.TimerRound, time.Second, func() { e.roundTick(r) })
}

// recordDecision stores p's choice for the current round. A room whose
// seats have all decided moves straight to the result phase.
func (e *Engine) recordDecision(r *room.Room, p *room.Participant, choice int) error {
	if r.CurrentStep() != room.StepRounds || !r.InGame || r.ResultPhaseStarted {
		return ErrInvalidState
	}
	if !economy.ValidChoice(choice) {
		return ErrInvalidChoice
	}
	idx := r.RoundIndex
	if p.HasDecided(idx) {
		return ErrAlreadyDecided
	}
	c := choice
	p.Results[idx].Choice = &c
	p.MissedRounds = 0
	e.metrics.IncrDecision()

	e.broadcast(r, MsgPartialResults, map[string]any{
		"round":          idx + 1,
		"participant_id": p.ID,
		"role":           p.Role,
		"decided":        r.DecidedCount(idx),
		"total":          e.settings.Capacity,
	})

	if r.PlayerCount() == e.settings.Capacity && r.AllDecided(idx) {
		e.enterResultPhase(r)
	}
	return nil
}

// enterResultPhase scores the current round exactly once. Seats without a
// decision are recorded as choice 0 and counted as missed.
func (e *Engine) enterResultPhase(r *room.Room) {
	if r.ResultPhaseStarted {
		return
	}
	r.ResultPhaseStarted = true
	r.Timers.Cancel(room.TimerRound)

	idx := r.RoundIndex
	var missed []*room.Participant
	choices := make([]int, len(r.Participants))
	for i, p := range r.Participants {
		if !p.HasDecided(idx) {
			zero := 0
			p.Results[idx].Choice = &zero
			p.MissedRounds++
			missed = append(missed, p)
		}
		choices[i] = *p.Results[idx].Choice
	}

	prev := 0
	if idx > 0 {
		prev = r.PreviousLeveeStock[idx-1]
	}
	out := economy.ScoreRound(economy.RoundInput{
		Round:         idx,
		PreviousStock: prev,
		WaterHeight:   economy.WaterHeight(r.Condition.HasNearMiss(), idx),
		Choices:       choices,
	})

	for i, p := range r.Participants {
		earn := out.Earnings[i]
		p.Results[idx].EarningBeforeLoss = earn.BeforeLoss
		p.Results[idx].EarningAfterLoss = earn.AfterLoss
		p.TotalEarnings = economy.Round2(p.TotalEarnings + earn.AfterLoss)
	}
	r.StockInvested[idx] = out.Invested
	r.LeveeStocks[idx] = out.LeveeStock
	r.LeveeHeights[idx] = out.LeveeHeight
	r.WaterHeights[idx] = out.WaterHeight
	r.FloodLosses[idx] = out.FloodSeverity
	r.PreviousLeveeStock[idx] = out.LeveeStock

	e.broadcastRoundResult(r, out, missed)

	if idx == e.settings.Rounds-1 {
		r.GameCompleted = true
		now := e.clock.Now()
		r.EndedAt = &now
	}
	e.snapshot(r)

	if !r.GameCompleted {
		for _, p := range missed {
			if p.MissedRounds >= e.settings.MaxMissedRounds {
				e.logger.Info("participant unresponsive", "room", r.Name, "participant", p.ID, "missed", p.MissedRounds)
				e.terminate(r, ReasonNonResponse, p)
				return
			}
		}
	}

	r.ResultDuration = e.settings.ResultDuration
	e.arm(r, room.TimerResult, time.Second, func() { e.resultTick(r) })
}

func (e *Engine) broadcastRoundResult(r *room.Room, out economy.RoundOutcome, missed []*room.Participant) {
	type row struct {
		ParticipantID     string  `json:"participant_id"`
		Role              string  `json:"role"`
		Choice            int     `json:"choice"`
		EarningBeforeLoss float64 `json:"earning_before_loss"`
		EarningAfterLoss  float64 `json:"earning_after_loss"`
		TotalEarnings     float64 `json:"total_earnings"`
	}
	rows := make([]row, len(r.Participants))
	for i, p := range r.Participants {
		rows[i] = row{
			ParticipantID:     p.ID,
			Role:              p.Role,
			Choice:            out.Earnings[i].Choice,
			EarningBeforeLoss: out.Earnings[i].BeforeLoss,
			EarningAfterLoss:  out.Earnings[i].AfterLoss,
			TotalEarnings:     p.TotalEarnings,
		}
	}
	missedIDs := make([]string, len(missed))
	for i, p := range missed {
		missedIDs[i] = p.ID
	}
	e.broadcast(r, MsgRoundResult, map[string]any{
		"round":          out.Round + 1,
		"invested":       out.Invested,
		"incoming_stock": out.IncomingStock,
		"levee_stock":    out.LeveeStock,
		"levee_height":   out.LeveeHeight,
		"water_height":   out.WaterHeight,
		"flood_severity": out.FloodSeverity,
		"flooded":        out.FloodSeverity > 0,
		"participants":   rows,
		"missed":         missedIDs,
	})
}

func (e *Engine) resultTick(r *room.Room) {
	if r.ResultDuration > 0 {
		r.ResultDuration--
	}
	e.broadcast(r, MsgResultTimer, map[string]any{
		"round":   r.RoundIndex + 1,
		"seconds": r.ResultDuration,
	})
	if r.ResultDuration <= 0 {
		e.endRound(r)
		return
	}
	e.arm(r, room.TimerResult, time.Second, func() { e.resultTick(r) })
}

// endRound closes the result display. After the final round, or after the
// round that precedes a near-miss notification, the room leaves the rounds
// step; otherwise the next round starts after a short pause.
func (e *Engine) endRound(r *room.Room) {
	r.Timers.Cancel(room.TimerRound)
	r.Timers.Cancel(room.TimerResult)

	if r.RoundIndex >= e.settings.Rounds-1 {
		r.InGame = false
		e.advance(r)
		return
	}
	if r.Condition.HasNearMiss() && r.RoundIndex == e.settings.NearMissAfterRound {
		if next, ok := r.NextStep(); ok && next == room.StepNearMiss {
			r.InGame = false
			e.advance(r)
			return
		}
	}

	e.arm(r, room.TimerNextRound, e.settings.NextRoundDelay, func() {
		r.RoundIndex++
		e.startRound(r)
	})
}

// startNearMiss runs on entry to the near-miss notification. Round clocks
// are stopped; after the condition's delay the notification runs its own
// countdown and then forces the room on.
func (e *Engine) startNearMiss(r *room.Room) {
	r.Timers.Cancel(room.TimerRound)
	r.Timers.Cancel(room.TimerResult)
	r.RoundDuration = 0
	r.ResultDuration = 0

	delay := e.settings.NearMissDelayFor(r.Condition)
	idx := r.RoundIndex
	e.broadcast(r, MsgNearMiss, map[string]any{
		"round":        idx + 1,
		"water_height": r.WaterHeights[idx],
		"levee_height": r.LeveeHeights[idx],
		"delay_ms":     delay.Milliseconds(),
	})

	e.arm(r, room.TimerNearMissDelay, delay, func() {
		secs := int(r.StepDuration(room.StepNearMiss) / time.Second)
		e.countdown(r, room.TimerNearMiss, secs, MsgNearMissTimer, func() { e.forceAdvance(r) })
	})
}
