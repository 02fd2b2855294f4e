package game

import (
	"errors"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
)

// Reasons a game ends early.
const (
	ReasonLeft         = "participant_left"
	ReasonDisconnected = "participant_disconnected"
	ReasonNonResponse  = "non_response"
)

func (e *Engine) enqueue(participantID, connID string, cond room.ConditionKey) error {
	if err := e.reg.Enqueue(participantID, connID, cond); err != nil {
		return err
	}
	e.metrics.SetQueued(e.reg.QueueLen())
	e.send(participantID, MsgQueued, map[string]any{
		"condition": cond,
		"position":  e.reg.QueueLen(),
	})
	e.matchWaiting()
	return nil
}

// matchWaiting seats whoever is queued. A full registry leaves the rest
// queued until a room is removed.
func (e *Engine) matchWaiting() {
	err := e.reg.Match(e.onPlaced)
	e.metrics.SetQueued(e.reg.QueueLen())
	if errors.Is(err, room.ErrRegistryFull) {
		e.logger.Warn("room cap reached, participants left queued", "queued", e.reg.QueueLen(), "err", err)
	} else if err != nil {
		e.logger.Error("matching", "err", err)
	}
}

func (e *Engine) onPlaced(pl room.Placement) {
	r, p := pl.Room, pl.Participant
	if pl.Created {
		e.metrics.IncrRooms()
		e.logger.Info("room created", "room", r.Name, "condition", r.Condition.String())
	}
	e.hub.JoinRoom(p.ID, r.Name)
	e.logger.Info("participant seated", "room", r.Name, "participant", p.ID, "count", r.PlayerCount())
	e.broadcastRoster(r)
	if pl.Filled {
		e.assignRoles(r)
	}
}

// assignRoles starts a full room: every seat draws a distinct role and the
// room leaves the waiting room.
func (e *Engine) assignRoles(r *room.Room) {
	roles, err := r.AssignRoles(e.settings.Capacity, e.intn)
	if err != nil {
		e.logger.Warn("role assignment skipped", "room", r.Name, "err", err)
		return
	}
	r.GameStarted = true
	now := e.clock.Now()
	r.StartedAt = &now

	for _, p := range r.Participants {
		e.send(p.ID, MsgRoleAssigned, map[string]any{"role": p.Role})
	}
	e.broadcast(r, MsgRoles, map[string]any{"roles": roles})
	e.logger.Info("roles assigned", "room", r.Name)
	e.snapshot(r)
	e.advance(r)
}

// drop unseats a participant who left or lost their connection. Leaving a
// game in progress ends it for everyone; otherwise the room carries on
// with fewer seats and is removed once empty. The final round's result
// display still counts as in progress.
func (e *Engine) drop(r *room.Room, p *room.Participant, reason string) {
	inProgress := r.GameStarted && (!r.GameCompleted || r.InGame)
	r.RemoveParticipant(p.ID)
	delete(e.limiters, p.ID)
	e.hub.LeaveRoom(p.ID, r.Name)
	e.logger.Info("participant dropped", "room", r.Name, "participant", p.ID, "reason", reason)

	if inProgress {
		e.terminate(r, reason, p)
		return
	}
	if r.PlayerCount() == 0 {
		if r.GameStarted {
			e.close(r)
			return
		}
		r.Timers.CancelAll()
		e.removeRoom(r)
		return
	}
	if !r.GameStarted {
		e.broadcastRoster(r)
		return
	}
	e.snapshot(r)
	e.checkBarrier(r)
}

// terminate ends a game early and removes the room.
func (e *Engine) terminate(r *room.Room, reason string, culprit *room.Participant) {
	if r.Removed() {
		return
	}
	r.Timers.CancelAll()
	r.InGame = false
	r.GameDropped = true
	r.DropReason = reason
	now := e.clock.Now()
	r.EndedAt = &now

	payload := map[string]any{"reason": reason}
	if culprit != nil {
		payload["participant_id"] = culprit.ID
		payload["role"] = culprit.Role
	}
	e.broadcast(r, MsgTerminated, payload)
	e.logger.Info("game terminated", "room", r.Name, "reason", reason)
	e.metrics.IncrRoomsTerminated()
	e.close(r)
}

// finish completes a room that reached the end of its sequence.
func (e *Engine) finish(r *room.Room) {
	if r.Removed() {
		return
	}
	r.Timers.CancelAll()
	if r.EndedAt == nil {
		now := e.clock.Now()
		r.EndedAt = &now
	}
	earnings := make(map[string]float64, len(r.Participants))
	for _, p := range r.Participants {
		earnings[p.ID] = p.TotalEarnings
	}
	e.broadcast(r, MsgFinished, map[string]any{"earnings": earnings})
	e.logger.Info("game finished", "room", r.Name)
	e.metrics.IncrRoomsFinished()
	e.close(r)
}

// close removes a started room and writes its final snapshot.
func (e *Engine) close(r *room.Room) {
	r.Timers.CancelAll()
	e.endChat(r)
	for _, p := range r.Participants {
		e.hub.LeaveRoom(p.ID, r.Name)
	}
	if e.removeRoom(r) {
		rec := recordOf(r)
		rec.Closed = true
		e.save(rec)
	}
}

func (e *Engine) removeRoom(r *room.Room) bool {
	if !e.reg.Remove(r.Name) {
		return false
	}
	e.metrics.DecrRooms()
	e.logger.Debug("room removed", "room", r.Name, "live", e.reg.Count())
	if e.reg.QueueLen() > 0 {
		e.matchWaiting()
	}
	return true
}
