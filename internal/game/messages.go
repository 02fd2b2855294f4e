package game

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/server"
)

// Outbound message types.
const (
	MsgQueued          = "queued"
	MsgRoster          = "roster"
	MsgRoleAssigned    = "role_assigned"
	MsgRoles           = "roles"
	MsgStepChanged     = "step_changed"
	MsgProgress        = "waiting_for_others"
	MsgProceedToSurvey = "proceed_to_survey"
	MsgRoundStarted    = "round_started"
	MsgRoundTimer      = "round_timer"
	MsgPartialResults  = "partial_results"
	MsgRoundResult     = "round_result"
	MsgResultTimer     = "result_timer"
	MsgNearMiss        = "near_miss"
	MsgNearMissTimer   = "near_miss_timer"
	MsgChatTimer       = "chat_timer"
	MsgChatEnded       = "chat_ended"
	MsgChat            = "chat_message"
	MsgTerminated      = "game_terminated"
	MsgFinished        = "game_finished"
	MsgState           = "state"
	MsgError           = "error"
)

// Inbound message types.
const (
	InDecision     = "decision"
	InStepComplete = "step_complete"
	InChat         = "chat"
	InLeave        = "leave"
	InNonResponse  = "non_response"
	InState        = "get_state"
)

func encode(v any) json.RawMessage {
	payload, _ := json.Marshal(v)
	return payload
}

func (e *Engine) broadcast(r *room.Room, typ string, v any) {
	e.hub.BroadcastRoom(r.Name, server.WSMessage{Type: typ, Payload: encode(v)})
}

func (e *Engine) send(participantID, typ string, v any) {
	e.hub.SendTo(participantID, server.WSMessage{Type: typ, Payload: encode(v)})
}

func (e *Engine) sendError(participantID string, err error) {
	e.send(participantID, MsgError, map[string]any{
		"code":    errorCode(err),
		"message": err.Error(),
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrAlreadyDecided):
		return "already_decided"
	case errors.Is(err, ErrInvalidChoice):
		return "invalid_choice"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, room.ErrParticipantNotFound):
		return "not_seated"
	case errors.Is(err, room.ErrUnknownCondition):
		return "unknown_condition"
	case errors.Is(err, room.ErrAlreadyQueued):
		return "already_queued"
	default:
		return "internal"
	}
}

func (e *Engine) broadcastRoster(r *room.Room) {
	e.broadcast(r, MsgRoster, map[string]any{
		"room_id":      r.Name,
		"participants": r.ParticipantIDs(),
		"count":        r.PlayerCount(),
		"capacity":     e.settings.Capacity,
	})
}

func (e *Engine) broadcastStep(r *room.Room) {
	step := r.CurrentStep()
	e.broadcast(r, MsgStepChanged, map[string]any{
		"step":        step,
		"step_index":  r.StepIndex,
		"kind":        step.Kind().String(),
		"duration_ms": r.StepDuration(step).Milliseconds(),
	})
}

func (e *Engine) broadcastProgress(r *room.Room) {
	e.broadcast(r, MsgProgress, map[string]any{
		"step":     r.CurrentStep(),
		"ready":    r.Ready.Count(),
		"required": r.PlayerCount(),
	})
}

func (e *Engine) sendState(r *room.Room, p *room.Participant) {
	e.send(p.ID, MsgState, map[string]any{
		"room_id":         r.Name,
		"condition":       r.Condition,
		"step":            r.CurrentStep(),
		"step_index":      r.StepIndex,
		"role":            p.Role,
		"roles":           rolesOf(r),
		"round":           r.RoundIndex + 1,
		"in_game":         r.InGame,
		"round_duration":  r.RoundDuration,
		"result_duration": r.ResultDuration,
		"results":         p.Results,
		"total_earnings":  p.TotalEarnings,
		"levee_heights":   r.LeveeHeights[:min(r.RoundIndex+1, len(r.LeveeHeights))],
	})
}

func rolesOf(r *room.Room) map[string]string {
	out := make(map[string]string, len(r.Participants))
	for _, p := range r.Participants {
		if p.Role != "" {
			out[p.ID] = p.Role
		}
	}
	return out
}

// Connected implements server.MessageHandler.
func (e *Engine) Connected(ctx context.Context, client *server.Client) error {
	return e.Connect(ctx, client.ID, client.ConnID, client.Condition)
}

// Disconnected implements server.MessageHandler.
func (e *Engine) Disconnected(ctx context.Context, client *server.Client) {
	if err := e.Disconnect(ctx, client.ID, client.ConnID); err != nil {
		e.logger.Warn("disconnect", "participant", client.ID, "err", err)
	}
}

// HandleMessage implements server.MessageHandler.
func (e *Engine) HandleMessage(ctx context.Context, client *server.Client, msg server.WSMessage) {
	var err error
	switch msg.Type {
	case InDecision:
		var payload struct {
			Choice *int `json:"choice"`
		}
		if err = json.Unmarshal(msg.Payload, &payload); err != nil || payload.Choice == nil {
			err = ErrInvalidChoice
			break
		}
		err = e.RecordDecision(ctx, client.ID, *payload.Choice)

	case InStepComplete:
		var payload struct {
			Step string `json:"step"`
		}
		if len(msg.Payload) > 0 {
			_ = json.Unmarshal(msg.Payload, &payload)
		}
		err = e.CompleteAsyncStep(ctx, client.ID, room.Step(payload.Step))

	case InChat:
		var payload struct {
			Text string `json:"text"`
		}
		if err = json.Unmarshal(msg.Payload, &payload); err != nil {
			err = ErrEmptyMessage
			break
		}
		err = e.ChatMessage(ctx, client.ID, payload.Text)

	case InLeave:
		err = e.Leave(ctx, client.ID)

	case InNonResponse:
		var payload struct {
			ParticipantID string `json:"participant_id"`
		}
		if len(msg.Payload) > 0 {
			_ = json.Unmarshal(msg.Payload, &payload)
		}
		if payload.ParticipantID == "" {
			payload.ParticipantID = client.ID
		}
		err = e.NonResponse(ctx, client.ID, payload.ParticipantID)

	case InState:
		err = e.do(ctx, func() error {
			r, p, err := e.seat(client.ID)
			if err != nil {
				return err
			}
			e.sendState(r, p)
			return nil
		})

	default:
		e.logger.Debug("unknown message type", "type", msg.Type, "participant", client.ID)
		return
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Debug("message rejected", "type", msg.Type, "participant", client.ID, "err", err)
		e.sendError(client.ID, err)
	}
}
