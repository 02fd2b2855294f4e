package game

import (
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/store"
)

// snapshot persists a started room. Rooms still filling are not stored.
func (e *Engine) snapshot(r *room.Room) {
	if !r.GameStarted {
		return
	}
	e.save(recordOf(r))
}

func (e *Engine) save(rec store.RoomRecord) {
	if e.snapshots != nil {
		e.snapshots.Save(rec)
	}
}

// recordOf deep-copies a room into its persisted form.
func recordOf(r *room.Room) store.RoomRecord {
	flows := make([]string, len(r.Flows))
	for i, s := range r.Flows {
		flows[i] = string(s)
	}

	participants := make([]store.ParticipantRecord, len(r.Participants))
	for i, p := range r.Participants {
		results := make([]store.ResultRecord, len(p.Results))
		for j, res := range p.Results {
			results[j] = store.ResultRecord{
				EarningBeforeLoss: res.EarningBeforeLoss,
				EarningAfterLoss:  res.EarningAfterLoss,
			}
			if res.Choice != nil {
				c := *res.Choice
				results[j].Choice = &c
			}
		}
		participants[i] = store.ParticipantRecord{
			ID:            p.ID,
			Role:          p.Role,
			Results:       results,
			TotalEarnings: p.TotalEarnings,
			MissedRounds:  p.MissedRounds,
		}
	}

	var chat []store.ChatRecord
	if len(r.ChatLog) > 0 {
		chat = make([]store.ChatRecord, len(r.ChatLog))
		for i, c := range r.ChatLog {
			chat[i] = store.ChatRecord(c)
		}
	}

	return store.RoomRecord{
		Name: r.Name,
		Condition: store.Condition{
			Generation: r.Condition.Generation,
			Variation:  r.Condition.Variation,
			KTF:        r.Condition.KTF,
			NearMiss:   r.Condition.NearMiss,
		},
		ConditionKey:       r.Condition.String(),
		Flows:              flows,
		StepIndex:          r.StepIndex,
		Step:               string(r.CurrentStep()),
		Participants:       participants,
		RoundIndex:         r.RoundIndex,
		StockInvested:      append([]int(nil), r.StockInvested...),
		LeveeStocks:        append([]int(nil), r.LeveeStocks...),
		LeveeHeights:       append([]int(nil), r.LeveeHeights...),
		WaterHeights:       append([]int(nil), r.WaterHeights...),
		FloodLosses:        append([]int(nil), r.FloodLosses...),
		PreviousLeveeStock: append([]int(nil), r.PreviousLeveeStock...),
		InGame:             r.InGame,
		GameStarted:        r.GameStarted,
		GameCompleted:      r.GameCompleted,
		GameDropped:        r.GameDropped,
		DropReason:         r.DropReason,
		ChatLog:            chat,
		CreatedAt:          r.CreatedAt,
		StartedAt:          copyPtr(r.StartedAt),
		EndedAt:            copyPtr(r.EndedAt),
	}
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
