package store

import "time"

// Condition mirrors the treatment a room was created under.
type Condition struct {
	Generation int    `json:"generation"`
	Variation  int    `json:"variation"`
	KTF        bool   `json:"ktf"`
	NearMiss   string `json:"near_miss,omitempty"`
}

type ResultRecord struct {
	Choice            *int    `json:"choice"`
	EarningBeforeLoss float64 `json:"earning_before_loss"`
	EarningAfterLoss  float64 `json:"earning_after_loss"`
}

type ParticipantRecord struct {
	ID            string         `json:"id"`
	Role          string         `json:"role"`
	Results       []ResultRecord `json:"results"`
	TotalEarnings float64        `json:"total_earnings"`
	MissedRounds  int            `json:"missed_rounds"`
}

type ChatRecord struct {
	ParticipantID string    `json:"participant_id"`
	Role          string    `json:"role"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sent_at"`
}

// RoomRecord is the persisted snapshot of a room. Snapshots are written
// whole; the newest one for a room wins.
type RoomRecord struct {
	Name         string    `json:"name"`
	Condition    Condition `json:"condition"`
	ConditionKey string    `json:"condition_key"`

	Flows     []string `json:"flows"`
	StepIndex int      `json:"step_index"`
	Step      string   `json:"step"`

	Participants []ParticipantRecord `json:"participants"`

	RoundIndex         int   `json:"round_index"`
	StockInvested      []int `json:"stock_invested"`
	LeveeStocks        []int `json:"levee_stocks"`
	LeveeHeights       []int `json:"levee_heights"`
	WaterHeights       []int `json:"water_heights"`
	FloodLosses        []int `json:"flood_losses"`
	PreviousLeveeStock []int `json:"previous_levee_stock"`

	InGame        bool   `json:"in_game"`
	GameStarted   bool   `json:"game_started"`
	GameCompleted bool   `json:"game_completed"`
	GameDropped   bool   `json:"game_dropped"`
	DropReason    string `json:"drop_reason,omitempty"`

	ChatLog []ChatRecord `json:"chat_log,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Closed is set on the last snapshot of a room, after it left the live set.
	Closed bool `json:"closed"`
}

// Room lifecycle states reported in status summaries.
const (
	StateWaiting  = "waiting"
	StatePlaying  = "playing"
	StateFinished = "finished"
	StateDropped  = "dropped"
)

func (r *RoomRecord) State() string {
	switch {
	case r.GameDropped:
		return StateDropped
	case r.Closed:
		return StateFinished
	case r.GameStarted:
		return StatePlaying
	default:
		return StateWaiting
	}
}

// RoomStatus is the compact view of a room served to operators.
type RoomStatus struct {
	Name         string    `json:"name"`
	Condition    string    `json:"condition"`
	State        string    `json:"state"`
	Step         string    `json:"step"`
	StepIndex    int       `json:"step_index"`
	Participants int       `json:"participants"`
	Round        int       `json:"round"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *RoomRecord) Status(now time.Time) RoomStatus {
	return RoomStatus{
		Name:         r.Name,
		Condition:    r.ConditionKey,
		State:        r.State(),
		Step:         r.Step,
		StepIndex:    r.StepIndex,
		Participants: len(r.Participants),
		Round:        r.RoundIndex + 1,
		UpdatedAt:    now,
	}
}
