package room

import (
	"time"
)

// Room holds the full mutable state for a single play session. It is owned
// by the engine loop and is never accessed concurrently.
type Room struct {
	Name      string
	Condition ConditionKey

	Flows      []Step
	StepIndex  int
	StepTimers map[Step]int64 // milliseconds, fixed at creation

	Timers *TimerSet
	Ready  *Barrier

	Participants []*Participant
	RolePool     []string

	RoundIndex     int
	RoundDuration  int // seconds remaining in the decision countdown
	ResultDuration int // seconds remaining in the result display

	StockInvested      []int
	LeveeStocks        []int
	LeveeHeights       []int
	WaterHeights       []int
	FloodLosses        []int
	PreviousLeveeStock []int

	InGame             bool
	GameStarted        bool
	GameCompleted      bool
	GameDropped        bool
	ResultPhaseStarted bool

	// RoundsEntries counts entries into the rounds step; near-miss rooms
	// enter it twice and resume at the next round index.
	RoundsEntries int

	DropReason string
	ChatLog    []ChatEntry

	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time

	removed bool
}

func NewRoom(name string, cond ConditionKey, s Settings, now time.Time) (*Room, error) {
	flows, err := FlowsFor(cond)
	if err != nil {
		return nil, err
	}
	timers := make(map[Step]int64, len(flows))
	for _, step := range flows {
		if d, ok := s.StepDurations[step]; ok && d > 0 {
			timers[step] = d.Milliseconds()
		}
	}
	rounds := s.Rounds
	return &Room{
		Name:               name,
		Condition:          cond,
		Flows:              flows,
		StepTimers:         timers,
		Timers:             NewTimerSet(),
		Ready:              NewBarrier(0),
		Participants:       make([]*Participant, 0, s.Capacity),
		RoundDuration:      s.RoundDuration,
		ResultDuration:     s.ResultDuration,
		StockInvested:      make([]int, rounds),
		LeveeStocks:        make([]int, rounds),
		LeveeHeights:       make([]int, rounds),
		WaterHeights:       make([]int, rounds),
		FloodLosses:        make([]int, rounds),
		PreviousLeveeStock: make([]int, rounds),
		CreatedAt:          now,
	}, nil
}

func (r *Room) CurrentStep() Step {
	return r.Flows[r.StepIndex]
}

// NextStep returns the step after the current one, if any.
func (r *Room) NextStep() (Step, bool) {
	if r.StepIndex+1 >= len(r.Flows) {
		return "", false
	}
	return r.Flows[r.StepIndex+1], true
}

func (r *Room) IsLastStep() bool {
	return r.StepIndex == len(r.Flows)-1
}

// StepDuration returns the configured clock for a step, zero when unclocked.
func (r *Room) StepDuration(s Step) time.Duration {
	return time.Duration(r.StepTimers[s]) * time.Millisecond
}

// Removed reports whether the registry has dropped this room.
func (r *Room) Removed() bool {
	return r.removed
}

func (r *Room) Participant(id string) (*Participant, bool) {
	for _, p := range r.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (r *Room) PlayerCount() int {
	return len(r.Participants)
}

// Open reports whether a newcomer with the same condition may be seated.
func (r *Room) Open(capacity int) bool {
	return !r.removed && !r.InGame && !r.GameStarted && len(r.Participants) < capacity
}

func (r *Room) addParticipant(p *Participant) {
	r.Participants = append(r.Participants, p)
}

// RemoveParticipant unseats a participant and withdraws any pending step
// signal. Returns true if the participant was seated.
func (r *Room) RemoveParticipant(id string) bool {
	for i, p := range r.Participants {
		if p.ID == id {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			r.Ready.Forget(id)
			r.Ready.SetRequired(len(r.Participants))
			return true
		}
	}
	return false
}

// AllDecided reports whether every seated participant has a choice for round.
func (r *Room) AllDecided(round int) bool {
	if len(r.Participants) == 0 {
		return false
	}
	for _, p := range r.Participants {
		if !p.HasDecided(round) {
			return false
		}
	}
	return true
}

// DecidedCount returns how many seated participants chose in round.
func (r *Room) DecidedCount(round int) int {
	n := 0
	for _, p := range r.Participants {
		if p.HasDecided(round) {
			n++
		}
	}
	return n
}

// AssignRoles draws a role uniformly without replacement for every seated
// participant. intn must return a value in [0, n). The pool is rebuilt from
// the full role set on every call.
func (r *Room) AssignRoles(capacity int, intn func(n int) int) (map[string]string, error) {
	if r.GameStarted {
		return nil, ErrRolesAssigned
	}
	if len(r.Participants) != capacity {
		return nil, ErrRoomNotFull
	}
	r.RolePool = append(r.RolePool[:0], Roles...)
	out := make(map[string]string, len(r.Participants))
	for _, p := range r.Participants {
		i := intn(len(r.RolePool))
		p.Role = r.RolePool[i]
		r.RolePool = append(r.RolePool[:i], r.RolePool[i+1:]...)
		out[p.ID] = p.Role
	}
	return out, nil
}

// RoleOf returns a participant's role, empty when unassigned or unknown.
func (r *Room) RoleOf(id string) string {
	if p, ok := r.Participant(id); ok {
		return p.Role
	}
	return ""
}

// ParticipantIDs lists seated identities in seating order.
func (r *Room) ParticipantIDs() []string {
	out := make([]string, len(r.Participants))
	for i, p := range r.Participants {
		out[i] = p.ID
	}
	return out
}
