package room

import (
	"fmt"
	"time"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/economy"
)

// Settings holds the fixed game parameters shared by every room.
type Settings struct {
	Capacity int
	Rounds   int
	MaxRooms int

	// Seconds, counted down by one-second ticks.
	RoundDuration  int
	ResultDuration int
	ChatDuration   int

	NextRoundDelay time.Duration

	// NearMissDelayKTF applies to treatment-flagged near-miss rooms,
	// NearMissDelay to every other near-miss room.
	NearMissDelay    time.Duration
	NearMissDelayKTF time.Duration

	// NearMissAfterRound is the round index after which a near-miss room
	// leaves the rounds step for the notification.
	NearMissAfterRound int

	MaxMissedRounds int

	StepDurations map[Step]time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Capacity:           5,
		Rounds:             economy.Rounds,
		MaxRooms:           100,
		RoundDuration:      60,
		ResultDuration:     20,
		ChatDuration:       60,
		NextRoundDelay:     3 * time.Second,
		NearMissDelay:      40 * time.Second,
		NearMissDelayKTF:   55 * time.Second,
		NearMissAfterRound: 4,
		MaxMissedRounds:    2,
		StepDurations: map[Step]time.Duration{
			StepParticipantsReady: 5 * time.Second,
			StepTransition1:       8 * time.Second,
			StepTransition2:       8 * time.Second,
			StepTransition3:       8 * time.Second,
			StepNearMiss:          20 * time.Second,
		},
	}
}

// Roles is the full role set; its size equals the room capacity.
var Roles = []string{"Mayor", "Engineer", "Farmer", "Merchant", "Resident"}

var (
	gen1Flows = []Step{
		StepWaitingRoom,
		StepRoleSelection,
		StepInstructions,
		StepTransition1,
		StepRounds,
		StepTransition2,
		StepPostSurvey,
	}
	gen2Flows = []Step{
		StepWaitingRoom,
		StepParticipantsReady,
		StepRoleSelection,
		StepInstructions,
		StepTransition1,
		StepRounds,
		StepTransition2,
		StepPostSurvey,
	}
	chatFlows = []Step{StepPreChatSurvey, StepGroupChat, StepTransition3}
)

var flowTable = buildFlowTable()

// buildFlowTable expands every supported condition into its step sequence.
// Variation 2 inserts the chat block before the post survey; the near-miss
// treatment splits the rounds step around the notification.
func buildFlowTable() map[ConditionKey][]Step {
	table := make(map[ConditionKey][]Step)
	bases := map[int][]Step{1: gen1Flows, 2: gen2Flows}
	for gen, base := range bases {
		for _, variation := range []int{1, 2} {
			for _, ktf := range []bool{false, true} {
				for _, nm := range []string{"", NearMissLabel} {
					var flows []Step
					for _, s := range base {
						switch {
						case s == StepPostSurvey && variation == 2:
							flows = append(flows, chatFlows...)
							flows = append(flows, s)
						case s == StepRounds && nm != "":
							flows = append(flows, StepRounds, StepNearMiss, StepRounds)
						default:
							flows = append(flows, s)
						}
					}
					key := ConditionKey{Generation: gen, Variation: variation, KTF: ktf, NearMiss: nm}
					table[key] = flows
				}
			}
		}
	}
	return table
}

// FlowsFor returns a copy of the step sequence for a condition.
func FlowsFor(c ConditionKey) ([]Step, error) {
	flows, ok := flowTable[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCondition, c)
	}
	return append([]Step(nil), flows...), nil
}

// NearMissDelayFor returns the pause before the near-miss countdown starts.
func (s Settings) NearMissDelayFor(c ConditionKey) time.Duration {
	if c.KTF {
		return s.NearMissDelayKTF
	}
	return s.NearMissDelay
}
