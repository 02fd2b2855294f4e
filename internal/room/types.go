package room

import (
	"fmt"
	"time"
)

// ConditionKey selects a room's phase sequence and water schedule. It is fixed
// for the lifetime of a room.
type ConditionKey struct {
	Generation int    `json:"generation"`
	Variation  int    `json:"variation"`
	KTF        bool   `json:"ktf"`
	NearMiss   string `json:"near_miss,omitempty"`
}

// NearMissLabel is the only near-miss treatment label currently run.
const NearMissLabel = "nearMiss"

func (c ConditionKey) HasNearMiss() bool {
	return c.NearMiss != ""
}

func (c ConditionKey) String() string {
	nm := c.NearMiss
	if nm == "" {
		nm = "none"
	}
	return fmt.Sprintf("g%d-v%d-ktf:%t-nm:%s", c.Generation, c.Variation, c.KTF, nm)
}

// Step is a named phase in a room's sequence.
type Step string

const (
	StepWaitingRoom       Step = "waitingRoom"
	StepParticipantsReady Step = "participantsReady"
	StepRoleSelection     Step = "roleSelection"
	StepInstructions      Step = "instructions"
	StepTransition1       Step = "transitionNotification1"
	StepTransition2       Step = "transitionNotification2"
	StepTransition3       Step = "transitionNotification3"
	StepRounds            Step = "rounds"
	StepNearMiss          Step = "nearMissNotification"
	StepPreChatSurvey     Step = "preChatSurvey"
	StepGroupChat         Step = "groupChat"
	StepPostSurvey        Step = "postSurvey"
)

// StepKind classifies how a step is exited.
type StepKind int

const (
	// KindSync steps advance when their clock runs out.
	KindSync StepKind = iota
	// KindAsync steps advance once every seated participant has completed them.
	KindAsync
)

func (k StepKind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	default:
		return "unknown"
	}
}

var stepKinds = map[Step]StepKind{
	StepWaitingRoom:       KindSync,
	StepParticipantsReady: KindSync,
	StepRoleSelection:     KindAsync,
	StepInstructions:      KindAsync,
	StepTransition1:       KindSync,
	StepTransition2:       KindSync,
	StepTransition3:       KindSync,
	StepRounds:            KindSync,
	StepNearMiss:          KindSync,
	StepPreChatSurvey:     KindAsync,
	StepGroupChat:         KindSync,
	StepPostSurvey:        KindAsync,
}

// Kind returns the step's classification. Unknown steps are sync.
func (s Step) Kind() StepKind {
	return stepKinds[s]
}

// SelfScheduled steps run their own clocks instead of the generic step timer.
func (s Step) SelfScheduled() bool {
	return s == StepRounds || s == StepNearMiss || s == StepGroupChat
}

// RoundResult is one participant's record for one round. Choice is nil until
// a decision is recorded.
type RoundResult struct {
	Choice            *int    `json:"choice"`
	EarningBeforeLoss float64 `json:"earning_before_loss"`
	EarningAfterLoss  float64 `json:"earning_after_loss"`
}

// Participant is a seated player. ID is stable across reconnects; ConnID is
// the current connection handle and is rebound on reconnect.
type Participant struct {
	ID            string
	ConnID        string
	Role          string
	Results       []RoundResult
	TotalEarnings float64
	MissedRounds  int
	JoinedAt      time.Time
}

func newParticipant(id, connID string, rounds int, now time.Time) *Participant {
	return &Participant{
		ID:       id,
		ConnID:   connID,
		Results:  make([]RoundResult, rounds),
		JoinedAt: now,
	}
}

// HasDecided reports whether a choice exists for the given round.
func (p *Participant) HasDecided(round int) bool {
	return round >= 0 && round < len(p.Results) && p.Results[round].Choice != nil
}

// ChatEntry is one group-chat line.
type ChatEntry struct {
	ParticipantID string    `json:"participant_id"`
	Role          string    `json:"role"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sent_at"`
}
