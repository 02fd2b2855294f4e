package room

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Waiting is an entry in the matching queue.
type Waiting struct {
	ParticipantID string
	ConnID        string
	Condition     ConditionKey
}

// Placement describes one participant seated by Match.
type Placement struct {
	Room        *Room
	Participant *Participant
	Created     bool // the room was created for this participant
	Filled      bool // this seat brought the room to capacity
}

// Registry owns the live rooms and the FIFO matching queue. It is not safe
// for concurrent use; the engine loop is its only caller.
type Registry struct {
	settings Settings
	rooms    map[string]*Room
	order    []string // creation order, for deterministic matching
	queue    []Waiting
	creating bool

	NewName func() string
	Now     func() time.Time
}

func NewRegistry(s Settings) *Registry {
	return &Registry{
		settings: s,
		rooms:    make(map[string]*Room),
		NewName:  uuid.NewString,
		Now:      time.Now,
	}
}

// Enqueue appends a participant to the matching queue unless they are
// already queued or seated.
func (reg *Registry) Enqueue(participantID, connID string, cond ConditionKey) error {
	if _, err := FlowsFor(cond); err != nil {
		return err
	}
	if reg.Queued(participantID) {
		return ErrAlreadyQueued
	}
	if _, _, ok := reg.FindByIdentity(participantID); ok {
		return ErrAlreadyQueued
	}
	reg.queue = append(reg.queue, Waiting{ParticipantID: participantID, ConnID: connID, Condition: cond})
	return nil
}

// Queued reports whether a participant is waiting to be matched.
func (reg *Registry) Queued(participantID string) bool {
	for _, w := range reg.queue {
		if w.ParticipantID == participantID {
			return true
		}
	}
	return false
}

// Dequeue drops a waiting participant. Returns true if one was removed.
func (reg *Registry) Dequeue(participantID string) bool {
	for i, w := range reg.queue {
		if w.ParticipantID == participantID {
			reg.queue = append(reg.queue[:i], reg.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (reg *Registry) QueueLen() int {
	return len(reg.queue)
}

// Match walks the queue head-first, seating each waiting participant in the
// oldest open room with the same condition or in a new room. place runs for
// every seat, in order. A Match issued while another is in progress returns
// immediately; the running pass picks up anything queued meanwhile.
//
// An entry that needs a new room while the live-room cap is reached stays
// queued in place and the pass moves on, so later arrivals can still fill
// open rooms. Match then returns ErrRegistryFull.
func (reg *Registry) Match(place func(Placement)) error {
	if reg.creating {
		return nil
	}
	reg.creating = true
	defer func() { reg.creating = false }()

	var full error
	for i := 0; i < len(reg.queue); {
		w := reg.queue[i]

		target := reg.openRoom(w.Condition)
		created := false
		if target == nil {
			if len(reg.rooms) >= reg.settings.MaxRooms {
				full = fmt.Errorf("%w: %d live rooms", ErrRegistryFull, len(reg.rooms))
				i++
				continue
			}
			r, err := NewRoom(reg.NewName(), w.Condition, reg.settings, reg.Now())
			if err != nil {
				reg.queue = append(reg.queue[:i], reg.queue[i+1:]...)
				return err
			}
			reg.rooms[r.Name] = r
			reg.order = append(reg.order, r.Name)
			target = r
			created = true
		}
		reg.queue = append(reg.queue[:i], reg.queue[i+1:]...)

		p := newParticipant(w.ParticipantID, w.ConnID, reg.settings.Rounds, reg.Now())
		target.addParticipant(p)
		target.Ready.SetRequired(len(target.Participants))

		if place != nil {
			place(Placement{
				Room:        target,
				Participant: p,
				Created:     created,
				Filled:      len(target.Participants) == reg.settings.Capacity,
			})
		}
	}
	return full
}

func (reg *Registry) openRoom(cond ConditionKey) *Room {
	for _, name := range reg.order {
		r := reg.rooms[name]
		if r.Condition == cond && r.Open(reg.settings.Capacity) {
			return r
		}
	}
	return nil
}

// FindByIdentity returns the room a participant is seated in.
func (reg *Registry) FindByIdentity(participantID string) (*Room, *Participant, bool) {
	for _, name := range reg.order {
		r := reg.rooms[name]
		if p, ok := r.Participant(participantID); ok {
			return r, p, true
		}
	}
	return nil, nil, false
}

func (reg *Registry) FindByRoomName(name string) (*Room, bool) {
	r, ok := reg.rooms[name]
	return r, ok
}

// FindByConnection resolves a live connection handle to its seat.
func (reg *Registry) FindByConnection(connID string) (*Room, *Participant, bool) {
	if connID == "" {
		return nil, nil, false
	}
	for _, name := range reg.order {
		r := reg.rooms[name]
		for _, p := range r.Participants {
			if p.ConnID == connID {
				return r, p, true
			}
		}
	}
	return nil, nil, false
}

// Remove drops a room from the live set. Removing an unknown or already
// removed room is a no-op that returns false.
func (reg *Registry) Remove(name string) bool {
	r, ok := reg.rooms[name]
	if !ok {
		return false
	}
	r.removed = true
	delete(reg.rooms, name)
	for i, n := range reg.order {
		if n == name {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}
	return true
}

// Rooms returns the live rooms in creation order.
func (reg *Registry) Rooms() []*Room {
	out := make([]*Room, 0, len(reg.order))
	for _, name := range reg.order {
		out = append(out, reg.rooms[name])
	}
	return out
}

func (reg *Registry) Count() int {
	return len(reg.rooms)
}
