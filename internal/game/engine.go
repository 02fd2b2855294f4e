package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"golang.org/x/time/rate"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/server"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/store"
)

var (
	ErrInvalidState   = errors.New("operation not valid in the current state")
	ErrAlreadyDecided = errors.New("decision already recorded for this round")
	ErrInvalidChoice  = errors.New("choice out of range")
	ErrRateLimited    = errors.New("too many messages")
	ErrEmptyMessage   = errors.New("empty message")
	ErrStopped        = errors.New("engine stopped")

	errPanicked = errors.New("internal error")
)

// Broadcaster delivers messages to connected participants.
type Broadcaster interface {
	SendTo(participantID string, msg server.WSMessage)
	BroadcastRoom(roomID string, msg server.WSMessage)
	JoinRoom(participantID, roomID string)
	LeaveRoom(participantID, roomID string)
}

// SnapshotSink receives room snapshots for persistence. Save must not block.
type SnapshotSink interface {
	Save(rec store.RoomRecord)
}

type Options struct {
	Settings  room.Settings
	Clock     Clock
	Intn      func(n int) int // role draws; defaults to math/rand/v2
	Snapshots SnapshotSink
	Metrics   *server.Metrics

	// ChatRate and ChatBurst bound chat messages per participant.
	ChatRate  rate.Limit
	ChatBurst int
}

const (
	inboxSize      = 256
	maxChatRunes   = 300
	defaultChatRPS = 1
	defaultBurst   = 3
)

// Engine runs every room on a single loop goroutine. Public methods and
// timer callbacks submit closures to the loop, so room state is only ever
// touched from one goroutine and timer callbacks never race a handler.
type Engine struct {
	reg       *room.Registry
	settings  room.Settings
	hub       Broadcaster
	clock     Clock
	intn      func(int) int
	snapshots SnapshotSink
	metrics   *server.Metrics
	logger    *slog.Logger

	inbox   chan func()
	stopped chan struct{}

	chatting  map[string]struct{} // rooms with a running chat countdown
	chatRate  rate.Limit
	chatBurst int
	limiters  map[string]*rate.Limiter
}

func NewEngine(hub Broadcaster, logger *slog.Logger, opts Options) *Engine {
	if opts.Settings.Capacity == 0 {
		opts.Settings = room.DefaultSettings()
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Intn == nil {
		opts.Intn = rand.IntN
	}
	if opts.Metrics == nil {
		opts.Metrics = server.NewMetrics()
	}
	if opts.ChatRate == 0 {
		opts.ChatRate = defaultChatRPS
	}
	if opts.ChatBurst == 0 {
		opts.ChatBurst = defaultBurst
	}

	reg := room.NewRegistry(opts.Settings)
	reg.Now = opts.Clock.Now

	return &Engine{
		reg:       reg,
		settings:  opts.Settings,
		hub:       hub,
		clock:     opts.Clock,
		intn:      opts.Intn,
		snapshots: opts.Snapshots,
		metrics:   opts.Metrics,
		logger:    logger,
		inbox:     make(chan func(), inboxSize),
		stopped:   make(chan struct{}),
		chatting:  make(map[string]struct{}),
		chatRate:  opts.ChatRate,
		chatBurst: opts.ChatBurst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// SetHub sets the broadcaster (used to break circular init).
func (e *Engine) SetHub(hub Broadcaster) {
	e.hub = hub
}

// Run processes submitted work until ctx is cancelled. On return every
// room timer has been cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			for _, r := range e.reg.Rooms() {
				r.Timers.CancelAll()
			}
			return ctx.Err()
		case fn := <-e.inbox:
			e.exec(fn)
		}
	}
}

func (e *Engine) exec(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("engine handler panicked", "panic", rec)
		}
	}()
	fn()
}

// post queues fn from outside the loop. It must never be called from the
// loop itself.
func (e *Engine) post(fn func()) {
	select {
	case e.inbox <- fn:
	case <-e.stopped:
	}
}

// do runs fn on the loop and waits for its result.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	job := func() {
		err := errPanicked
		defer func() { done <- err }()
		err = fn()
	}
	select {
	case e.inbox <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

// Sync returns once everything queued before the call has run.
func (e *Engine) Sync(ctx context.Context) error {
	return e.do(ctx, func() error { return nil })
}

// Connect binds a live connection to a participant. A seated participant is
// rebound to their room and sent its current state; anyone else is queued
// for matching.
func (e *Engine) Connect(ctx context.Context, participantID, connID string, cond room.ConditionKey) error {
	return e.do(ctx, func() error {
		if r, p, ok := e.reg.FindByIdentity(participantID); ok {
			p.ConnID = connID
			e.hub.JoinRoom(p.ID, r.Name)
			e.sendState(r, p)
			e.logger.Info("participant reconnected", "room", r.Name, "participant", p.ID)
			return nil
		}
		return e.enqueue(participantID, connID, cond)
	})
}

// Enqueue places a participant in the matching queue and runs a matching pass.
func (e *Engine) Enqueue(ctx context.Context, participantID, connID string, cond room.ConditionKey) error {
	return e.do(ctx, func() error {
		return e.enqueue(participantID, connID, cond)
	})
}

func (e *Engine) RecordDecision(ctx context.Context, participantID string, choice int) error {
	return e.do(ctx, func() error {
		r, p, err := e.seat(participantID)
		if err != nil {
			return err
		}
		return e.recordDecision(r, p, choice)
	})
}

// CompleteAsyncStep signals that a participant finished step. An empty step
// name means the room's current step.
func (e *Engine) CompleteAsyncStep(ctx context.Context, participantID string, step room.Step) error {
	return e.do(ctx, func() error {
		r, p, err := e.seat(participantID)
		if err != nil {
			return err
		}
		return e.completeAsyncStep(r, p, step)
	})
}

func (e *Engine) ChatMessage(ctx context.Context, participantID, text string) error {
	return e.do(ctx, func() error {
		r, p, err := e.seat(participantID)
		if err != nil {
			return err
		}
		return e.chatMessage(r, p, text)
	})
}

// Leave withdraws a participant voluntarily, from the queue or a room.
func (e *Engine) Leave(ctx context.Context, participantID string) error {
	return e.do(ctx, func() error {
		if e.reg.Dequeue(participantID) {
			e.metrics.SetQueued(e.reg.QueueLen())
			return nil
		}
		r, p, err := e.seat(participantID)
		if err != nil {
			return err
		}
		e.drop(r, p, ReasonLeft)
		return nil
	})
}

// Disconnect handles a closed connection. A disconnect from a connection the
// participant has since replaced is ignored.
func (e *Engine) Disconnect(ctx context.Context, participantID, connID string) error {
	return e.do(ctx, func() error {
		if e.reg.Dequeue(participantID) {
			e.metrics.SetQueued(e.reg.QueueLen())
			return nil
		}
		r, p, ok := e.reg.FindByIdentity(participantID)
		if !ok {
			return nil
		}
		if connID != "" && p.ConnID != connID {
			e.logger.Debug("stale disconnect ignored", "room", r.Name, "participant", p.ID)
			return nil
		}
		e.drop(r, p, ReasonDisconnected)
		return nil
	})
}

// NonResponse ends a game because participantID stopped responding. The
// reporter must share the room.
func (e *Engine) NonResponse(ctx context.Context, reporterID, participantID string) error {
	return e.do(ctx, func() error {
		r, p, err := e.seat(participantID)
		if err != nil {
			return err
		}
		if reporterID != "" && reporterID != participantID {
			if _, ok := r.Participant(reporterID); !ok {
				return room.ErrParticipantNotFound
			}
		}
		if !r.GameStarted || r.GameCompleted {
			return ErrInvalidState
		}
		e.terminate(r, ReasonNonResponse, p)
		return nil
	})
}

// ListRooms lists the live rooms.
func (e *Engine) ListRooms(ctx context.Context) ([]store.RoomStatus, error) {
	var out []store.RoomStatus
	err := e.do(ctx, func() error {
		now := e.clock.Now()
		for _, r := range e.reg.Rooms() {
			rec := recordOf(r)
			out = append(out, rec.Status(now))
		}
		return nil
	})
	return out, err
}

// GetRoom returns one live room's status, or store.ErrNotFound.
func (e *Engine) GetRoom(ctx context.Context, name string) (*store.RoomStatus, error) {
	var out *store.RoomStatus
	err := e.do(ctx, func() error {
		r, ok := e.reg.FindByRoomName(name)
		if !ok {
			return store.ErrNotFound
		}
		rec := recordOf(r)
		s := rec.Status(e.clock.Now())
		out = &s
		return nil
	})
	return out, err
}

func (e *Engine) seat(participantID string) (*room.Room, *room.Participant, error) {
	r, p, ok := e.reg.FindByIdentity(participantID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", room.ErrParticipantNotFound, participantID)
	}
	return r, p, nil
}
