package game

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/server"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/store"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	live := !t.stopped && !t.fired
	t.stopped = true
	return live
}

// fakeClock fires timers only when the test advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) room.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// pop claims the earliest pending timer due by limit and moves the clock to it.
func (c *fakeClock) pop(limit time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var best *fakeTimer
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped || t.fired {
			continue
		}
		live = append(live, t)
		if t.at.After(limit) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best = t
		}
	}
	c.timers = live
	if best != nil {
		best.fired = true
		if best.at.After(c.now) {
			c.now = best.at
		}
	}
	return best
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type sentMessage struct {
	To      string // set for direct messages
	Room    string // set for broadcasts
	Type    string
	Payload json.RawMessage
}

func (m sentMessage) decode(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(m.Payload, &out))
	return out
}

type recordingHub struct {
	mu      sync.Mutex
	msgs    []sentMessage
	members map[string]string
}

func newRecordingHub() *recordingHub {
	return &recordingHub{members: make(map[string]string)}
}

func (h *recordingHub) SendTo(id string, msg server.WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, sentMessage{To: id, Type: msg.Type, Payload: msg.Payload})
}

func (h *recordingHub) BroadcastRoom(roomID string, msg server.WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, sentMessage{Room: roomID, Type: msg.Type, Payload: msg.Payload})
}

func (h *recordingHub) JoinRoom(id, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[id] = roomID
}

func (h *recordingHub) LeaveRoom(id, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[id] == roomID {
		delete(h.members, id)
	}
}

func (h *recordingHub) ofType(typ string) []sentMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []sentMessage
	for _, m := range h.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (h *recordingHub) count(typ string) int {
	return len(h.ofType(typ))
}

func (h *recordingHub) last(t *testing.T, typ string) sentMessage {
	t.Helper()
	msgs := h.ofType(typ)
	require.NotEmpty(t, msgs, "no %s message", typ)
	return msgs[len(msgs)-1]
}

func (h *recordingHub) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

func (h *recordingHub) roomOf(id string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.members[id]
	return r, ok
}

type recordingSink struct {
	mu   sync.Mutex
	recs []store.RoomRecord
}

func (s *recordingSink) Save(rec store.RoomRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
}

func (s *recordingSink) last(t *testing.T) store.RoomRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.recs)
	return s.recs[len(s.recs)-1]
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func (s *recordingSink) closed() []store.RoomRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.RoomRecord
	for _, r := range s.recs {
		if r.Closed {
			out = append(out, r)
		}
	}
	return out
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	e       *Engine
	clock   *fakeClock
	hub     *recordingHub
	sink    *recordingSink
	metrics *server.Metrics
}

var (
	gen1        = room.ConditionKey{Generation: 1, Variation: 1}
	gen1Chat    = room.ConditionKey{Generation: 1, Variation: 2}
	gen2        = room.ConditionKey{Generation: 2, Variation: 1}
	nearMiss    = room.ConditionKey{Generation: 1, Variation: 1, NearMiss: room.NearMissLabel}
	nearMissKTF = room.ConditionKey{Generation: 1, Variation: 1, KTF: true, NearMiss: room.NearMissLabel}
)

func newHarness(t *testing.T, tweak ...func(*room.Settings)) *harness {
	t.Helper()
	s := room.DefaultSettings()
	for _, fn := range tweak {
		fn(&s)
	}
	h := &harness{
		t:       t,
		clock:   newFakeClock(),
		hub:     newRecordingHub(),
		sink:    &recordingSink{},
		metrics: server.NewMetrics(),
	}
	h.e = NewEngine(h.hub, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		Settings:  s,
		Clock:     h.clock,
		Intn:      func(int) int { return 0 },
		Snapshots: h.sink,
		Metrics:   h.metrics,
	})
	n := 0
	h.e.reg.NewName = func() string {
		n++
		return fmt.Sprintf("room-%d", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.ctx = ctx
	go h.e.Run(ctx)
	t.Cleanup(cancel)
	return h
}

// advance moves the fake clock forward, running every timer that falls due
// in order and letting the engine settle after each.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	limit := h.clock.Now().Add(d)
	for {
		tm := h.clock.pop(limit)
		if tm == nil {
			break
		}
		tm.f()
		require.NoError(h.t, h.e.Sync(h.ctx))
	}
	h.clock.set(limit)
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func (h *harness) connect(cond room.ConditionKey, pids ...string) {
	h.t.Helper()
	for _, id := range pids {
		require.NoError(h.t, h.e.Connect(h.ctx, id, "conn-"+id, cond))
	}
}

func (h *harness) completeAll(pids []string, step room.Step) {
	h.t.Helper()
	for _, id := range pids {
		require.NoError(h.t, h.e.CompleteAsyncStep(h.ctx, id, step))
	}
}

func (h *harness) decideAll(pids []string, choice int) {
	h.t.Helper()
	for _, id := range pids {
		require.NoError(h.t, h.e.RecordDecision(h.ctx, id, choice))
	}
}

// inspect runs fn on the engine loop against the room pid is seated in.
// found is false when pid is not seated.
func (h *harness) inspect(pid string, fn func(r *room.Room)) (found bool) {
	h.t.Helper()
	require.NoError(h.t, h.e.do(h.ctx, func() error {
		r, _, ok := h.e.reg.FindByIdentity(pid)
		if ok {
			found = true
			fn(r)
		}
		return nil
	}))
	return found
}

func (h *harness) step(pid string) room.Step {
	h.t.Helper()
	var s room.Step
	require.True(h.t, h.inspect(pid, func(r *room.Room) { s = r.CurrentStep() }), "%s not seated", pid)
	return s
}

// startRounds fills a gen-1 style room and walks it to the first round.
func (h *harness) startRounds(cond room.ConditionKey, pids []string) {
	h.t.Helper()
	h.connect(cond, pids...)
	h.completeAll(pids, room.StepRoleSelection)
	h.completeAll(pids, room.StepInstructions)
	require.Equal(h.t, room.StepTransition1, h.step(pids[0]))
	h.advance(8 * time.Second)
	require.Equal(h.t, room.StepRounds, h.step(pids[0]))
}

// playRounds has everyone choose for rounds [from, to) and lets each result
// display and inter-round pause run out.
func (h *harness) playRounds(pids []string, from, to, choice int) {
	h.t.Helper()
	last := h.e.settings.Rounds - 1
	for i := from; i < to; i++ {
		h.decideAll(pids, choice)
		if i == last {
			h.advance(20 * time.Second)
			continue
		}
		h.advance(23 * time.Second)
	}
}
