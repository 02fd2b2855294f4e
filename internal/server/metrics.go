package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics collects basic application metrics served as JSON.
type Metrics struct {
	wsConnections   atomic.Int64
	liveRooms       atomic.Int64
	queued          atomic.Int64
	decisions       atomic.Int64
	chatMessages    atomic.Int64
	roomsFinished   atomic.Int64
	roomsTerminated atomic.Int64
	startTime       time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrWSConn()          { m.wsConnections.Add(1) }
func (m *Metrics) DecrWSConn()          { m.wsConnections.Add(-1) }
func (m *Metrics) IncrRooms()           { m.liveRooms.Add(1) }
func (m *Metrics) DecrRooms()           { m.liveRooms.Add(-1) }
func (m *Metrics) SetQueued(n int)      { m.queued.Store(int64(n)) }
func (m *Metrics) IncrDecision()        { m.decisions.Add(1) }
func (m *Metrics) IncrChat()            { m.chatMessages.Add(1) }
func (m *Metrics) IncrRoomsFinished()   { m.roomsFinished.Add(1) }
func (m *Metrics) IncrRoomsTerminated() { m.roomsTerminated.Add(1) }

func (m *Metrics) LiveRooms() int64 { return m.liveRooms.Load() }

// ServeHTTP exposes metrics as JSON at /metrics.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	data := map[string]any{
		"uptime_seconds":   int(time.Since(m.startTime).Seconds()),
		"ws_connections":   m.wsConnections.Load(),
		"live_rooms":       m.liveRooms.Load(),
		"queued":           m.queued.Load(),
		"decisions":        m.decisions.Load(),
		"chat_messages":    m.chatMessages.Load(),
		"rooms_finished":   m.roomsFinished.Load(),
		"rooms_terminated": m.roomsTerminated.Load(),
		"goroutines":       runtime.NumGoroutine(),
		"heap_alloc_mb":    mem.HeapAlloc / 1024 / 1024,
		"sys_mb":           mem.Sys / 1024 / 1024,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}
