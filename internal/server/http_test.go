package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/auth"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/config"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/store"
)

type staticRooms struct {
	rooms []store.RoomStatus
	err   error
}

func (s staticRooms) ListRooms(context.Context) ([]store.RoomStatus, error) {
	return s.rooms, s.err
}

func (s staticRooms) GetRoom(_ context.Context, name string) (*store.RoomStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, r := range s.rooms {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:             env,
		JoinTokenSecret: "test-secret",
		JoinTokenTTL:    time.Hour,
		RateLimit:       100,
		RateBurst:       100,
	}
}

func newTestServer(t *testing.T, env string, rooms StatusReader) *Server {
	t.Helper()
	return New(testConfig(env), nil, rooms, NewMetrics(), discardLogger())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "development", nil)
	s.AddHealthCheck("store", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["store"])

	s.AddHealthCheck("redis", func(context.Context) error { return errors.New("refused") })
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "down", body["redis"])
}

func TestRoomRoutes(t *testing.T) {
	rooms := staticRooms{rooms: []store.RoomStatus{
		{Name: "room-1", State: store.StatePlaying, Step: "rounds", Participants: 5, Round: 3},
	}}
	h := newTestServer(t, "development", rooms).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []store.RoomStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "room-1", list[0].Name)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/room-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var one store.RoomStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, 3, one.Round)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoomRoutesWithoutReader(t *testing.T) {
	h := newTestServer(t, "development", nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoomRoutesReaderFailure(t *testing.T) {
	h := newTestServer(t, "development", staticRooms{err: errors.New("redis down")}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIssueJoinToken(t *testing.T) {
	h := newTestServer(t, "development", nil).Handler()

	body := `{"participant_id":"p1","generation":2,"variation":2,"ktf":true,"near_miss":"nearMiss"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/join-tokens", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := auth.Verify(resp.Token, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, "p1", claims.Subject)
	assert.Equal(t, 2, claims.Generation)
	assert.True(t, claims.KTF)
	assert.Equal(t, "nearMiss", claims.NearMiss)
}

func TestIssueJoinTokenRejectsBadInput(t *testing.T) {
	h := newTestServer(t, "development", nil).Handler()

	for name, body := range map[string]string{
		"malformed":         `{`,
		"missing identity":  `{"generation":1,"variation":1}`,
		"unknown condition": `{"participant_id":"p1","generation":7,"variation":1}`,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/join-tokens", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestJoinTokensHiddenOutsideDevelopment(t *testing.T) {
	h := newTestServer(t, "production", nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/join-tokens",
		strings.NewReader(`{"participant_id":"p1","generation":1,"variation":1}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, "development", nil)
	s.metrics.IncrRooms()
	s.metrics.IncrDecision()
	s.metrics.IncrDecision()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.EqualValues(t, 1, data["live_rooms"])
	assert.EqualValues(t, 2, data["decisions"])
}
