package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/auth"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
)

type event struct {
	kind   string
	client *Client
	msg    WSMessage
}

// recordingHandler joins every client to a fixed room and reports lifecycle
// events on a channel.
type recordingHandler struct {
	hub    *Hub
	refuse error
	events chan event
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{events: make(chan event, 16)}
}

func (h *recordingHandler) Connected(_ context.Context, c *Client) error {
	if h.refuse != nil {
		return h.refuse
	}
	h.hub.JoinRoom(c.ID, "room-1")
	h.events <- event{kind: "connected", client: c}
	return nil
}

func (h *recordingHandler) HandleMessage(_ context.Context, c *Client, msg WSMessage) {
	h.events <- event{kind: "message", client: c, msg: msg}
}

func (h *recordingHandler) Disconnected(_ context.Context, c *Client) {
	h.events <- event{kind: "disconnected", client: c}
}

func (h *recordingHandler) next(t *testing.T, kind string) event {
	t.Helper()
	select {
	case ev := <-h.events:
		require.Equal(t, kind, ev.kind)
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", kind)
		return event{}
	}
}

var testSecret = []byte("ws-secret")

func startHub(t *testing.T, dev bool, refuse error) (*Hub, *recordingHandler, string) {
	t.Helper()
	handler := newRecordingHandler()
	handler.refuse = refuse
	hub := NewHub(handler, HubOptions{TokenSecret: testSecret, DevMode: dev, ReadLimit: 4096}, nil, discardLogger())
	handler.hub = hub
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, handler, srv.URL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg WSMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestHubDevIdentityAndBroadcast(t *testing.T) {
	hub, handler, url := startHub(t, true, nil)

	conn := dial(t, url+"?participantId=p1&generation=2&variation=1&ktf=true&nearMiss=nearMiss")
	ev := handler.next(t, "connected")
	assert.Equal(t, "p1", ev.client.ID)
	assert.NotEmpty(t, ev.client.ConnID)
	assert.Equal(t, room.ConditionKey{Generation: 2, Variation: 1, KTF: true, NearMiss: "nearMiss"}, ev.client.Condition)
	assert.Equal(t, 1, hub.RoomSize("room-1"))

	hub.BroadcastRoom("room-1", WSMessage{Type: "roster", Payload: json.RawMessage(`{"n":1}`)})
	msg := read(t, conn)
	assert.Equal(t, "roster", msg.Type)
	assert.JSONEq(t, `{"n":1}`, string(msg.Payload))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, WSMessage{Type: "decision", Payload: json.RawMessage(`{"choice":3}`)}))
	ev = handler.next(t, "message")
	assert.Equal(t, "decision", ev.msg.Type)

	conn.Close(websocket.StatusNormalClosure, "")
	handler.next(t, "disconnected")
	_, ok := hub.GetClient("p1")
	assert.False(t, ok)
}

func TestHubTokenIdentity(t *testing.T) {
	_, handler, url := startHub(t, false, nil)
	token, err := auth.Issue(testSecret, auth.JoinRequest{ParticipantID: "p9", Generation: 1, Variation: 2}, time.Minute, time.Now())
	require.NoError(t, err)

	dial(t, url+"?token="+token)
	ev := handler.next(t, "connected")
	assert.Equal(t, "p9", ev.client.ID)
	assert.Equal(t, room.ConditionKey{Generation: 1, Variation: 2}, ev.client.Condition)
}

func TestHubRejectsMissingIdentity(t *testing.T) {
	_, _, url := startHub(t, false, nil)

	for _, q := range []string{"", "?participantId=p1&generation=1&variation=1", "?token=garbage"} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, resp, err := websocket.Dial(ctx, url+q, nil)
		cancel()
		require.Error(t, err, q)
		require.NotNil(t, resp, q)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, q)
	}
}

func TestHubReconnectReplacesClient(t *testing.T) {
	hub, handler, url := startHub(t, true, nil)
	u := url + "?participantId=p1&generation=1&variation=1"

	first := dial(t, u)
	firstClient := handler.next(t, "connected").client
	dial(t, u)

	// the replaced socket is closed by the hub
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := first.Read(ctx)
	require.Error(t, err)

	// the old connection's teardown races the new one's handshake
	got := map[string]*Client{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-handler.events:
			got[ev.kind] = ev.client
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for hub events")
		}
	}
	require.Contains(t, got, "connected")
	require.Contains(t, got, "disconnected")
	secondClient := got["connected"]
	assert.NotEqual(t, firstClient.ConnID, secondClient.ConnID)
	assert.Equal(t, firstClient.ConnID, got["disconnected"].ConnID)

	cur, ok := hub.GetClient("p1")
	require.True(t, ok)
	assert.Equal(t, secondClient.ConnID, cur.ConnID)
	assert.Equal(t, 1, hub.RoomSize("room-1"))
}

func TestHubRefusedConnection(t *testing.T) {
	hub, _, url := startHub(t, true, errors.New("room registry is full"))

	conn := dial(t, url+"?participantId=p1&generation=1&variation=1")
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.True(t, strings.Contains(string(msg.Payload), "registry is full"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	_, ok := hub.GetClient("p1")
	assert.False(t, ok)
}
