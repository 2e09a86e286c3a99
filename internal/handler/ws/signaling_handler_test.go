package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtc-coordinator/internal/domain"
	"rtc-coordinator/internal/middleware"
	"rtc-coordinator/internal/service/call"
)

const testOrigin = "http://localhost:3000"

type testEnv struct {
	server   *httptest.Server
	service  *call.Service
	registry *call.Registry
}

func newTestEnv(t *testing.T, maxConnections int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := call.NewRegistry(nil)
	service := call.NewService(call.NewSessionStore(), registry, nil, call.DefaultOptions())
	signaling := NewSignalingServer(service, registry, SignalingConfig{
		MaxConnections: maxConnections,
		SendBufferSize: 16,
		AllowedOrigins: []string{testOrigin},
	})

	router := gin.New()
	router.GET("/ws/signaling", middleware.GatewayIdentity(), signaling.ServeWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, service: service, registry: registry}
}

func (e *testEnv) dial(t *testing.T, userID int64) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/signaling"
	header := http.Header{}
	header.Set(middleware.UserIDHeader, fmt.Sprint(userID))
	header.Set("Origin", testOrigin)
	return websocket.DefaultDialer.Dial(url, header)
}

func (e *testEnv) connect(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	conn, _, err := e.dial(t, userID)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.registry.IsConnected(userID) }, 2*time.Second, 10*time.Millisecond)
	return conn
}

// readUntil reads frames until match returns true or the deadline passes
func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(msg) {
			return msg
		}
	}
}

func roomEvent(eventType string, userID float64) func(map[string]any) bool {
	return func(msg map[string]any) bool {
		event, ok := msg["event"].(map[string]any)
		if msg["type"] != call.EventRoomBroadcast || !ok || event["type"] != eventType {
			return false
		}
		return userID == 0 || event["userId"] == userID
	}
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestSignaling_CallFlowOverWebSocket(t *testing.T) {
	env := newTestEnv(t, 10)
	caller := env.connect(t, 1)
	callee := env.connect(t, 2)

	session, err := env.service.InitiateCall(context.Background(), 1, 2, domain.CallTypeVideo)
	require.NoError(t, err)

	ring := readUntil(t, callee, func(m map[string]any) bool { return m["type"] == call.EventIncomingCall })
	assert.Equal(t, session.RoomID, ring["roomId"])

	send(t, caller, map[string]any{"type": "join", "roomId": session.RoomID})
	readUntil(t, caller, roomEvent(call.EventParticipantJoined, 1))

	send(t, callee, map[string]any{"type": "join", "roomId": session.RoomID})
	readUntil(t, callee, roomEvent(call.EventParticipantJoined, 2))

	send(t, caller, map[string]any{
		"type":   "offer",
		"roomId": session.RoomID,
		"data":   map[string]any{"sdp": "v=0"},
	})
	offer := readUntil(t, callee, func(m map[string]any) bool { return m["type"] == call.SignalOffer })
	assert.Equal(t, float64(1), offer["userId"])
	assert.Equal(t, map[string]any{"sdp": "v=0"}, offer["data"])

	// Dropping the socket leaves the room, which ends the 1:1 call
	require.NoError(t, callee.Close())
	ended := readUntil(t, caller, roomEvent(call.EventCallEnded, 0))
	event := ended["event"].(map[string]any)
	assert.Equal(t, float64(2), event["endedBy"])

	assert.Eventually(t, func() bool { return !env.registry.IsConnected(2) }, 2*time.Second, 10*time.Millisecond)
	_, err = env.service.GetSession(session.RoomID)
	assert.Error(t, err)
}

func TestSignaling_MalformedFrameKeepsConnection(t *testing.T) {
	env := newTestEnv(t, 10)
	conn := env.connect(t, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	session, err := env.service.CreateConferenceCall(context.Background(), 2, []int64{1}, "standup")
	require.NoError(t, err)
	invite := readUntil(t, conn, func(m map[string]any) bool { return m["type"] == call.EventConferenceInvitation })
	assert.Equal(t, session.RoomID, invite["roomId"])
}

func TestSignaling_NewConnectionDisplacesOld(t *testing.T) {
	env := newTestEnv(t, 10)
	first := env.connect(t, 1)
	second := env.connect(t, 1)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	assert.True(t, env.registry.IsConnected(1))
	assert.Equal(t, 1, env.registry.Count())

	_, err := env.service.InitiateCall(context.Background(), 2, 1, domain.CallTypeAudio)
	require.NoError(t, err)
	readUntil(t, second, func(m map[string]any) bool { return m["type"] == call.EventIncomingCall })
}

func TestSignaling_Rejections(t *testing.T) {
	env := newTestEnv(t, 1)
	env.connect(t, 1)

	_, resp, err := env.dial(t, 2)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/signaling"
	_, resp, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{testOrigin}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignaling_RejectsUnknownOrigin(t *testing.T) {
	env := newTestEnv(t, 10)
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/signaling"

	header := http.Header{}
	header.Set(middleware.UserIDHeader, "1")
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.False(t, env.registry.IsConnected(1))
}

func TestWSChannel_SendAfterClose(t *testing.T) {
	ch := newWSChannel(nil, 1)

	assert.NoError(t, ch.Send([]byte("a")))
	assert.ErrorIs(t, ch.Send([]byte("b")), errSendQueueFull)

	ch.Close()
	ch.Close()
	assert.False(t, ch.IsOpen())
	assert.ErrorIs(t, ch.Send([]byte("c")), errChannelClosed)
}
