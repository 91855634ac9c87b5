package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tokenIdentity struct {
	id   uuid.UUID
	name string
}

// mapVerifier resolves static tokens, standing in for the JWT service.
type mapVerifier map[string]tokenIdentity

func (v mapVerifier) VerifyToken(token string) (uuid.UUID, string, error) {
	ident, ok := v[token]
	if !ok {
		return uuid.Nil, "", errors.New("invalid token")
	}
	return ident.id, ident.name, nil
}

func newWSFixture(t *testing.T, verifier TokenVerifier, f *fixture) *httptest.Server {
	t.Helper()
	handler := NewHandler(f.registry, f.router, verifier, f.resolver, f.policy, nil, time.Minute, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func TestUpgradeRejectedWithoutValidToken(t *testing.T) {
	f := newFixture()
	srv := newWSFixture(t, mapVerifier{}, f)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=wrong", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// An unauthenticated request must never create a registry entry.
	assert.Equal(t, 0, f.registry.Len())
}

// The end-to-end scenario: two clients join a public room, one sends a
// message, both receive it with the server-assigned id and timestamp.
func TestTwoClientsExchangeMessages(t *testing.T) {
	f := newFixture(publicRoom("general"))
	verifier := mapVerifier{
		"token-a": {uuid.New(), "alice"},
		"token-b": {uuid.New(), "bob"},
	}
	srv := newWSFixture(t, verifier, f)

	connA := dialWS(t, srv, "token-a")
	frame := readOfType(t, connA, "room_joined", func() {
		writeFrame(t, connA, `{"type":"join_room","room":"general"}`)
	})
	assert.Equal(t, "general", frame["room"])
	assert.Equal(t, "alice", frame["username"])

	connB := dialWS(t, srv, "token-b")
	frame = readOfType(t, connB, "room_joined", func() {
		writeFrame(t, connB, `{"type":"join_room","room":"general"}`)
	})
	assert.Equal(t, "bob", frame["username"])

	// Alice sees Bob arrive.
	frame = readOfType(t, connA, "user_joined", nil)
	assert.Equal(t, "bob", frame["username"])

	writeFrame(t, connA, `{"type":"send_message","room":"general","content":"hello"}`)
	for _, conn := range []*websocket.Conn{connA, connB} {
		frame = readOfType(t, conn, "message", nil)
		assert.Equal(t, "hello", frame["content"])
		assert.Equal(t, "alice", frame["username"])
		assert.NotEmpty(t, frame["id"])
		assert.NotEmpty(t, frame["timestamp"])
	}

	require.Equal(t, 1, f.messages.count(), "exactly one row persisted")
	assert.Equal(t, 2, f.registry.Len())
}

func TestPingPongOverSocket(t *testing.T) {
	f := newFixture()
	srv := newWSFixture(t, mapVerifier{"tok": {uuid.New(), "alice"}}, f)
	conn := dialWS(t, srv, "tok")

	writeFrame(t, conn, `{"type":"ping","timestamp":42}`)
	frame := readOfType(t, conn, "pong", nil)
	assert.EqualValues(t, 42, frame["timestamp"])
}

func TestRegistryCleanupOnClientClose(t *testing.T) {
	f := newFixture(publicRoom("general"))
	srv := newWSFixture(t, mapVerifier{"tok": {uuid.New(), "alice"}}, f)
	conn := dialWS(t, srv, "tok")

	readOfType(t, conn, "room_joined", func() {
		writeFrame(t, conn, `{"type":"join_room","room":"general"}`)
	})
	require.Eventually(t, func() bool { return f.registry.Len() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return f.registry.Len() == 0 },
		2*time.Second, 10*time.Millisecond,
		"connection must be removed from the registry on close")

	// Fanning out into the vacated room reaches nobody and does not fail.
	f.registry.Fanout("general", []byte("x"))
}

// A panicking handler must tear the session down like any other exit,
// leaving no registry entry behind and no other session affected.
func TestRegistryCleanupOnHandlerPanic(t *testing.T) {
	f := newFixture(publicRoom("general"))
	verifier := mapVerifier{
		"tok-a": {uuid.New(), "alice"},
		"tok-b": {uuid.New(), "bob"},
	}
	srv := newWSFixture(t, verifier, f)

	bystander := dialWS(t, srv, "tok-b")
	readOfType(t, bystander, "room_joined", func() {
		writeFrame(t, bystander, `{"type":"join_room","room":"general"}`)
	})

	f.policy.panicking = true
	victim := dialWS(t, srv, "tok-a")
	require.Eventually(t, func() bool { return f.registry.Len() == 2 }, time.Second, 10*time.Millisecond)

	writeFrame(t, victim, `{"type":"join_room","room":"general"}`)

	require.Eventually(t, func() bool { return f.registry.Len() == 1 },
		2*time.Second, 10*time.Millisecond,
		"panicking session must be cleaned up")

	// The bystander's session still works.
	f.policy.panicking = false
	writeFrame(t, bystander, `{"type":"ping","timestamp":1}`)
	frame := readOfType(t, bystander, "pong", nil)
	assert.EqualValues(t, 1, frame["timestamp"])
}

// readOfType optionally triggers an action, then reads frames until one
// of the wanted type arrives, skipping unrelated presence traffic.
func readOfType(t *testing.T, conn *websocket.Conn, frameType string, action func()) map[string]any {
	t.Helper()
	if action != nil {
		action()
	}
	for i := 0; i < 10; i++ {
		frame := readFrame(t, conn)
		if frame["type"] == frameType {
			return frame
		}
	}
	t.Fatalf("no %q frame received", frameType)
	return nil
}
