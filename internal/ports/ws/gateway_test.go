package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blackball/internal/domain"
	"blackball/internal/room"
)

type testSecrets struct{}

func (testSecrets) Mint(username, lobby string) (string, error) {
	return "secret-" + username + "-" + lobby, nil
}

func (testSecrets) Verify(secret, username, lobby string) bool {
	return secret == "secret-"+username+"-"+lobby
}

func newTestGateway(t *testing.T) (*httptest.Server, *room.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := room.NewRegistry(ctx, room.Options{
		MaxPlayers:      7,
		EventBatchSize:  5,
		InboundQueue:    16,
		BroadcastBuffer: 16,
	}, testSecrets{}, zap.NewNop())

	gw := NewGateway(registry, zap.NewNop(), func(r *http.Request) bool { return true })
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil decodes frames until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]json.RawMessage) bool) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame map[string]json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if match(frame) {
			return frame
		}
	}
}

func sendConnect(t *testing.T, conn *websocket.Conn, c domain.Connect) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(c))
}

func sendAction(t *testing.T, conn *websocket.Conn, user string, action domain.GameAction) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(domain.GameMessage{
		Username:  user,
		Message:   domain.ActionEnvelope{Action: action, Origin: domain.PlayerActioner(user)},
		Timestamp: time.Now(),
	}))
}

func TestConnectIssuesSecretAndSnapshot(t *testing.T) {
	srv, registry := newTestGateway(t)
	conn := dial(t, srv)

	sendConnect(t, conn, domain.Connect{Username: "alice", Channel: "room1"})

	grant := readUntil(t, conn, func(f map[string]json.RawMessage) bool {
		_, ok := f["client_secret"]
		return ok
	})
	var secret string
	require.NoError(t, json.Unmarshal(grant["client_secret"], &secret))
	assert.NotEmpty(t, secret)

	snap := readUntil(t, conn, func(f map[string]json.RawMessage) bool {
		_, ok := f["lobby_code"]
		return ok
	})
	var code string
	require.NoError(t, json.Unmarshal(snap["lobby_code"], &code))
	assert.Equal(t, "room1", code)
	assert.NotContains(t, snap, "deck")

	_, ok := registry.Get("room1")
	assert.True(t, ok, "first connect should create the room")
}

func TestDuplicateUsernameKeepsConnectionOpen(t *testing.T) {
	srv, _ := newTestGateway(t)

	first := dial(t, srv)
	sendConnect(t, first, domain.Connect{Username: "alice", Channel: "room1"})
	readUntil(t, first, func(f map[string]json.RawMessage) bool {
		_, ok := f["client_secret"]
		return ok
	})

	second := dial(t, srv)
	sendConnect(t, second, domain.Connect{Username: "alice", Channel: "room1"})
	rejection := readUntil(t, second, func(f map[string]json.RawMessage) bool {
		_, ok := f["message"]
		return ok
	})
	var msg string
	require.NoError(t, json.Unmarshal(rejection["message"], &msg))
	assert.Contains(t, msg, "already taken")

	// Still usable: retry with a free username on the same socket.
	sendConnect(t, second, domain.Connect{Username: "bob", Channel: "room1"})
	readUntil(t, second, func(f map[string]json.RawMessage) bool {
		_, ok := f["client_secret"]
		return ok
	})
}

func TestRejectedActionBroadcastsNotice(t *testing.T) {
	srv, _ := newTestGateway(t)
	conn := dial(t, srv)

	sendConnect(t, conn, domain.Connect{Username: "alice", Channel: "room1"})
	readUntil(t, conn, func(f map[string]json.RawMessage) bool {
		_, ok := f["client_secret"]
		return ok
	})

	// A solo StartGame is refused; the player sees the notice and stays
	// connected.
	sendAction(t, conn, "alice", domain.StartGameAction())
	readUntil(t, conn, func(f map[string]json.RawMessage) bool {
		raw, ok := f["message"]
		if !ok {
			return false
		}
		var msg string
		return json.Unmarshal(raw, &msg) == nil && strings.Contains(msg, "fewer than 2")
	})

	sendAction(t, conn, "alice", domain.CurrentStateAction())
	readUntil(t, conn, func(f map[string]json.RawMessage) bool {
		_, ok := f["lobby_code"]
		return ok
	})
}

func TestRoomScopedRouteUpgrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := room.NewRegistry(ctx, room.Options{
		MaxPlayers:      7,
		EventBatchSize:  5,
		InboundQueue:    16,
		BroadcastBuffer: 16,
	}, testSecrets{}, zap.NewNop())
	gw := NewGateway(registry, zap.NewNop(), func(r *http.Request) bool { return true })

	router := chi.NewRouter()
	router.Handle("/ws", gw)
	router.Handle("/rooms/{code}/ws", gw)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	for _, path := range []string{"/ws", "/rooms/room1/ws"} {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err, "dial %s", path)
		sendConnect(t, conn, domain.Connect{Username: "player-" + path, Channel: "room1"})
		readUntil(t, conn, func(f map[string]json.RawMessage) bool {
			_, ok := f["client_secret"]
			return ok
		})
		_ = conn.Close()
	}
}

func TestReconnectWithSecretRebinds(t *testing.T) {
	srv, registry := newTestGateway(t)

	first := dial(t, srv)
	sendConnect(t, first, domain.Connect{Username: "alice", Channel: "room1"})
	grant := readUntil(t, first, func(f map[string]json.RawMessage) bool {
		_, ok := f["client_secret"]
		return ok
	})
	var secret string
	require.NoError(t, json.Unmarshal(grant["client_secret"], &secret))
	require.NoError(t, first.Close())

	second := dial(t, srv)
	sendConnect(t, second, domain.Connect{Username: "alice", Channel: "room1", Secret: secret})
	regrant := readUntil(t, second, func(f map[string]json.RawMessage) bool {
		_, ok := f["client_secret"]
		return ok
	})
	var again string
	require.NoError(t, json.Unmarshal(regrant["client_secret"], &again))
	assert.Equal(t, secret, again, "reconnect should re-grant the same secret")

	// The unicast grant reaching the second socket proves the player was
	// rebound to its connection address; alice is still the only player.
	rm, ok := registry.Get("room1")
	require.True(t, ok)
	snap := rm.Snapshot()
	require.Contains(t, snap.Players, "alice")
	assert.Len(t, snap.Players, 1)
}

func TestMalformedFrameIsDropped(t *testing.T) {
	srv, _ := newTestGateway(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	// The connection survives and a later Connect still works.
	sendConnect(t, conn, domain.Connect{Username: "alice", Channel: "room1"})
	readUntil(t, conn, func(f map[string]json.RawMessage) bool {
		_, ok := f["client_secret"]
		return ok
	})
}
