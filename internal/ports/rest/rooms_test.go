package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blackball/internal/room"
)

type testSecrets struct{}

func (testSecrets) Mint(username, lobby string) (string, error) { return "s-" + username, nil }
func (testSecrets) Verify(secret, username, lobby string) bool  { return secret == "s-"+username }

func newTestServer(t *testing.T) (*httptest.Server, *room.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := room.NewRegistry(ctx, room.Options{
		MaxPlayers:      7,
		EventBatchSize:  5,
		InboundQueue:    16,
		BroadcastBuffer: 16,
	}, testSecrets{}, zap.NewNop())

	h := NewHandler(registry, zap.NewNop())
	srv := httptest.NewServer(h.Routes([]string{"*"}))
	t.Cleanup(srv.Close)
	return srv, registry
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateRoom(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/rooms", "application/json",
		strings.NewReader(`{"lobby_code":"abc"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var summary RoomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, "abc", summary.Code)
	assert.Equal(t, "pregame", summary.State)
	assert.Equal(t, 7, summary.MaxPlayers)
	assert.Empty(t, summary.Players)
}

func TestCreateRoomConflict(t *testing.T) {
	srv, registry := newTestServer(t)
	_, err := registry.Create("abc")
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/rooms", "application/json",
		strings.NewReader(`{"lobby_code":"abc"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "conflict", body.Error.Type)
}

func TestCreateRoomBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/rooms", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRoomNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/rooms/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not_found", body.Error.Type)
	assert.Contains(t, body.Error.Message, "nope")
}

func TestListRooms(t *testing.T) {
	srv, registry := newTestServer(t)
	registry.GetOrCreate("b-room")
	registry.GetOrCreate("a-room")

	resp, err := http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rooms []RoomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, "a-room", rooms[0].Code)
	assert.Equal(t, "b-room", rooms[1].Code)
}
