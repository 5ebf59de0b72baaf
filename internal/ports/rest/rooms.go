package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"blackball/internal/room"
)

// RoomSummary is the REST view of a room: enough to render a lobby list,
// nothing about hands or scores.
type RoomSummary struct {
	Code       string   `json:"code"`
	Players    []string `json:"players"`
	MaxPlayers int      `json:"max_players"`
	State      string   `json:"state"`
}

type createRoomRequest struct {
	LobbyCode string `json:"lobby_code"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// Handler serves the room management endpoints alongside the websocket
// gateway.
type Handler struct {
	registry *room.Registry
	logger   *zap.Logger
}

func NewHandler(registry *room.Registry, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Routes mounts the API. The websocket handler is attached by the caller so
// this package stays free of upgrade concerns.
func (h *Handler) Routes(allowedOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", h.health)
	r.Route("/rooms", func(r chi.Router) {
		r.Get("/", h.listRooms)
		r.Post("/", h.createRoom)
		r.Get("/{code}", h.getRoom)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := h.registry.List()
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, summarize(r))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LobbyCode == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "lobby_code is required")
		return
	}

	created, err := h.registry.Create(req.LobbyCode)
	if errors.Is(err, room.ErrRoomExists) {
		writeError(w, http.StatusConflict, "conflict", "room "+req.LobbyCode+" already exists")
		return
	}
	if err != nil {
		h.logger.Error("create room", zap.String("lobby", req.LobbyCode), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not create room")
		return
	}
	writeJSON(w, http.StatusCreated, summarize(created))
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	rm, ok := h.registry.Get(code)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no room with code "+code)
		return
	}
	writeJSON(w, http.StatusOK, summarize(rm))
}

func summarize(r *room.Room) RoomSummary {
	snap := r.Snapshot()
	players := make([]string, 0, len(snap.Players))
	for id := range snap.Players {
		players = append(players, id)
	}
	sort.Strings(players)
	return RoomSummary{
		Code:       snap.LobbyCode,
		Players:    players,
		MaxPlayers: snap.MaxPlayers,
		State:      string(snap.State),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Type: kind, Message: msg}})
}
