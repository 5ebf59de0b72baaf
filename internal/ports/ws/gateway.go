package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"blackball/internal/domain"
	"blackball/internal/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Gateway upgrades HTTP requests to websocket sessions and bridges them to
// room authority tasks: one read pump and one write pump per connection,
// raced so either side failing tears both down.
type Gateway struct {
	registry *room.Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewGateway(registry *room.Registry, logger *zap.Logger, checkOrigin func(*http.Request) bool) *Gateway {
	return &Gateway{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// session is the per-connection state. addr is a synthetic connection
// address used to target unicast results; it is never shown to other
// players.
type session struct {
	conn *websocket.Conn
	addr string
	log  *zap.Logger

	// Owned by the read pump; the write pump learns about (re)subscriptions
	// only through subCh.
	roomHandle *room.Room
	unsub      func()
	lobby      string
	username   string
	subCh      chan (<-chan domain.Result)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	addr := uuid.NewString()
	s := &session{
		conn:  conn,
		addr:  addr,
		log:   g.logger.With(zap.String("conn", addr)),
		subCh: make(chan (<-chan domain.Result), 1),
	}
	defer s.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Write pump; its exit cancels the reader via the closed socket.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx)
	}()

	s.readPump(ctx, g.registry)
	cancel()
	<-writerDone
}

func (s *session) close() {
	if s.unsub != nil {
		s.unsub()
	}
	_ = s.conn.Close()
}

// readPump parses inbound frames and forwards them to the room. Before a
// Connect frame is seen, everything else is dropped. Malformed frames are
// logged and skipped; the connection stays open.
func (s *session) readPump(ctx context.Context, registry *room.Registry) {
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		if msg, ok := parseGameMessage(data); ok {
			if s.roomHandle == nil {
				s.log.Debug("game message before connect, dropped",
					zap.String("username", msg.Username))
				continue
			}
			if err := s.roomHandle.Enqueue(ctx, domain.Event{Addr: s.addr, Msg: &msg}); err != nil {
				return
			}
			continue
		}

		var c domain.Connect
		if err := json.Unmarshal(data, &c); err != nil || c.Username == "" || c.Channel == "" {
			s.log.Debug("malformed frame dropped", zap.ByteString("frame", data))
			continue
		}
		if err := s.handleConnect(ctx, registry, c); err != nil {
			return
		}
	}
}

// handleConnect binds (or rebinds) the session to a room and enqueues the
// join for the authority task to negotiate. A rejected join leaves the
// subscription in place so the client can retry with another username.
func (s *session) handleConnect(ctx context.Context, registry *room.Registry, c domain.Connect) error {
	if s.roomHandle == nil || s.lobby != c.Channel {
		// The new subscription reaches the write pump before the old one is
		// cancelled, so a closed stream with no replacement pending always
		// means the room itself went away.
		s.roomHandle = registry.GetOrCreate(c.Channel)
		results, unsub := s.roomHandle.Subscribe()
		select {
		case s.subCh <- results:
		case <-ctx.Done():
			unsub()
			return ctx.Err()
		}
		if s.unsub != nil {
			s.unsub()
		}
		s.unsub = unsub
		s.lobby = c.Channel
	}
	s.username = c.Username
	s.log.Info("connect requested",
		zap.String("username", s.username),
		zap.String("lobby", s.lobby))
	return s.roomHandle.Enqueue(ctx, domain.Event{Addr: s.addr, Join: &c})
}

// writePump forwards room results addressed to this connection and keeps the
// socket alive with pings. Broadcasts have no recipient; unicasts must match
// our connection address.
func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// Nil until the first Connect subscribes us to a room.
	var results <-chan domain.Result

	for {
		select {
		case <-ctx.Done():
			return
		case results = <-s.subCh:
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case res, ok := <-results:
			if !ok {
				select {
				case results = <-s.subCh:
					// Rebind to another room; the old stream just ended.
					continue
				default:
				}
				// Room reaped underneath us.
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "room closed"))
				return
			}
			if res.Recipient != "" && res.Recipient != s.addr {
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(res.Payload); err != nil {
				return
			}
		}
	}
}

// parseGameMessage reports whether data is a well-formed game frame. A frame
// whose action fails to decode is not a game message; the caller will try it
// as a Connect instead.
func parseGameMessage(data []byte) (domain.GameMessage, bool) {
	var probe struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || len(probe.Message) == 0 {
		return domain.GameMessage{}, false
	}
	var msg domain.GameMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Username == "" {
		return domain.GameMessage{}, false
	}
	return msg, true
}
