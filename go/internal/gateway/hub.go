package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/marazzai/scoreboard/go/internal/command"
	"github.com/marazzai/scoreboard/go/internal/match"
)

// CommandTap receives a copy of every one-shot command the hub fans out,
// for out-of-process relays. Optional.
type CommandTap interface {
	PublishCommand(cmd command.Command)
}

// Hub fans match state and one-shot commands out to connected peers.
//
// Snapshots go to every peer regardless of room so that all admin consoles
// converge on the same state; one-shot commands go to the displays room
// only. A single broadcast goroutine drains one ordered channel, so every
// peer observes snapshots in the order they were produced.
type Hub struct {
	store  *match.Store
	router *command.Router

	mu       sync.RWMutex
	sessions map[*Session]bool
	rooms    map[string]map[*Session]bool

	upgrader    websocket.Upgrader
	config      ConnectionConfig
	broadcastCh chan outbound

	tap CommandTap
}

// outbound is one queued fan-out. An empty room targets every session.
type outbound struct {
	room string
	data []byte
}

// Session is one connected peer, admin console or display surface alike.
type Session struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	hub  *Hub

	// done is closed exactly once when the session is unregistered. The
	// Send channel itself is never closed: fan-out may still be holding a
	// reference to a session that just tore down, and a send to a live
	// buffered channel is harmless where a send to a closed one is fatal.
	done     chan struct{}
	doneOnce sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds tunables for peer connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the defaults used in production.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  16 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Venue LAN deployment, any origin may connect.
			return true
		},
	}
}

// NewHub creates a hub over the given store and router. The hub registers
// itself as a store subscriber so every merge is rebroadcast.
func NewHub(store *match.Store, router *command.Router, config ConnectionConfig) *Hub {
	h := &Hub{
		store:    store,
		router:   router,
		sessions: make(map[*Session]bool),
		rooms:    make(map[string]map[*Session]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan outbound, 1000),
	}
	store.Subscribe(h.enqueueState)
	return h
}

// SetCommandTap attaches an optional relay that mirrors one-shot commands.
func (h *Hub) SetCommandTap(tap CommandTap) {
	h.tap = tap
}

// Run drains the broadcast queue until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("broadcast hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast hub shutting down")
			return
		case msg := <-h.broadcastCh:
			h.fanOut(msg)
		}
	}
}

// Upgrade upgrades an HTTP request to a scoreboard peer connection.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade connection: %w", err)
	}

	sess := &Session{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		hub:         h,
		done:        make(chan struct{}),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}
	h.register(sess)

	go sess.writePump()
	go sess.readPump()

	log.Info().Str("session_id", sess.ID).Str("remote", conn.RemoteAddr().String()).
		Msg("peer connected")
	return nil
}

// BroadcastState queues a snapshot for every connected peer.
func (h *Hub) BroadcastState(s match.State) {
	h.enqueueState(s)
}

// BroadcastCommand queues a one-shot command for the displays room and
// mirrors it to the relay tap when one is attached.
func (h *Hub) BroadcastCommand(cmd command.Command) {
	data, err := EncodeCommand(cmd)
	if err != nil {
		log.Error().Err(err).Str("cmd", cmd.Cmd).Msg("encode command broadcast")
		return
	}
	h.enqueue(outbound{room: RoomDisplays, data: data})
	if h.tap != nil {
		h.tap.PublishCommand(cmd)
	}
}

// enqueueState is the store subscriber: it runs under the store lock, so
// it must only enqueue and return.
func (h *Hub) enqueueState(s match.State) {
	data, err := EncodeState(s)
	if err != nil {
		log.Error().Err(err).Msg("encode state broadcast")
		return
	}
	h.enqueue(outbound{data: data})
}

func (h *Hub) enqueue(msg outbound) {
	select {
	case h.broadcastCh <- msg:
	default:
		log.Warn().Str("room", msg.room).Msg("broadcast channel full, dropping message")
	}
}

func (h *Hub) fanOut(msg outbound) {
	h.mu.RLock()
	var targets []*Session
	if msg.room == "" {
		for sess := range h.sessions {
			targets = append(targets, sess)
		}
	} else {
		for sess := range h.rooms[msg.room] {
			targets = append(targets, sess)
		}
	}
	h.mu.RUnlock()

	for _, sess := range targets {
		select {
		case sess.Send <- msg.data:
		default:
			// Slow or dead peer, drop it rather than stall the fan-out.
			log.Warn().Str("session_id", sess.ID).Msg("send buffer full, closing peer")
			h.unregister(sess)
			sess.Conn.Close()
		}
	}
}

func (h *Hub) register(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sess] = true
}

func (h *Hub) unregister(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[sess]; !ok {
		return
	}
	delete(h.sessions, sess)
	for room, members := range h.rooms {
		delete(members, sess)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	sess.doneOnce.Do(func() { close(sess.done) })
	log.Info().Str("session_id", sess.ID).Msg("peer disconnected")
}

// join admits a session to a named room. Joining the displays room pushes
// the current snapshot to that peer immediately: a late-joining display
// must not wait up to a second for the next tick to render correctly.
func (h *Hub) join(sess *Session, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Session]bool)
	}
	h.rooms[room][sess] = true
	h.mu.Unlock()

	log.Debug().Str("session_id", sess.ID).Str("room", room).Msg("peer joined room")

	if room == RoomDisplays {
		data, err := EncodeState(h.store.Get())
		if err != nil {
			log.Error().Err(err).Msg("encode resync snapshot")
			return
		}
		select {
		case sess.Send <- data:
		default:
			log.Warn().Str("session_id", sess.ID).Msg("resync dropped, send buffer full")
		}
	}
}

// handleInbound processes one message from a peer. Malformed frames and
// unknown events are dropped without a reply; there is no ack channel on
// this protocol.
func (h *Hub) handleInbound(sess *Session, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debug().Err(err).Str("session_id", sess.ID).Msg("dropping malformed frame")
		return
	}

	switch env.Event {
	case EventJoin:
		var p JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Debug().Err(err).Str("session_id", sess.ID).Msg("dropping malformed join")
			return
		}
		h.join(sess, p.Room)

	case EventUpdate:
		// Authoritative overwrite request: last writer wins per field.
		var p match.Partial
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Debug().Err(err).Str("session_id", sess.ID).Msg("dropping malformed update")
			return
		}
		h.store.Merge(p)

	case EventCmd:
		var cmd command.Command
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			log.Debug().Err(err).Str("session_id", sess.ID).Msg("dropping malformed command")
			return
		}
		// Relay to displays first so presentation triggers are not held
		// behind the state merge, then apply any state effect.
		h.BroadcastCommand(cmd)
		h.router.Apply(cmd)

	default:
		log.Debug().Str("event", env.Event).Str("session_id", sess.ID).
			Msg("ignoring unknown event")
	}
}

// Stats describes the connected peer population.
type Stats struct {
	TotalSessions int            `json:"total_sessions"`
	Rooms         map[string]int `json:"rooms"`
}

// GetStats returns a point-in-time view of connected peers.
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Stats{TotalSessions: len(h.sessions), Rooms: make(map[string]int)}
	for room, members := range h.rooms {
		s.Rooms[room] = len(members)
	}
	return s
}

// writePump serializes writes to the peer and keeps the ping cadence.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
		s.hub.unregister(s)
	}()

	for {
		select {
		case <-s.done:
			s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(s.hub.config.WriteTimeout))
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("session_id", s.ID).Msg("write to peer failed")
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(s.hub.config.WriteTimeout))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("session_id", s.ID).Msg("ping failed")
				return
			}
			s.LastPing = time.Now()
		}
	}
}

// readPump reads frames from the peer until the connection drops.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.Conn.Close()
	}()

	s.Conn.SetReadLimit(s.hub.config.MaxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(s.hub.config.ReadTimeout))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(s.hub.config.ReadTimeout))
		s.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("session_id", s.ID).Msg("unexpected peer close")
			}
			break
		}
		s.hub.handleInbound(s, message)
		s.Conn.SetReadDeadline(time.Now().Add(s.hub.config.ReadTimeout))
	}
}
