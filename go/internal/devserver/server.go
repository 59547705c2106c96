// Package devserver is an in-memory reference implementation of the room
// protocol, used by integration tests and local development. It is a single
// process with no persistence; the production room registry is an external
// service.
package devserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
)

// Config holds connection and HTTP settings for the dev server.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	AllowedOrigins  []string
}

// DefaultConfig returns settings suitable for local development.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		AllowedOrigins:  []string{"*"},
	}
}

// Server owns the room registry and all live connections.
type Server struct {
	cfg      Config
	clock    clockwork.Clock
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the clock used for room timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// NewServer creates a dev server with no rooms.
func NewServer(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*room),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP surface: the WebSocket endpoint at /ws and the
// room lookup side channel at /rooms/{id}, both behind CORS so browser
// clients on another origin can reach them.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/rooms/", s.handleRoomLookup)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(mux)
}

// handleWS upgrades the connection and starts its pumps.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	c := &client{
		id:     uuid.New().String(),
		server: s,
		ws:     ws,
		send:   make(chan []byte, 256),
	}

	go c.writePump()
	go c.readPump()

	log.Info().Str("connection_id", c.id).Msg("WebSocket connection established")
}

// handleRoomLookup serves GET /rooms/{id} with the masked room image, or 404
// when the room does not exist.
func (s *Server) handleRoomLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roomID := strings.TrimPrefix(r.URL.Path, "/rooms/")
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	rm, exists := s.rooms[roomID]
	var payload protocol.RoomPayload
	if exists {
		payload = rm.payloadFor("")
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "room not found"})
		return
	}
	json.NewEncoder(w).Encode(map[string]protocol.RoomPayload{"room": payload})
}

// RoomCount returns the number of live rooms. Useful for tests and stats.
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
