package devserver

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
)

// client is one WebSocket connection to the dev server.
type client struct {
	id     string
	server *Server
	ws     *websocket.Conn
	send   chan []byte

	// room and user are set once the connection creates or joins a room;
	// guarded by server.mu.
	room *room
	user *roomUser
}

// readPump reads command frames until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.server.dropClient(c)
		c.ws.Close()
	}()

	cfg := c.server.cfg
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.id).Msg("unexpected WebSocket close")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		cmd, err := protocol.DecodeCommand(raw)
		if err != nil {
			log.Warn().Err(err).Str("connection_id", c.id).Msg("dropping unparseable command")
			continue
		}
		c.server.handleCommand(c, cmd)
	}
}

// writePump serializes outbound frames and keeps the connection alive with
// pings.
func (c *client) writePump() {
	ticker := time.NewTicker(c.server.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to write frame")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver queues one event for this connection, closing it if the buffer is
// full (slow or dead peer).
func (c *client) deliver(ev protocol.Event) {
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.EventType())).Msg("failed to encode event")
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("connection_id", c.id).Msg("send buffer full, closing connection")
		c.ws.Close()
	}
}

// handleCommand applies one client command to the registry and broadcasts
// the resulting room state.
func (s *Server) handleCommand(c *client, cmd protocol.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := cmd.(type) {
	case protocol.CreateRoomCommand:
		s.createRoom(c, m)
	case protocol.JoinRoomCommand:
		s.joinRoom(c, m)
	case protocol.VoteCommand:
		s.castVote(c, m)
	case protocol.RevealCommand:
		s.reveal(c)
	case protocol.ResetCommand:
		s.reset(c)
	case protocol.SpectateCommand:
		s.spectate(c, m)
	default:
		log.Warn().Str("command_type", string(cmd.CommandType())).Msg("unknown command - ignoring")
	}
}

func (s *Server) createRoom(c *client, m protocol.CreateRoomCommand) {
	owner := &roomUser{
		id:    uuid.New().String(),
		name:  m.UserName,
		emoji: m.OwnerEmoji,
	}
	rm := &room{
		id:        uuid.New().String()[:8],
		name:      m.RoomName,
		ownerID:   owner.id,
		cards:     append([]protocol.CardValue(nil), m.Cards...),
		createdAt: s.clock.Now(),
		users:     []*roomUser{owner},
		conns:     map[*client]*roomUser{c: owner},
	}
	s.rooms[rm.id] = rm
	c.room = rm
	c.user = owner

	c.deliver(protocol.RoomCreatedEvent{Room: rm.payloadFor(owner.id), OwnerID: owner.id})
	log.Info().Str("room_id", rm.id).Str("owner_id", owner.id).Str("room_name", rm.name).Msg("room created")
}

func (s *Server) joinRoom(c *client, m protocol.JoinRoomCommand) {
	rm, exists := s.rooms[m.RoomID]
	if !exists {
		c.deliver(protocol.RoomErrorEvent{Message: "room not found"})
		return
	}

	user := &roomUser{
		id:    uuid.New().String(),
		name:  rm.dedupName(m.UserName),
		emoji: m.Emoji,
	}
	rm.users = append(rm.users, user)
	rm.conns[c] = user
	c.room = rm
	c.user = user

	c.deliver(protocol.RoomJoinedEvent{Room: rm.payloadFor(user.id), UserID: user.id})
	s.broadcastUpdated(rm)
	log.Info().Str("room_id", rm.id).Str("user_id", user.id).Str("user_name", user.name).Msg("user joined room")
}

func (s *Server) castVote(c *client, m protocol.VoteCommand) {
	if c.room == nil || c.user == nil {
		c.deliver(protocol.RoomErrorEvent{Message: "not in a room"})
		return
	}
	if c.room.revealed {
		c.deliver(protocol.RoomErrorEvent{Message: "votes already revealed"})
		return
	}
	vote := m.Vote
	c.user.vote = &vote
	s.broadcastUpdated(c.room)
}

func (s *Server) reveal(c *client) {
	if c.room == nil {
		c.deliver(protocol.RoomErrorEvent{Message: "not in a room"})
		return
	}
	c.room.revealed = true
	s.broadcast(c.room, protocol.RoomRevealedEvent{})
	s.broadcastUpdated(c.room)
	log.Info().Str("room_id", c.room.id).Msg("votes revealed")
}

func (s *Server) reset(c *client) {
	if c.room == nil {
		c.deliver(protocol.RoomErrorEvent{Message: "not in a room"})
		return
	}
	c.room.revealed = false
	for _, u := range c.room.users {
		u.vote = nil
	}
	s.broadcast(c.room, protocol.RoomResetEvent{})
	s.broadcastUpdated(c.room)
	log.Info().Str("room_id", c.room.id).Msg("voting reset")
}

func (s *Server) spectate(c *client, m protocol.SpectateCommand) {
	if c.room == nil || c.user == nil {
		c.deliver(protocol.RoomErrorEvent{Message: "not in a room"})
		return
	}
	c.user.spectator = m.Spectator
	if m.Spectator {
		c.user.vote = nil
	}
	s.broadcastUpdated(c.room)
}

// broadcastUpdated sends each connection its personalized room:updated:
// while votes are hidden every recipient only sees their own value.
func (s *Server) broadcastUpdated(rm *room) {
	for conn, user := range rm.conns {
		conn.deliver(protocol.RoomUpdatedEvent{Room: rm.payloadFor(user.id)})
	}
}

// broadcast sends the same event to every connection in the room.
func (s *Server) broadcast(rm *room, ev protocol.Event) {
	for conn := range rm.conns {
		conn.deliver(ev)
	}
}

// dropClient detaches a closing connection from its room, removing the room
// entirely once empty.
func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(c.send)
	rm := c.room
	if rm == nil {
		return
	}
	delete(rm.conns, c)
	if c.user != nil {
		rm.removeUser(c.user.id)
	}
	c.room = nil
	c.user = nil

	if len(rm.conns) == 0 {
		delete(s.rooms, rm.id)
		log.Info().Str("room_id", rm.id).Msg("room removed")
		return
	}
	s.broadcastUpdated(rm)
}
