package protocol

// CommandType identifies a client-to-server command.
type CommandType string

const (
	CommandRoomCreate   CommandType = "room:create"
	CommandRoomJoin     CommandType = "room:join"
	CommandUserVote     CommandType = "user:vote"
	CommandRoomReveal   CommandType = "room:reveal"
	CommandRoomReset    CommandType = "room:reset"
	CommandUserSpectate CommandType = "user:spectate"
)

// EventType identifies a server-to-client event.
type EventType string

const (
	EventRoomCreated  EventType = "room:created"
	EventRoomJoined   EventType = "room:joined"
	EventRoomUpdated  EventType = "room:updated"
	EventRoomError    EventType = "room:error"
	EventError        EventType = "error"
	EventRoomRevealed EventType = "room:revealed"
	EventRoomReset    EventType = "room:reset"
)

// Command is a client-to-server message.
type Command interface {
	CommandType() CommandType
}

// Event is a server-to-client message.
type Event interface {
	EventType() EventType
}

// UserPayload is one roster entry on the wire. Vote is null while the
// participant has not voted or while the server withholds the value.
type UserPayload struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Emoji     string     `json:"emoji,omitempty"`
	Vote      *CardValue `json:"vote"`
	IsReady   bool       `json:"isReady"`
	Spectator bool       `json:"spectator,omitempty"`
}

// RoomPayload is the room object carried by room:created, room:joined and
// room:updated. Servers spell the deck either as a bare "cards" array or as
// a structured "cardDeck"; both are accepted.
type RoomPayload struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	OwnerID   string        `json:"ownerId"`
	Revealed  bool          `json:"revealed"`
	Cards     []CardValue   `json:"cards,omitempty"`
	CardDeck  *CardDeck     `json:"cardDeck,omitempty"`
	Users     []UserPayload `json:"users"`
	CreatedAt int64         `json:"createdAt,omitempty"`
}

// Deck normalizes the two deck spellings into a single CardDeck.
func (p RoomPayload) Deck() CardDeck {
	if p.CardDeck != nil {
		return *p.CardDeck
	}
	return CardDeck{Values: p.Cards}
}

// CreateRoomCommand opens a new room with the caller as owner.
type CreateRoomCommand struct {
	RoomName   string      `json:"roomName"`
	UserName   string      `json:"userName"`
	OwnerEmoji string      `json:"ownerEmoji,omitempty"`
	Cards      []CardValue `json:"cards"`
}

func (CreateRoomCommand) CommandType() CommandType { return CommandRoomCreate }

// JoinRoomCommand adds the caller to an existing room.
type JoinRoomCommand struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
	Emoji    string `json:"emoji,omitempty"`
}

func (JoinRoomCommand) CommandType() CommandType { return CommandRoomJoin }

// VoteCommand casts or replaces the caller's hidden vote.
type VoteCommand struct {
	Vote CardValue `json:"vote"`
}

func (VoteCommand) CommandType() CommandType { return CommandUserVote }

// RevealCommand makes all cast votes visible to the room.
type RevealCommand struct{}

func (RevealCommand) CommandType() CommandType { return CommandRoomReveal }

// ResetCommand clears every vote and hides them again.
type ResetCommand struct{}

func (ResetCommand) CommandType() CommandType { return CommandRoomReset }

// SpectateCommand toggles the caller between voter and spectator.
type SpectateCommand struct {
	Spectator bool `json:"spectator"`
}

func (SpectateCommand) CommandType() CommandType { return CommandUserSpectate }

// RoomCreatedEvent acknowledges room:create to the owner.
type RoomCreatedEvent struct {
	Room    RoomPayload `json:"room"`
	OwnerID string      `json:"ownerId"`
}

func (RoomCreatedEvent) EventType() EventType { return EventRoomCreated }

// RoomJoinedEvent acknowledges room:join to the joining user.
type RoomJoinedEvent struct {
	Room   RoomPayload `json:"room"`
	UserID string      `json:"userId"`
}

func (RoomJoinedEvent) EventType() EventType { return EventRoomJoined }

// RoomUpdatedEvent is broadcast to the whole room after any change.
type RoomUpdatedEvent struct {
	Room RoomPayload `json:"room"`
}

func (RoomUpdatedEvent) EventType() EventType { return EventRoomUpdated }

// RoomErrorEvent carries a room-scoped domain error ("room not found").
type RoomErrorEvent struct {
	Message string `json:"message"`
}

func (RoomErrorEvent) EventType() EventType { return EventRoomError }

// ErrorEvent carries a generic server error.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) EventType() EventType { return EventError }

// RoomRevealedEvent signals the reveal transition. The authoritative roster
// follows in the next room:updated.
type RoomRevealedEvent struct{}

func (RoomRevealedEvent) EventType() EventType { return EventRoomRevealed }

// RoomResetEvent signals a voting reset. The authoritative roster follows in
// the next room:updated.
type RoomResetEvent struct{}

func (RoomResetEvent) EventType() EventType { return EventRoomReset }
