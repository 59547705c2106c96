// Package protocol defines the wire vocabulary spoken between the session
// engine and the room server: a closed set of JSON commands and events, each
// tagged with a "type" field alongside its payload.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType marks a frame whose "type" is outside the closed
// vocabulary. Callers are expected to log and drop such frames so that new
// server-side message types stay non-fatal.
var ErrUnknownType = errors.New("unknown message type")

type envelope struct {
	Type string `json:"type"`
}

// EncodeCommand serializes a command into a frame with the type tag merged
// into the payload object.
func EncodeCommand(cmd Command) ([]byte, error) {
	return encode(string(cmd.CommandType()), cmd)
}

// EncodeEvent serializes an event into a frame with the type tag merged into
// the payload object.
func EncodeEvent(ev Event) ([]byte, error) {
	return encode(string(ev.EventType()), ev)
}

func encode(typ string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten %s payload: %w", typ, err)
	}
	fields["type"], err = json.Marshal(typ)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal type tag: %w", err)
	}

	frame, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", typ, err)
	}
	return frame, nil
}

// DecodeEvent parses a server frame into its typed event. Frames with an
// unrecognized type return ErrUnknownType.
func DecodeEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse event frame: %w", err)
	}

	switch EventType(env.Type) {
	case EventRoomCreated:
		var ev RoomCreatedEvent
		return decodeInto(raw, env.Type, &ev)
	case EventRoomJoined:
		var ev RoomJoinedEvent
		return decodeInto(raw, env.Type, &ev)
	case EventRoomUpdated:
		var ev RoomUpdatedEvent
		return decodeInto(raw, env.Type, &ev)
	case EventRoomError:
		var ev RoomErrorEvent
		return decodeInto(raw, env.Type, &ev)
	case EventError:
		var ev ErrorEvent
		return decodeInto(raw, env.Type, &ev)
	case EventRoomRevealed:
		return RoomRevealedEvent{}, nil
	case EventRoomReset:
		return RoomResetEvent{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// DecodeCommand parses a client frame into its typed command. Used by the
// server side of the protocol.
func DecodeCommand(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse command frame: %w", err)
	}

	switch CommandType(env.Type) {
	case CommandRoomCreate:
		var cmd CreateRoomCommand
		return decodeInto(raw, env.Type, &cmd)
	case CommandRoomJoin:
		var cmd JoinRoomCommand
		return decodeInto(raw, env.Type, &cmd)
	case CommandUserVote:
		var cmd VoteCommand
		return decodeInto(raw, env.Type, &cmd)
	case CommandRoomReveal:
		return RevealCommand{}, nil
	case CommandRoomReset:
		return ResetCommand{}, nil
	case CommandUserSpectate:
		var cmd SpectateCommand
		return decodeInto(raw, env.Type, &cmd)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeInto[T any](raw []byte, typ string, dst *T) (T, error) {
	if err := json.Unmarshal(raw, dst); err != nil {
		return *dst, fmt.Errorf("failed to parse %s payload: %w", typ, err)
	}
	return *dst, nil
}
