package devserver

import (
	"fmt"
	"time"

	"github.com/scrumdeck/scrumdeck/go/internal/protocol"
)

// roomUser is the server-side record of one participant.
type roomUser struct {
	id        string
	name      string
	emoji     string
	spectator bool
	vote      *protocol.CardValue
}

// room is the authoritative state of one estimation session. All access goes
// through the server mutex.
type room struct {
	id        string
	name      string
	ownerID   string
	revealed  bool
	cards     []protocol.CardValue
	createdAt time.Time
	users     []*roomUser
	conns     map[*client]*roomUser
}

func (r *room) user(id string) *roomUser {
	for _, u := range r.users {
		if u.id == id {
			return u
		}
	}
	return nil
}

// dedupName returns name, suffixed if another participant already uses it.
// The original name stays a substring so clients matching by containment
// still find themselves.
func (r *room) dedupName(name string) string {
	taken := func(candidate string) bool {
		for _, u := range r.users {
			if u.name == candidate {
				return true
			}
		}
		return false
	}
	if !taken(name) {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", name, i)
		if !taken(candidate) {
			return candidate
		}
	}
}

func (r *room) removeUser(id string) {
	for i, u := range r.users {
		if u.id == id {
			r.users = append(r.users[:i], r.users[i+1:]...)
			return
		}
	}
}

// payloadFor renders the room as seen by viewerID. While votes are hidden,
// only the viewer's own vote value is included; everyone else is reduced to
// isReady. An empty viewerID sees the fully masked form.
func (r *room) payloadFor(viewerID string) protocol.RoomPayload {
	p := protocol.RoomPayload{
		ID:        r.id,
		Name:      r.name,
		OwnerID:   r.ownerID,
		Revealed:  r.revealed,
		Cards:     append([]protocol.CardValue(nil), r.cards...),
		CreatedAt: r.createdAt.UnixMilli(),
		Users:     make([]protocol.UserPayload, 0, len(r.users)),
	}
	for _, u := range r.users {
		user := protocol.UserPayload{
			ID:        u.id,
			Name:      u.name,
			Emoji:     u.emoji,
			IsReady:   u.vote != nil,
			Spectator: u.spectator,
		}
		if u.vote != nil && (r.revealed || u.id == viewerID) {
			v := *u.vote
			user.Vote = &v
		}
		p.Users = append(p.Users, user)
	}
	return p
}
