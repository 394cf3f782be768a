package collab

import "collab-server/internal/models"

// roomParticipant is one user's live presence in a room. The client pointer
// is a routing detail owned by the hub; it never appears in snapshots.
type roomParticipant struct {
	userID    string
	email     string
	client    *Client
	cursor    *models.Cursor
	selection string
}

// RoomSession holds the participants of one active room, ordered by join
// time and unique by userID. Created lazily on first join; the hub deletes a
// session the moment its last participant leaves.
type RoomSession struct {
	ID           string
	participants []*roomParticipant
}

func NewRoomSession(id string) *RoomSession {
	return &RoomSession{ID: id}
}

func (r *RoomSession) find(userID string) *roomParticipant {
	for _, p := range r.participants {
		if p.userID == userID {
			return p
		}
	}
	return nil
}

func (r *RoomSession) add(p *roomParticipant) {
	r.participants = append(r.participants, p)
}

func (r *RoomSession) remove(userID string) {
	for i, p := range r.participants {
		if p.userID == userID {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return
		}
	}
}

// snapshot renders the participant list for the wire, excluding the given
// userID (the requester sees everyone else, never itself).
func (r *RoomSession) snapshot(excludeUserID string) []*models.Participant {
	result := make([]*models.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		if p.userID == excludeUserID {
			continue
		}
		result = append(result, &models.Participant{
			UserID:    p.userID,
			Email:     p.email,
			Cursor:    p.cursor,
			Selection: p.selection,
		})
	}
	return result
}
