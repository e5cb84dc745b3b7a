package session

import (
	"sort"
	"sync"
	"time"

	"collabhub/internal/models"
)

// Room is the broadcast scope for one shared document. It owns, under a
// single mutex, the membership index (user id -> connection set), the
// presence store, and the current mode record.
//
// Invariant: a presence entry exists for a user iff that user's connection
// set is non-empty.
type Room struct {
	Key string

	mu       sync.Mutex
	conns    map[string]map[*Client]struct{}
	members  map[*Client]string
	presence map[string]models.PresenceUser
	mode     *models.ModeState
}

func NewRoom(key string) *Room {
	return &Room{
		Key:      key,
		conns:    make(map[string]map[*Client]struct{}),
		members:  make(map[*Client]string),
		presence: make(map[string]models.PresenceUser),
	}
}

// Join registers the connection for user.ID and stores the presence record,
// merging onto whatever an earlier connection of the same user left behind.
// LastActive defaults to now when the caller omitted it.
func (r *Room) Join(c *Client, user models.PresenceUser) models.PresenceUser {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[user.ID]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[user.ID] = set
	}
	set[c] = struct{}{}
	r.members[c] = user.ID

	merged := mergeUser(r.presence[user.ID], user)
	if user.LastActive.IsZero() {
		merged.LastActive = time.Now()
	}
	r.presence[user.ID] = merged
	return merged
}

// mergeUser overlays the non-zero fields of in onto stored.
func mergeUser(stored, in models.PresenceUser) models.PresenceUser {
	stored.ID = in.ID
	if in.Name != "" {
		stored.Name = in.Name
	}
	if in.Color != "" {
		stored.Color = in.Color
	}
	if in.Status != "" {
		stored.Status = in.Status
	}
	if !in.LastActive.IsZero() {
		stored.LastActive = in.LastActive
	}
	if in.AvatarURL != "" {
		stored.AvatarURL = in.AvatarURL
	}
	if in.OpenItemID != "" {
		stored.OpenItemID = in.OpenItemID
	}
	return stored
}

// UserID resolves the user a connection joined as.
func (r *Room) UserID(c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.members[c]
	return id, ok
}

// MergePresence shallow-merges a partial record onto the stored one. Fields
// present in the patch overwrite; absent fields keep their prior values.
// Returns ok=false when the user holds no presence entry in this room.
func (r *Room) MergePresence(userID string, patch models.PresencePatch) (models.PresenceUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.presence[userID]
	if !ok {
		return models.PresenceUser{}, false
	}
	if patch.Name != nil {
		cur.Name = *patch.Name
	}
	if patch.Color != nil {
		cur.Color = *patch.Color
	}
	if patch.Status != nil {
		cur.Status = *patch.Status
	}
	if patch.AvatarURL != nil {
		cur.AvatarURL = *patch.AvatarURL
	}
	if patch.OpenItemID != nil {
		cur.OpenItemID = *patch.OpenItemID
	}
	if patch.LastActive != nil {
		cur.LastActive = *patch.LastActive
	} else {
		cur.LastActive = time.Now()
	}
	r.presence[userID] = cur
	return cur, true
}

// Leave removes the connection and cascades: an emptied connection set
// removes the user's presence entry; the caller deletes the room from the
// hub when empty reports true. Unknown connections are a no-op.
func (r *Room) Leave(c *Client) (userID string, userGone bool, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.members[c]
	if !ok {
		return "", false, len(r.members) == 0
	}
	delete(r.members, c)

	set := r.conns[userID]
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, userID)
		delete(r.presence, userID)
		userGone = true
	}
	return userID, userGone, len(r.members) == 0
}

// Roster returns all current presence records, ordered by user id.
func (r *Room) Roster() []models.PresenceUser {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]models.PresenceUser, 0, len(r.presence))
	for _, u := range r.presence {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (r *Room) Mode() (models.ModeState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == nil {
		return models.ModeState{}, false
	}
	return *r.mode, true
}

// SetMode overwrites the room mode, last write wins.
func (r *Room) SetMode(mode models.ModeState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = &mode
}

func (r *Room) ConnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Status snapshots the room for the read-only HTTP view.
func (r *Room) Status() models.RoomStatus {
	status := models.RoomStatus{
		RoomKey: r.Key,
		Users:   r.Roster(),
	}
	r.mu.Lock()
	status.UserCount = len(r.conns)
	status.ConnCount = len(r.members)
	if r.mode != nil {
		m := *r.mode
		status.Mode = &m
	}
	r.mu.Unlock()
	return status
}

// Broadcast delivers a frame to every connection in the room except sender.
func (r *Room) Broadcast(sender *Client, frame models.Frame) {
	for _, c := range r.clients() {
		if c == sender {
			continue
		}
		c.Send(frame)
	}
}

// BroadcastAll delivers a frame to every connection in the room.
func (r *Room) BroadcastAll(frame models.Frame) {
	for _, c := range r.clients() {
		c.Send(frame)
	}
}

func (r *Room) clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.members))
	for c := range r.members {
		out = append(out, c)
	}
	return out
}
