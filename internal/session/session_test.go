package session

import (
	"testing"
	"time"

	"collabhub/internal/models"
)

type frameCapture struct {
	frames []models.Frame
}

func newFrameCapture() *frameCapture { return &frameCapture{} }

func (c *frameCapture) hook(frame models.Frame) { c.frames = append(c.frames, frame) }

func (c *frameCapture) list() []models.Frame {
	out := make([]models.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func hookedClient() (*Client, *frameCapture) {
	c := NewClient(nil)
	capture := newFrameCapture()
	c.SetSendHook(capture.hook)
	return c, capture
}

func TestClientSendWithHook(t *testing.T) {
	client := NewClient(nil)
	capture := newFrameCapture()
	client.SetSendHook(capture.hook)

	client.Send(models.Frame{Event: models.EventActivity})

	got := capture.list()
	if len(got) != 1 || got[0].Event != models.EventActivity {
		t.Fatalf("expected frame captured, got %#v", got)
	}
}

func TestClientSendWithoutConnDoesNotPanic(t *testing.T) {
	client := NewClient(nil)
	client.Send(models.Frame{Event: "noop"})
}

func TestClientIDsAreUnique(t *testing.T) {
	a, b := NewClient(nil), NewClient(nil)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct non-empty connection ids, got %q and %q", a.ID, b.ID)
	}
}

func TestRoomKeyPrefix(t *testing.T) {
	if got := RoomKey("app-42"); got != "collab:app-42" {
		t.Fatalf("unexpected room key %q", got)
	}
}

func TestRoomJoinRosterIncludesAllUsers(t *testing.T) {
	room := NewRoom(RoomKey("app"))

	a, _ := hookedClient()
	b, _ := hookedClient()
	room.Join(a, models.PresenceUser{ID: "u1", Name: "Ann"})
	room.Join(b, models.PresenceUser{ID: "u2", Name: "Bo"})

	roster := room.Roster()
	if len(roster) != 2 {
		t.Fatalf("expected 2 presence records, got %d", len(roster))
	}
	if roster[0].ID != "u1" || roster[1].ID != "u2" {
		t.Fatalf("unexpected roster order: %#v", roster)
	}
	if roster[0].Name != "Ann" || roster[1].Name != "Bo" {
		t.Fatalf("unexpected roster names: %#v", roster)
	}
}

func TestRoomJoinDefaultsLastActive(t *testing.T) {
	room := NewRoom("r")
	c, _ := hookedClient()

	before := time.Now()
	merged := room.Join(c, models.PresenceUser{ID: "u1"})
	if merged.LastActive.Before(before) {
		t.Fatalf("expected lastActive defaulted to now, got %v", merged.LastActive)
	}
}

func TestRoomJoinMergesExistingRecord(t *testing.T) {
	room := NewRoom("r")

	first, _ := hookedClient()
	room.Join(first, models.PresenceUser{ID: "u1", Name: "Ann", Color: "#f00"})

	// A second tab joins with a sparse record; the stored color survives.
	second, _ := hookedClient()
	merged := room.Join(second, models.PresenceUser{ID: "u1", Name: "Ann"})
	if merged.Color != "#f00" {
		t.Fatalf("expected color preserved across joins, got %q", merged.Color)
	}
}

func TestRoomBroadcastSkipsSender(t *testing.T) {
	room := NewRoom("r")

	c1, cap1 := hookedClient()
	c2, cap2 := hookedClient()
	sender := NewClient(nil)
	sender.SetSendHook(func(models.Frame) { t.Fatal("sender should not receive broadcast") })

	room.Join(c1, models.PresenceUser{ID: "u1"})
	room.Join(c2, models.PresenceUser{ID: "u2"})
	room.Join(sender, models.PresenceUser{ID: "u3"})

	frame := models.Frame{Event: models.EventActivity, Data: "hello"}
	room.Broadcast(sender, frame)

	if got := cap1.list(); len(got) != 1 || got[0].Event != models.EventActivity {
		t.Fatalf("client1 missing frame: %#v", got)
	}
	if got := cap2.list(); len(got) != 1 || got[0].Event != models.EventActivity {
		t.Fatalf("client2 missing frame: %#v", got)
	}
}

func TestRoomBroadcastAll(t *testing.T) {
	room := NewRoom("r")

	c1, cap1 := hookedClient()
	c2, cap2 := hookedClient()
	room.Join(c1, models.PresenceUser{ID: "u1"})
	room.Join(c2, models.PresenceUser{ID: "u2"})

	room.BroadcastAll(models.Frame{Event: models.EventModeUpdate})

	if len(cap1.list()) != 1 || len(cap2.list()) != 1 {
		t.Fatalf("expected broadcast to all clients")
	}
}

func TestRoomMultiSessionLeave(t *testing.T) {
	room := NewRoom("r")

	tab1, _ := hookedClient()
	tab2, _ := hookedClient()
	room.Join(tab1, models.PresenceUser{ID: "u1", Name: "Ann"})
	room.Join(tab2, models.PresenceUser{ID: "u1", Name: "Ann"})

	if room.UserCount() != 1 || room.ConnCount() != 2 {
		t.Fatalf("expected 1 user across 2 connections, got users=%d conns=%d", room.UserCount(), room.ConnCount())
	}

	userID, userGone, empty := room.Leave(tab1)
	if userID != "u1" || userGone || empty {
		t.Fatalf("first leave should keep presence: user=%q gone=%v empty=%v", userID, userGone, empty)
	}
	if len(room.Roster()) != 1 {
		t.Fatalf("presence should survive while another tab is open")
	}

	userID, userGone, empty = room.Leave(tab2)
	if userID != "u1" || !userGone || !empty {
		t.Fatalf("last leave should cascade: user=%q gone=%v empty=%v", userID, userGone, empty)
	}
	if len(room.Roster()) != 0 {
		t.Fatalf("presence should be removed with the last connection")
	}
}

func TestRoomLeaveUnknownClient(t *testing.T) {
	room := NewRoom("r")
	userID, userGone, empty := room.Leave(NewClient(nil))
	if userID != "" || userGone || !empty {
		t.Fatalf("unexpected leave result: user=%q gone=%v empty=%v", userID, userGone, empty)
	}
}

func TestRoomMergePresencePartial(t *testing.T) {
	room := NewRoom("r")
	c, _ := hookedClient()
	joined := room.Join(c, models.PresenceUser{
		ID:     "u1",
		Name:   "Ann",
		Color:  "#f00",
		Status: models.StatusActive,
	})

	idle := models.StatusIdle
	merged, ok := room.MergePresence("u1", models.PresencePatch{Status: &idle})
	if !ok {
		t.Fatalf("expected merge to succeed")
	}
	if merged.Name != "Ann" || merged.Color != "#f00" {
		t.Fatalf("partial update clobbered stored fields: %#v", merged)
	}
	if merged.Status != models.StatusIdle {
		t.Fatalf("expected status idle, got %q", merged.Status)
	}
	if merged.LastActive.Before(joined.LastActive) {
		t.Fatalf("expected lastActive refreshed, got %v", merged.LastActive)
	}
}

func TestRoomMergePresenceUnknownUser(t *testing.T) {
	room := NewRoom("r")
	if _, ok := room.MergePresence("ghost", models.PresencePatch{}); ok {
		t.Fatalf("expected merge to fail for unknown user")
	}
}

func TestRoomModeLastWriteWins(t *testing.T) {
	room := NewRoom("r")
	if _, ok := room.Mode(); ok {
		t.Fatalf("new room should have no mode")
	}

	room.SetMode(models.ModeState{Mode: models.ModeEdit, Enabled: true, UpdatedAt: 1})
	room.SetMode(models.ModeState{Mode: models.ModeReadOnly, Enabled: true, UpdatedAt: 2})

	mode, ok := room.Mode()
	if !ok || mode.Mode != models.ModeReadOnly || mode.UpdatedAt != 2 {
		t.Fatalf("expected latest mode record, got %#v ok=%v", mode, ok)
	}
}

func TestRoomStatusSnapshot(t *testing.T) {
	room := NewRoom(RoomKey("app"))
	c, _ := hookedClient()
	room.Join(c, models.PresenceUser{ID: "u1", Name: "Ann"})
	room.SetMode(models.ModeState{Mode: models.ModeEdit, Enabled: true})

	status := room.Status()
	if status.RoomKey != "collab:app" || status.UserCount != 1 || status.ConnCount != 1 {
		t.Fatalf("unexpected status: %#v", status)
	}
	if len(status.Users) != 1 || status.Users[0].ID != "u1" {
		t.Fatalf("unexpected status roster: %#v", status.Users)
	}
	if status.Mode == nil || status.Mode.Mode != models.ModeEdit {
		t.Fatalf("expected mode in status, got %#v", status.Mode)
	}
}

func TestHubJoinLeaveCascade(t *testing.T) {
	hub := NewHub()

	c1, _ := hookedClient()
	room, merged := hub.Join("k", c1, models.PresenceUser{ID: "u1", Name: "Ann"})
	if merged.Name != "Ann" {
		t.Fatalf("unexpected merged record: %#v", merged)
	}
	if got, ok := hub.Get("k"); !ok || got != room {
		t.Fatalf("joined room missing from hub")
	}

	userID, userGone := hub.Leave(room, c1)
	if userID != "u1" || !userGone {
		t.Fatalf("expected last leave to remove user, got user=%q gone=%v", userID, userGone)
	}
	if _, ok := hub.Get("k"); ok {
		t.Fatalf("emptied room should be dropped from the hub")
	}
}

func TestHubJoinAfterLeaveKeepsLiveRoomRegistered(t *testing.T) {
	hub := NewHub()

	c1, _ := hookedClient()
	room, _ := hub.Join("k", c1, models.PresenceUser{ID: "u1"})

	// A new connection joins right as the previous one's leave empties the
	// room. The hub must never forget a room holding a live member.
	hub.Leave(room, c1)
	c2, _ := hookedClient()
	joined, _ := hub.Join("k", c2, models.PresenceUser{ID: "u2"})

	got, ok := hub.Get("k")
	if !ok {
		t.Fatalf("hub forgot a room with a live member")
	}
	if got != joined || got.ConnCount() != 1 {
		t.Fatalf("live member stranded in an unregistered room: %#v", got.Status())
	}
}

func TestHubLeaveIgnoresStaleRoomInstance(t *testing.T) {
	hub := NewHub()

	c1, _ := hookedClient()
	stale, _ := hub.Join("k", c1, models.PresenceUser{ID: "u1"})
	hub.Leave(stale, c1)

	// The key is reused by a fresh room; emptying the stale instance again
	// must not evict the current one.
	c2, _ := hookedClient()
	current, _ := hub.Join("k", c2, models.PresenceUser{ID: "u2"})
	hub.Leave(stale, c1)

	if got, ok := hub.Get("k"); !ok || got != current {
		t.Fatalf("stale leave evicted the current room")
	}
}

func TestHubConcurrentJoinLeaveChurn(t *testing.T) {
	hub := NewHub()
	const key = "k"

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			c := NewClient(nil)
			room, _ := hub.Join(key, c, models.PresenceUser{ID: "churn"})
			hub.Leave(room, c)
		}
	}()

	for i := 0; i < 200; i++ {
		c := NewClient(nil)
		room, _ := hub.Join(key, c, models.PresenceUser{ID: "u2"})
		if got, ok := hub.Get(key); !ok || got != room {
			t.Fatalf("room with a live member missing from the hub")
		}
		hub.Leave(room, c)
	}
	<-done

	if _, ok := hub.Get(key); ok {
		t.Fatalf("expected room dropped once all members left")
	}
}

func TestHubLifecycle(t *testing.T) {
	hub := NewHub()
	roomA := hub.GetOrCreate("a")
	roomB := hub.GetOrCreate("a")
	if roomA != roomB {
		t.Fatalf("expected same room instance")
	}
	if hub.Len() != 1 {
		t.Fatalf("expected 1 room, got %d", hub.Len())
	}

	if _, ok := hub.Get("missing"); ok {
		t.Fatalf("expected missing room")
	}

	hub.Delete("a")
	if _, ok := hub.Get("a"); ok {
		t.Fatalf("expected room to be deleted")
	}
	if hub.Len() != 0 {
		t.Fatalf("expected empty hub, got %d rooms", hub.Len())
	}
}
