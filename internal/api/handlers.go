package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"collabhub/internal/metrics"
	"collabhub/internal/models"
	"collabhub/internal/session"
	"collabhub/internal/utils"
)

type Handlers struct {
	log      *utils.Logger
	hub      *session.Hub
	upgrader websocket.Upgrader
}

// NewHandlers builds the websocket gateway. allowedOrigins is the browser
// origin allow-list; requests without an Origin header (non-browser clients)
// are accepted, the hub performs no authentication of its own.
func NewHandlers(log *utils.Logger, hub *session.Hub, allowedOrigins []string) *Handlers {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Handlers{
		log: log,
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// RoomStatus serves the live roster and mode of a room to dashboard widgets.
func (h *Handlers) RoomStatus(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appId")
	room, ok := h.hub.Get(session.RoomKey(appID))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, room.Status())
}

// CollabWS accepts a collaboration connection and runs its event loop. Every
// inbound event is fire-and-forget: malformed or orphan events are dropped,
// never answered with an error frame.
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade rejected", "origin", r.Header.Get("Origin"), "error", err.Error())
		return
	}
	defer conn.Close()

	client := session.NewClient(conn)
	metrics.ConnOpened()
	defer metrics.ConnClosed()

	var room *session.Room
	defer func() {
		if room != nil {
			h.disconnect(room, client)
		}
	}()

	for {
		var frame models.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Event {
		case models.EventJoin:
			room = h.handleJoin(client, room, frame.Data)

		case models.EventPresenceUpdate:
			h.handlePresenceUpdate(client, room, frame.Data)

		case models.EventModeUpdate:
			h.handleModeUpdate(client, room, frame.Data)

		case models.EventActivity,
			models.EventItemUpdate,
			models.EventItemAdd,
			models.EventItemDelete,
			models.EventReorder,
			models.EventMove:
			h.relay(client, room, frame.Event, frame.Data)

		default:
			h.log.Debug("dropping unknown event", "event", frame.Event, "conn", client.ID)
		}
	}
}

// handleJoin registers the connection in the requested room, replies with a
// full presence snapshot plus the current mode record, and announces the
// joiner to everyone else. Returns the room the connection now belongs to.
func (h *Handlers) handleJoin(c *session.Client, cur *session.Room, data any) *session.Room {
	var req models.JoinRequest
	decode(data, &req)
	if req.AppID == "" || req.User.ID == "" {
		h.log.Warn("join dropped: missing appId or user id", "conn", c.ID)
		return cur
	}

	// A connection re-joining leaves its previous room first so the
	// membership cascade stays intact.
	if cur != nil {
		h.disconnect(cur, c)
	}

	room, merged := h.hub.Join(session.RoomKey(req.AppID), c, req.User)
	metrics.SetActiveRooms(h.hub.Len())

	c.Send(models.Frame{Event: models.EventPresenceSync, Data: room.Roster()})
	if mode, ok := room.Mode(); ok {
		c.Send(models.Frame{Event: models.EventModeUpdate, Data: mode})
	}
	room.Broadcast(c, models.Frame{Event: models.EventPresenceUpdate, Data: merged})
	metrics.EventRelayed(models.EventPresenceUpdate)

	h.log.Info("connection joined", "room", room.Key, "user", req.User.ID, "conn", c.ID)
	return room
}

func (h *Handlers) handlePresenceUpdate(c *session.Client, room *session.Room, data any) {
	if room == nil {
		return
	}
	userID, ok := room.UserID(c)
	if !ok {
		return
	}
	var patch models.PresencePatch
	decode(data, &patch)
	merged, ok := room.MergePresence(userID, patch)
	if !ok {
		return
	}
	room.Broadcast(c, models.Frame{Event: models.EventPresenceUpdate, Data: merged})
	metrics.EventRelayed(models.EventPresenceUpdate)
}

// handleModeUpdate persists the payload as the room's mode (last write wins,
// replayed to future joiners) and relays it to the other members.
func (h *Handlers) handleModeUpdate(c *session.Client, room *session.Room, data any) {
	if room == nil {
		return
	}
	if _, ok := room.UserID(c); !ok {
		return
	}
	var mode models.ModeState
	decode(data, &mode)
	if mode.Mode != models.ModeEdit && mode.Mode != models.ModeReadOnly {
		h.log.Warn("dropping malformed mode update", "room", room.Key, "mode", mode.Mode)
		return
	}
	room.SetMode(mode)
	room.Broadcast(c, models.Frame{Event: models.EventModeUpdate, Data: mode})
	metrics.EventRelayed(models.EventModeUpdate)
}

// relay forwards an event to every other connection in the sender's room.
// Payloads are shape-checked at this boundary but never interpreted or
// applied; the document store owns validation against actual state.
func (h *Handlers) relay(c *session.Client, room *session.Room, event string, data any) {
	if room == nil {
		return
	}
	if _, ok := room.UserID(c); !ok {
		return
	}
	payload, ok := decodePayload(event, data)
	if !ok {
		h.log.Warn("dropping malformed payload", "event", event, "room", room.Key)
		return
	}
	room.Broadcast(c, models.Frame{Event: event, Data: payload})
	metrics.EventRelayed(event)
}

// decodePayload decodes an event payload into its typed form and reports
// whether the required identifiers are present.
func decodePayload(event string, data any) (any, bool) {
	switch event {
	case models.EventActivity:
		// Opaque notification record, relayed verbatim.
		return data, true

	case models.EventItemUpdate:
		var p models.ItemUpdate
		decode(data, &p)
		return p, p.ItemType != "" && p.ItemID != ""

	case models.EventItemAdd:
		var p models.ItemAdd
		decode(data, &p)
		return p, p.ItemType != "" && p.Item != nil

	case models.EventItemDelete:
		var p models.ItemDelete
		decode(data, &p)
		return p, p.ItemType != "" && p.ItemID != ""

	case models.EventReorder:
		var p models.Reorder
		decode(data, &p)
		return p, p.ListType != "" && p.SourceIndex >= 0 && p.DestinationIndex >= 0

	case models.EventMove:
		var p models.Move
		decode(data, &p)
		return p, p.ItemType != "" && p.ItemID != "" && p.DestinationIndex >= 0
	}
	return nil, false
}

// disconnect removes the connection, cascading to a presence removal
// broadcast when the user's last connection closed and to room deletion
// when the room emptied. The cascade runs atomically under the hub lock.
func (h *Handlers) disconnect(room *session.Room, c *session.Client) {
	userID, userGone := h.hub.Leave(room, c)
	if userGone {
		room.Broadcast(c, models.Frame{Event: models.EventPresenceRemove, Data: models.PresenceRemove{UserID: userID}})
		metrics.EventRelayed(models.EventPresenceRemove)
	}
	metrics.SetActiveRooms(h.hub.Len())
	if userID != "" {
		h.log.Info("connection left", "room", room.Key, "user", userID, "conn", c.ID, "userGone", userGone)
	}
}

func decode(in any, out any) { b, _ := json.Marshal(in); _ = json.Unmarshal(b, out) }

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
