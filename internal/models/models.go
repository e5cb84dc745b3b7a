package models

import "time"

// Event names on the collaboration websocket channel.
const (
	EventJoin            = "collaboration:join"
	EventPresenceSync    = "collaboration:presence:sync"
	EventPresenceUpdate  = "collaboration:presence:update"
	EventPresenceRemove  = "collaboration:presence:remove"
	EventActivity        = "collaboration:activity"
	EventItemUpdate      = "collaboration:item:update"
	EventItemAdd         = "collaboration:item:add"
	EventItemDelete      = "collaboration:item:delete"
	EventReorder         = "collaboration:reorder"
	EventMove            = "collaboration:move"
	EventModeUpdate      = "collaboration:mode:update"
	EventDocumentDeleted = "collaboration:document:deleted"
)

// Frame is the envelope for every message on the channel, inbound or outbound.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type PresenceStatus string

const (
	StatusActive PresenceStatus = "active"
	StatusIdle   PresenceStatus = "idle"
)

// PresenceUser is a live participant's display record, keyed by user id
// within a room. Distinct from authentication identity.
type PresenceUser struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Color      string         `json:"color,omitempty"`
	Status     PresenceStatus `json:"status,omitempty"`
	LastActive time.Time      `json:"lastActive"`
	AvatarURL  string         `json:"avatarUrl,omitempty"`
	OpenItemID string         `json:"openItemId,omitempty"`
}

// PresencePatch is a partial presence record. Nil fields keep the stored
// value; LastActive defaults to the time of the update when omitted.
type PresencePatch struct {
	Name       *string         `json:"name,omitempty"`
	Color      *string         `json:"color,omitempty"`
	Status     *PresenceStatus `json:"status,omitempty"`
	LastActive *time.Time      `json:"lastActive,omitempty"`
	AvatarURL  *string         `json:"avatarUrl,omitempty"`
	OpenItemID *string         `json:"openItemId,omitempty"`
}

type JoinRequest struct {
	AppID string       `json:"appId"`
	User  PresenceUser `json:"user"`
}

type PresenceRemove struct {
	UserID string `json:"userId"`
}

// Activity is an opaque notification record relayed verbatim; the hub does
// not persist or interpret it.
type Activity struct {
	ID          string `json:"id"`
	ActorID     string `json:"actorId"`
	ActorName   string `json:"actorName,omitempty"`
	Action      string `json:"action"`
	TargetKind  string `json:"targetKind,omitempty"`
	TargetTitle string `json:"targetTitle,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// Structural mutation payloads carry a client-supplied updatedAt in epoch
// milliseconds. The hub never applies these against document state; the
// document store validates and persists the change.

type ItemUpdate struct {
	ItemType  string `json:"itemType"`
	ItemID    string `json:"itemId"`
	Field     string `json:"field,omitempty"`
	Value     any    `json:"value,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

type ItemAdd struct {
	ItemType  string `json:"itemType"`
	Item      any    `json:"item"`
	ParentID  string `json:"parentId,omitempty"`
	Index     *int   `json:"index,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

type ItemDelete struct {
	ItemType  string `json:"itemType"`
	ItemID    string `json:"itemId"`
	ParentID  string `json:"parentId,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

type Reorder struct {
	ListType         string `json:"listType"`
	ParentID         string `json:"parentId,omitempty"`
	SourceIndex      int    `json:"sourceIndex"`
	DestinationIndex int    `json:"destinationIndex"`
	UpdatedAt        int64  `json:"updatedAt,omitempty"`
}

type Move struct {
	ItemType            string `json:"itemType"`
	ItemID              string `json:"itemId"`
	SourceParentID      string `json:"sourceParentId,omitempty"`
	DestinationParentID string `json:"destinationParentId,omitempty"`
	DestinationIndex    int    `json:"destinationIndex"`
	UpdatedAt           int64  `json:"updatedAt,omitempty"`
}

const (
	ModeEdit     = "edit"
	ModeReadOnly = "read-only"
)

// ModeState is the room-wide edit/read-only flag. Last write wins; replayed
// to every late joiner.
type ModeState struct {
	Mode      string `json:"mode"`
	Enabled   bool   `json:"enabled"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// RoomStatus is the read-only view served to dashboard widgets.
type RoomStatus struct {
	RoomKey   string         `json:"roomKey"`
	UserCount int            `json:"userCount"`
	ConnCount int            `json:"connCount"`
	Users     []PresenceUser `json:"users"`
	Mode      *ModeState     `json:"mode,omitempty"`
}

// DocumentEvent is published by the document store on its lifecycle channel.
type DocumentEvent struct {
	Type       string `json:"type"` // "document.deleted", "document.archived"
	DocumentID string `json:"documentId"`
	ActorID    string `json:"actorId,omitempty"`
}

type DocumentDeleted struct {
	DocumentID string `json:"documentId"`
}
