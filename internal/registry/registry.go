package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"collabhub/internal/models"
	"collabhub/internal/session"
	"collabhub/internal/utils"
)

// documentsChannel carries document lifecycle events published by the
// document store.
const documentsChannel = "documents:events"

const (
	eventDocumentDeleted  = "document.deleted"
	eventDocumentArchived = "document.archived"
)

// Registry keeps live rooms in step with the document store: a deleted
// document closes its room, an archived one flips it to read-only. The hub
// itself stays free of durable state; Redis here is a listen-only boundary.
type Registry struct {
	rdb    *redis.Client
	hub    *session.Hub
	log    *utils.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(ctx context.Context, redisAddr string, hub *session.Hub, log *utils.Logger) *Registry {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	ctx, cancel := context.WithCancel(ctx)
	return &Registry{
		rdb:    rdb,
		hub:    hub,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe consumes document lifecycle events until the registry is closed.
// Run it on its own goroutine.
func (g *Registry) Subscribe() {
	pubsub := g.rdb.Subscribe(g.ctx, documentsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	g.log.Info("subscribed to document events", "channel", documentsChannel)

	for {
		select {
		case <-g.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event models.DocumentEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				g.log.Warn("failed to parse document event", "error", err.Error())
				continue
			}
			g.handle(event)
		}
	}
}

func (g *Registry) handle(event models.DocumentEvent) {
	if event.DocumentID == "" {
		return
	}
	room, ok := g.hub.Get(session.RoomKey(event.DocumentID))
	if !ok {
		return
	}

	switch event.Type {
	case eventDocumentDeleted:
		room.BroadcastAll(models.Frame{
			Event: models.EventDocumentDeleted,
			Data:  models.DocumentDeleted{DocumentID: event.DocumentID},
		})
		g.hub.Delete(room.Key)
		g.log.Info("room closed, document deleted", "room", room.Key)

	case eventDocumentArchived:
		mode := models.ModeState{
			Mode:      models.ModeReadOnly,
			Enabled:   true,
			UpdatedAt: time.Now().UnixMilli(),
		}
		room.SetMode(mode)
		room.BroadcastAll(models.Frame{Event: models.EventModeUpdate, Data: mode})
		g.log.Info("room switched to read-only, document archived", "room", room.Key)

	default:
		g.log.Debug("ignoring unknown document event", "type", event.Type)
	}
}

// Close stops the subscription and releases the Redis client.
func (g *Registry) Close() {
	g.cancel()
	_ = g.rdb.Close()
}
