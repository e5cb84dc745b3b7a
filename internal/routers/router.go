package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"collabhub/internal/api"
	"collabhub/internal/session"
	"collabhub/internal/utils"
)

func New(log *utils.Logger, hub *session.Hub, allowedOrigins []string) http.Handler {
	h := api.NewHandlers(log, hub, allowedOrigins)
	r := chi.NewRouter()

	r.Get("/api/v1/healthz", h.Health)
	r.Get("/api/v1/rooms/{appId}", h.RoomStatus)

	r.Get("/ws/collaboration", h.CollabWS)

	return r
}
