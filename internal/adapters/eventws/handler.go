package eventws

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/keepalive"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/broker"
	"github.com/dkeye/Meet/internal/domain"
)

// UserKey is the gin context key the identity middleware stores the user id under.
const UserKey = "user_id"

type QueueOpener interface {
	OpenQueue(ctx context.Context, user, queue string) (broker.Queue, error)
}

type MeetingLeaver interface {
	LeaveByQueue(ctx context.Context, queueID domain.QueueID) error
}

type QueueRemover interface {
	RemoveFromQueue(ctx context.Context, queueID domain.QueueID) error
}

type Handler struct {
	Broker    QueueOpener
	Meetings  MeetingLeaver
	Waiting   QueueRemover
	Registry  *app.Registry
	Keepalive *keepalive.Supervisor
	ReadLimit int64
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the request and opens a channel for the session's user.
// The channel lives until the client leaves or ctx ends.
func (h *Handler) Serve(ctx context.Context, c *gin.Context) {
	user, err := domain.ParseUserID(c.GetString(UserKey))
	if err != nil {
		log.Warn().Str("module", "adapters.eventws").Err(err).Msg("handshake without identity")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id := domain.QueueID(uuid.NewString())
	queue, err := h.Broker.OpenQueue(c.Request.Context(), string(user), string(id))
	if err != nil {
		log.Error().Str("module", "adapters.eventws").Err(err).Str("user", string(user)).Msg("open queue")
		status := http.StatusServiceUnavailable
		if !errors.Is(err, broker.ErrUnavailable) {
			status = http.StatusBadGateway
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "event channel unavailable"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "adapters.eventws").Err(err).Msg("ws upgrade")
		_ = queue.Delete()
		_ = queue.Close()
		return
	}
	if h.ReadLimit > 0 {
		ws.SetReadLimit(h.ReadLimit)
	}

	ch := newChannel(h, id, user, ws, queue)
	if err := ch.open(ctx); err != nil {
		log.Error().Str("module", "adapters.eventws").Err(err).Str("channel", string(id)).Msg("open channel")
	}
}
