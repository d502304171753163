package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/eventws"
	"github.com/dkeye/Meet/internal/adapters/health"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
)

const (
	sessionName = "MeetSessions"
	sessionUser = "user_id"

	joinLimit    = 10
	joinInterval = time.Minute
)

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Meetings MeetingAPI
	Events   *eventws.Handler
	Health   *health.Monitor
	// JoinLimiter bounds join attempts per user; nil uses the default limit.
	JoinLimiter *UserRateLimiter
}

// IdentityMiddleware copies the session user, if any, into the gin context.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid, ok := sessions.Default(c).Get(sessionUser).(string); ok && uid != "" {
			c.Set(eventws.UserKey, uid)
		}
		c.Next()
	}
}

// RequireUser rejects requests without a session identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := domain.ParseUserID(c.GetString(eventws.UserKey)); err != nil {
			c.AbortWithStatusJSON(stdhttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func actor(c *gin.Context) domain.UserID {
	return domain.UserID(c.GetString(eventws.UserKey))
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Debug() {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(IdentityMiddleware())

	if deps.Health != nil {
		deps.Health.Register(r)
	}

	api := r.Group("/api")
	api.POST("/login", login)

	if deps.Events != nil {
		api.GET("/ws/events", func(c *gin.Context) {
			log.Info().Str("module", "adapters.http").Str("user", c.GetString(eventws.UserKey)).Msg("ws events endpoint hit")
			deps.Events.Serve(ctx, c)
		})
	}

	if deps.Meetings != nil {
		h := &meetingHandlers{svc: deps.Meetings}
		limiter := deps.JoinLimiter
		if limiter == nil {
			limiter = NewUserRateLimiter(joinLimit, joinInterval)
		}
		authed := api.Group("", RequireUser())
		authed.POST("/meetings", h.create)
		authed.GET("/rooms/:roomId/meeting", h.getByRoom)

		m := authed.Group("/meetings/:id")
		m.GET("", h.get)
		m.DELETE("", h.delete)
		m.GET("/participants", h.participants)
		m.POST("/join", limiter.Middleware(), h.join)
		m.POST("/leave", h.leave)
		m.PUT("/streams/:media", h.toggleStream)
		m.POST("/streams/:media/offer", h.offer)
		m.POST("/answer", h.answer)
		m.PUT("/subscriptions", h.subscriptions)
		m.GET("/queue", h.queue)
		m.PUT("/queue/:userId", h.updateQueue)
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

type loginRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// login stores a development identity in the cookie session.
func login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(stdhttp.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	uid, err := domain.ParseUserID(req.UserID)
	if err != nil {
		c.JSON(stdhttp.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionUser, string(uid))
	if err := s.Save(); err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("session save")
		c.JSON(stdhttp.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", string(uid)).Msg("login")
	c.JSON(stdhttp.StatusOK, gin.H{"userId": uid})
}
