package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/dkeye/voxroom/internal/adapters/signal"
	"github.com/dkeye/voxroom/internal/app/hub"
	"github.com/dkeye/voxroom/internal/auth"
	"github.com/dkeye/voxroom/internal/config"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AgentService is the orchestrator as the API sees it.
type AgentService interface {
	JoinRoom(ctx context.Context, room domain.RoomID) error
	LeaveRoom(ctx context.Context, room domain.RoomID) error
	ListActiveRooms() []domain.RoomID
}

// AccountService registers users and checks their session tokens.
type AccountService interface {
	Register(ctx context.Context, username, password string) (auth.Session, error)
	Login(ctx context.Context, username, password string) (auth.Session, error)
	Verify(token string) (*auth.UserClaims, error)
}

type Deps struct {
	Tokens   core.CredentialIssuer
	Accounts AccountService
	Agents   AgentService
	Hub     *hub.Hub
	History core.MessageHistory
	Signal  *signal.SignalWSController
}

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// AuthMiddleware requires "Authorization: Bearer <session token>" and stores
// the signed-in username under "username".
func AuthMiddleware(accounts AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		claims, err := accounts.Verify(strings.TrimSpace(token))
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.http").Msg("rejected session token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Set("username", claims.Username)
		c.Next()
	}
}

// CORSMiddleware allows the configured browser origin to call the API.
func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin == "" {
			c.Next()
			return
		}
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(cfg.CORSOrigin))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoxroomSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	h := &handlers{cfg: cfg, deps: deps}
	api := r.Group("/api")

	requireUser := AuthMiddleware(deps.Accounts)

	api.GET("/health", h.health)
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)
	api.POST("/token", requireUser, h.token)

	agent := api.Group("/agent")
	agent.POST("/join", h.agentJoin)
	agent.POST("/leave", h.agentLeave)
	agent.GET("/rooms", h.agentRooms)

	rooms := api.Group("/rooms", requireUser)
	rooms.GET("", h.listRooms)
	rooms.POST("", h.createRoom)
	rooms.GET("/:room/members", h.roomMembers)
	rooms.DELETE("/:room", h.deleteRoom)
	rooms.GET("/:room/messages", h.history)
	rooms.POST("/:room/messages", h.appendMessage)

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
