package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/app/hub"
	"github.com/dkeye/voxroom/internal/auth"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/wire"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

// TokenValidator checks the join token presented on upgrade.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	// ChatLimit messages are allowed per ChatWindow per connection.
	ChatLimit  int
	ChatWindow time.Duration
	RTC        webrtc.Configuration
}

type SignalWSController struct {
	Hub    *hub.Hub
	Tokens TokenValidator
	opts   Options
	limits *RoomRateLimiter
}

func NewSignalWSController(h *hub.Hub, tokens TokenValidator, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.ChatLimit <= 0 {
		opts.ChatLimit = 5
	}
	if opts.ChatWindow <= 0 {
		opts.ChatWindow = time.Second
	}
	return &SignalWSController{
		Hub:    h,
		Tokens: tokens,
		opts:   opts,
		limits: NewRoomRateLimiter(opts.ChatLimit, opts.ChatWindow),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return domain.ErrSessionClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames; the write pump flushes what is queued and closes the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal authenticates the token, upgrades, and joins the room the token grants.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	claims, err := ctl.Tokens.Validate(c.Query("token"))
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Msg("rejected join token")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	sid := core.SessionID(uuid.NewString())
	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}

	meta := domain.NewMember(claims.Identity(), claims.Name, claims.Role)
	meta.AutoSubscribe = c.DefaultQuery("auto_subscribe", "true") == "true"
	meta.Dynacast = c.Query("dynacast") == "true"
	sess := core.NewMemberSession(meta).UpdateSignal(conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)

	if _, err := ctl.Hub.Join(sid, sess, claims.Video.Room, cancel); err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Str("room", string(claims.Video.Room)).Msg("join refused")
		ctl.sendJSON(conn, wire.Errorf(err.Error()))
		conn.Close()
		cancel()
		return
	}
	log.Info().Str("module", "adapters.signal").Str("sid", string(sid)).Str("identity", string(meta.Identity)).Str("room", string(claims.Video.Room)).Msg("new WS connection")

	go ctl.readPump(ctx, sid, conn)
}
