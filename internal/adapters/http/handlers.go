package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dkeye/voxroom/internal/auth"
	"github.com/dkeye/voxroom/internal/config"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type CredentialsRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=72"`
}

type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type AuthResponse struct {
	Token string   `json:"token"`
	User  UserView `json:"user"`
}

// TokenRequest names the room; the identity is the signed-in user.
type TokenRequest struct {
	RoomName string `json:"roomName" binding:"required,max=64"`
}

type TokenResponse struct {
	Token string `json:"token"`
	WSURL string `json:"wsUrl"`
}

type AgentRequest struct {
	RoomName string `json:"roomName" binding:"required,max=64"`
}

type AgentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,max=64"`
}

// MessageRequest sender fields default to the signed-in user.
type MessageRequest struct {
	SenderIdentity string `json:"senderIdentity" binding:"max=64"`
	SenderName     string `json:"senderName" binding:"max=128"`
	Message        string `json:"message" binding:"required,max=4096"`
}

type handlers struct {
	cfg  *config.Config
	deps Deps
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func serverError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrShuttingDown) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// roomParam reads and validates :room, answering 400 when it is unusable.
func roomParam(c *gin.Context) (domain.RoomID, bool) {
	id := domain.RoomID(c.Param("room"))
	if err := domain.ValidateRoomID(id); err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return id, true
}

func (h *handlers) health(c *gin.Context) {
	rooms := h.deps.Agents.ListActiveRooms()
	if rooms == nil {
		rooms = []domain.RoomID{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "activeAgentRooms": rooms})
}

func toAuthResponse(sess auth.Session) AuthResponse {
	return AuthResponse{Token: sess.Token, User: UserView{ID: sess.Account.ID, Username: sess.Account.Username}}
}

func (h *handlers) register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Username and password are required")
		return
	}
	sess, err := h.deps.Accounts.Register(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, domain.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
		return
	case errors.Is(err, domain.ErrInvalidCredentials):
		badRequest(c, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("register")
		serverError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAuthResponse(sess))
}

func (h *handlers) login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Username and password are required")
		return
	}
	sess, err := h.deps.Accounts.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("login")
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(sess))
}

func (h *handlers) token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "roomName is required")
		return
	}
	identity := domain.Identity(c.GetString("username"))
	tok, err := h.deps.Tokens.IssueJoinToken(c.Request.Context(), domain.RoomID(req.RoomName), identity, domain.RoleParticipant)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", req.RoomName).Msg("issue token")
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: tok, WSURL: h.cfg.PublicWSURL})
}

func (h *handlers) agentJoin(c *gin.Context) {
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "roomName is required")
		return
	}
	if err := h.deps.Agents.JoinRoom(c.Request.Context(), domain.RoomID(req.RoomName)); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", req.RoomName).Msg("agent join")
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, AgentResponse{Success: true, Message: fmt.Sprintf("Agent joined room: %s", req.RoomName)})
}

func (h *handlers) agentLeave(c *gin.Context) {
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "roomName is required")
		return
	}
	if err := h.deps.Agents.LeaveRoom(c.Request.Context(), domain.RoomID(req.RoomName)); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", req.RoomName).Msg("agent leave")
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, AgentResponse{Success: true, Message: fmt.Sprintf("Agent left room: %s", req.RoomName)})
}

func (h *handlers) agentRooms(c *gin.Context) {
	rooms := h.deps.Agents.ListActiveRooms()
	if rooms == nil {
		rooms = []domain.RoomID{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms := h.deps.Hub.Rooms.List()
	if rooms == nil {
		rooms = []core.RoomInfo{}
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *handlers) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid name")
		return
	}
	id := domain.RoomID(req.Name)
	if err := domain.ValidateRoomID(id); err != nil {
		badRequest(c, err.Error())
		return
	}
	room := h.deps.Hub.Rooms.GetOrCreate(id)
	c.JSON(http.StatusCreated, core.RoomInfo{ID: id, MemberCount: room.MemberCount(), CreatedAt: room.Room().CreatedAt})
}

func (h *handlers) roomMembers(c *gin.Context) {
	room, ok := h.deps.Hub.Rooms.Get(domain.RoomID(c.Param("room")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, room.MembersSnapshot())
}

func (h *handlers) deleteRoom(c *gin.Context) {
	h.deps.Hub.EvictRoom(domain.RoomID(c.Param("room")))
	c.Status(http.StatusNoContent)
}

func (h *handlers) history(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		return
	}
	limit := h.cfg.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "invalid limit")
			return
		}
		limit = min(n, h.cfg.HistoryLimit)
	}
	msgs, err := h.deps.History.History(c.Request.Context(), room, limit)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(room)).Msg("read history")
		serverError(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.StoredMessage{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) appendMessage(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		return
	}
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "message is required")
		return
	}
	user := c.GetString("username")
	sender, name := req.SenderIdentity, req.SenderName
	if sender == "" {
		sender = user
	}
	if name == "" {
		name = user
	}
	msg, err := h.deps.History.AppendMessage(c.Request.Context(), room, domain.Identity(sender), name, req.Message)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(room)).Msg("append message")
		serverError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
