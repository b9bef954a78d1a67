// Package controlplane is the HTTP client of the voxroom control plane: sign-in,
// join tokens, agent requests and message history.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrAgentRole is returned when asked for an agent token; only the server mints those.
	ErrAgentRole = errors.New("agent tokens are not issued over the control plane")
	// ErrIdentityMismatch means a token was asked for someone other than the signed-in user.
	ErrIdentityMismatch = errors.New("identity differs from the signed-in user")
)

// StatusError is a non-2xx answer from the control plane.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("control plane: status %d", e.Code)
	}
	return fmt.Sprintf("control plane: status %d: %s", e.Code, e.Message)
}

type TokenResponse struct {
	Token string `json:"token"`
	WSURL string `json:"wsUrl"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Client struct {
	base   string
	http   *http.Client
	logger zerolog.Logger

	mu     sync.RWMutex
	bearer string
	user   string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: timeout},
		logger: log.With().Str("module", "adapters.controlplane").Logger(),
	}
}

// SignalURL derives the websocket signalling endpoint from an http(s) base URL.
func SignalURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/api/ws/signal"
	return u.String(), nil
}

func (c *Client) authenticate(ctx context.Context, path, username, password string) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, path, map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return AuthResponse{}, err
	}
	c.mu.Lock()
	c.bearer, c.user = out.Token, out.User.Username
	c.mu.Unlock()
	return out, nil
}

// Register creates an account and keeps its session for later requests.
func (c *Client) Register(ctx context.Context, username, password string) (AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/register", username, password)
}

// Login signs in and keeps the session for later requests.
func (c *Client) Login(ctx context.Context, username, password string) (AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/login", username, password)
}

// SignIn logs in, registering the account first when the server does not know it.
func (c *Client) SignIn(ctx context.Context, username, password string) (AuthResponse, error) {
	res, err := c.Login(ctx, username, password)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		return res, err
	}
	res, regErr := c.Register(ctx, username, password)
	if errors.As(regErr, &se) && se.Code == http.StatusConflict {
		// The name exists, so the password was wrong.
		return AuthResponse{}, err
	}
	return res, regErr
}

// User returns the signed-in username, or "" before sign-in.
func (c *Client) User() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Token asks the control plane for a join token for the signed-in user.
func (c *Client) Token(ctx context.Context, room domain.RoomID) (TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/token", map[string]string{"roomName": string(room)}, &out)
	return out, err
}

// IssueJoinToken implements core.CredentialIssuer for the signed-in participant.
func (c *Client) IssueJoinToken(ctx context.Context, room domain.RoomID, identity domain.Identity, role domain.Role) (string, error) {
	if role == domain.RoleAgent {
		return "", ErrAgentRole
	}
	if user := c.User(); user != "" && user != string(identity) {
		return "", fmt.Errorf("%w: %q is signed in, not %q", ErrIdentityMismatch, user, identity)
	}
	res, err := c.Token(ctx, room)
	if err != nil {
		return "", err
	}
	return res.Token, nil
}

func (c *Client) JoinAgent(ctx context.Context, room domain.RoomID) error {
	return c.do(ctx, http.MethodPost, "/api/agent/join", map[string]string{"roomName": string(room)}, nil)
}

func (c *Client) LeaveAgent(ctx context.Context, room domain.RoomID) error {
	return c.do(ctx, http.MethodPost, "/api/agent/leave", map[string]string{"roomName": string(room)}, nil)
}

func (c *Client) AppendMessage(ctx context.Context, room domain.RoomID, senderIdentity domain.Identity, senderName, text string) (domain.StoredMessage, error) {
	var out domain.StoredMessage
	err := c.do(ctx, http.MethodPost, roomPath(room), map[string]string{
		"senderIdentity": string(senderIdentity),
		"senderName":     senderName,
		"message":        text,
	}, &out)
	return out, err
}

// History returns the oldest limit stored messages in chronological order.
func (c *Client) History(ctx context.Context, room domain.RoomID, limit int) ([]domain.StoredMessage, error) {
	path := roomPath(room)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []domain.StoredMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func roomPath(room domain.RoomID) string {
	return "/api/rooms/" + url.PathEscape(string(room)) + "/messages"
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("request failed")
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
