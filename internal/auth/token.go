// Package auth issues and validates room join tokens.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

// Grant is what a token allows inside one room.
type Grant struct {
	Room           domain.RoomID `json:"room" validate:"required,max=64"`
	RoomJoin       bool          `json:"roomJoin"`
	CanPublish     bool          `json:"canPublish"`
	CanSubscribe   bool          `json:"canSubscribe"`
	CanPublishData bool          `json:"canPublishData"`
}

// Claims is the JWT payload. Subject carries the identity.
type Claims struct {
	Name  string      `json:"name"`
	Role  domain.Role `json:"role" validate:"oneof=participant agent"`
	Video Grant       `json:"video"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() domain.Identity { return domain.Identity(c.Subject) }

type Config struct {
	APIKey         string
	APISecret      string
	ParticipantTTL time.Duration
	AgentTTL       time.Duration
	// AgentName is the display name stamped on agent tokens.
	AgentName string
}

type Issuer struct {
	cfg      Config
	validate *validator.Validate
	now      func() time.Time
}

func NewIssuer(cfg Config) *Issuer {
	if cfg.ParticipantTTL <= 0 {
		cfg.ParticipantTTL = 10 * time.Minute
	}
	if cfg.AgentTTL <= 0 {
		cfg.AgentTTL = time.Hour
	}
	return &Issuer{cfg: cfg, validate: validator.New(), now: time.Now}
}

// IssueJoinToken signs a token for identity in room. Agents get the agent name and a longer TTL.
func (i *Issuer) IssueJoinToken(_ context.Context, room domain.RoomID, identity domain.Identity, role domain.Role) (string, error) {
	if err := domain.ValidateRoomID(room); err != nil {
		return "", err
	}
	if err := domain.ValidateIdentity(identity); err != nil {
		return "", err
	}

	ttl, name := i.cfg.ParticipantTTL, string(identity)
	if role == domain.RoleAgent {
		ttl = i.cfg.AgentTTL
		if i.cfg.AgentName != "" {
			name = i.cfg.AgentName
		}
	}
	now := i.now()
	claims := &Claims{
		Name: name,
		Role: role,
		Video: Grant{
			Room:           room,
			RoomJoin:       true,
			CanPublish:     true,
			CanSubscribe:   true,
			CanPublishData: true,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity),
			Issuer:    i.cfg.APIKey,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if err := i.validate.Struct(claims); err != nil {
		return "", fmt.Errorf("claims: %w", err)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.APISecret))
}

// Validate checks signature, issuer, expiry and grant. Every failure wraps domain.ErrInvalidToken.
func (i *Issuer) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(i.cfg.APISecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.APIKey),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	if err := i.validate.Struct(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !claims.Video.RoomJoin {
		return nil, fmt.Errorf("%w: room join not granted", domain.ErrInvalidToken)
	}
	if err := domain.ValidateIdentity(claims.Identity()); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	return claims, nil
}
