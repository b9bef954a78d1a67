// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxIdentityLen = 64
	MaxRoomIDLen   = 64
)

var (
	ErrIdentityTooLong = errors.New("identity too long")
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrRoomEmpty       = errors.New("room id empty")
	ErrRoomTooLong     = errors.New("room id too long")
)

// Identity names one endpoint inside a room. Unique per room.
type Identity string

// Role decides which grant a join token carries.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleAgent       Role = "agent"
)

func ValidateIdentity(id Identity) error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrIdentityEmpty
	}
	if len(id) > MaxIdentityLen {
		return ErrIdentityTooLong
	}
	return nil
}

func ValidateRoomID(id RoomID) error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrRoomEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomTooLong
	}
	return nil
}
