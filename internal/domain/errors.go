package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected  = errors.New("not connected to a room")
	ErrShuttingDown  = errors.New("shutting down")
	ErrRoomFull      = errors.New("room is full")
	ErrInvalidToken  = errors.New("invalid join token")
	ErrRateLimited   = errors.New("rate limited")
	ErrSessionClosed = errors.New("session closed")

	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrUnauthenticated    = errors.New("authentication required")
)

// CredentialError means a join token could not be issued.
type CredentialError struct {
	Room     RoomID
	Identity Identity
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("issue token for %q in room %q: %v", e.Identity, e.Room, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TransportError wraps a failed transport operation (connect, send, publish).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed best-effort write. Never surfaced to callers.
type PersistenceError struct {
	Room RoomID
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist message in room %q: %v", e.Room, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConnectionError is what a failed client connect returns.
type ConnectionError struct {
	Room     RoomID
	Identity Identity
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %q to room %q: %v", e.Identity, e.Room, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
