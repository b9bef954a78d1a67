package core

import (
	"context"

	"github.com/dkeye/voxroom/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=services_iface.go -destination=../mocks/mock_services.go -package=mocks

// CredentialIssuer hands out join tokens for a room.
type CredentialIssuer interface {
	IssueJoinToken(ctx context.Context, room domain.RoomID, identity domain.Identity, role domain.Role) (string, error)
}

// MessageStore is the best-effort persistence service for chat lines.
type MessageStore interface {
	AppendMessage(ctx context.Context, room domain.RoomID, senderIdentity domain.Identity, senderName, text string) (domain.StoredMessage, error)
}

// MessageHistory reads back what a MessageStore persisted.
type MessageHistory interface {
	MessageStore
	History(ctx context.Context, room domain.RoomID, limit int) ([]domain.StoredMessage, error)
}
