package handlers

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"whatsapp-relay/models"
)

// DBManager is the store contract shared by the MongoDB and bbolt backends.
// Lookups that find nothing return models.ErrNotFound; unique conflicts
// return models.ErrDuplicate.
type DBManager interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context) ([]models.User, error)

	CreateChat(ctx context.Context, chat *models.Chat) error
	ListUserChats(ctx context.Context, userID primitive.ObjectID) ([]models.Chat, error)
	SetChatLastMessage(ctx context.Context, chatID primitive.ObjectID, ref models.LastMessageRef) error

	InsertMessage(ctx context.Context, msg *models.Message) error
	InsertMessageIfAbsent(ctx context.Context, msg *models.Message) (bool, error)
	UpdateMessageStatus(ctx context.Context, id string, status models.MessageStatus, statusTS int64, at time.Time) (*models.Message, error)
	ListMessages(ctx context.Context) ([]models.Message, error)
	ListConversationMessages(ctx context.Context, waID string) ([]models.Message, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	CountMessages(ctx context.Context) (int64, error)

	Close() error
}
