package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatType is either private or group.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// LastMessageRef is the denormalized pointer to the newest message of a chat.
type LastMessageRef struct {
	MessageID string    `bson:"messageId" json:"messageId"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Chat represents a private or group conversation between users.
type Chat struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Type         ChatType             `bson:"type" json:"type"`
	Participants []primitive.ObjectID `bson:"participants" json:"participants"`
	ChatName     *string              `bson:"chatName" json:"chatName"`
	CreatedAt    time.Time            `bson:"createdAt" json:"createdAt"`
	LastMessage  *LastMessageRef      `bson:"lastMessage" json:"lastMessage"`
}

// HasParticipant reports whether userID takes part in the chat.
func (c *Chat) HasParticipant(userID primitive.ObjectID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
