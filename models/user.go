package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a registered user.
type User struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Username        string             `bson:"username" json:"username"`
	DisplayName     string             `bson:"displayName" json:"displayName"`
	ProfilePhotoURL *string            `bson:"profilePhotoUrl" json:"profilePhotoUrl"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	LastSeen        time.Time          `bson:"lastSeen" json:"lastSeen"`
}
