package models

import (
	"time"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusReceived  MessageStatus = "received"
	StatusFailed    MessageStatus = "failed"
)

// Common message types. Webhook messages keep whatever type the provider
// reports.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeVideo = "video"
)

// DemoSender is the sender used by /api/send-message when none is given.
const DemoSender = "demo_user"

// Message represents a stored message. Webhook, demo and chat messages all
// live in the same collection; WaID is the conversation key (the business
// phone number id for webhook traffic, the chat id for chat messages).
type Message struct {
	ID              string         `bson:"id" json:"id"`
	WaID            string         `bson:"wa_id" json:"wa_id"`
	From            string         `bson:"from" json:"from"`
	Timestamp       int64          `bson:"timestamp" json:"timestamp"`
	Type            string         `bson:"type" json:"type"`
	Content         string         `bson:"content" json:"content"`
	Status          MessageStatus  `bson:"status" json:"status"`
	ProcessedAt     time.Time      `bson:"processed_at" json:"processed_at"`
	StatusTimestamp int64          `bson:"status_timestamp,omitempty" json:"status_timestamp,omitempty"`
	UpdatedAt       *time.Time     `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
	IsDemo          bool           `bson:"is_demo,omitempty" json:"is_demo,omitempty"`
	SourceFile      string         `bson:"source_file,omitempty" json:"source_file,omitempty"`
	RawPayload      map[string]any `bson:"raw_payload,omitempty" json:"raw_payload,omitempty"`
}

// StatusUpdate is the payload pushed to clients when a message changes state.
type StatusUpdate struct {
	MessageID string        `json:"messageId"`
	Status    MessageStatus `json:"status"`
	WaID      string        `json:"wa_id,omitempty"`
}
