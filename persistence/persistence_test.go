package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"whatsapp-relay/models"
)

func newTestManager(t *testing.T) *BoltManager {
	t.Helper()
	bm, err := NewBoltManager(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("NewBoltManager() error: %v", err)
	}
	t.Cleanup(func() { bm.Close() })
	return bm
}

func TestBoltManager_UsersAreUniqueByUsername(t *testing.T) {
	bm := newTestManager(t)
	ctx := context.Background()

	u := &models.User{Username: "alice", DisplayName: "Alice", CreatedAt: time.Now().UTC()}
	if err := bm.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	if u.ID.IsZero() {
		t.Fatal("expected id to be assigned")
	}

	err := bm.CreateUser(ctx, &models.User{Username: "alice", DisplayName: "Other"})
	if !errors.Is(err, models.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	users, err := bm.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("ListUsers() = %v, %v", users, err)
	}
	if users[0].ID != u.ID || users[0].DisplayName != "Alice" {
		t.Fatalf("unexpected user: %+v", users[0])
	}
}

func TestBoltManager_ChatsAndLastMessage(t *testing.T) {
	bm := newTestManager(t)
	ctx := context.Background()

	alice, bob, carol := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	chat := &models.Chat{Type: models.ChatPrivate, Participants: []primitive.ObjectID{alice, bob}}
	if err := bm.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat() error: %v", err)
	}

	chats, err := bm.ListUserChats(ctx, alice)
	if err != nil || len(chats) != 1 || chats[0].ID != chat.ID {
		t.Fatalf("ListUserChats(alice) = %v, %v", chats, err)
	}
	chats, err = bm.ListUserChats(ctx, carol)
	if err != nil || len(chats) != 0 {
		t.Fatalf("ListUserChats(carol) = %v, %v", chats, err)
	}

	ts := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	if err := bm.SetChatLastMessage(ctx, chat.ID, models.LastMessageRef{MessageID: "m1", Timestamp: ts}); err != nil {
		t.Fatalf("SetChatLastMessage() error: %v", err)
	}
	chats, _ = bm.ListUserChats(ctx, bob)
	if chats[0].LastMessage == nil || chats[0].LastMessage.MessageID != "m1" || !chats[0].LastMessage.Timestamp.Equal(ts) {
		t.Fatalf("lastMessage not set: %+v", chats[0].LastMessage)
	}

	err = bm.SetChatLastMessage(ctx, primitive.NewObjectID(), models.LastMessageRef{MessageID: "x"})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown chat, got %v", err)
	}
}

func TestBoltManager_MessagesOrderingAndStatus(t *testing.T) {
	bm := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, m := range []models.Message{
		{ID: "a", WaID: "1", Timestamp: 20, ProcessedAt: now},
		{ID: "b", WaID: "1", Timestamp: 10, ProcessedAt: now},
		{ID: "c", WaID: "2", Timestamp: 30, ProcessedAt: now},
	} {
		m := m
		inserted, err := bm.InsertMessageIfAbsent(ctx, &m)
		if err != nil || !inserted {
			t.Fatalf("InsertMessageIfAbsent(%s) = %v, %v", m.ID, inserted, err)
		}
	}

	inserted, err := bm.InsertMessageIfAbsent(ctx, &models.Message{ID: "a", WaID: "1"})
	if err != nil || inserted {
		t.Fatalf("duplicate insert = %v, %v", inserted, err)
	}
	if err := bm.InsertMessage(ctx, &models.Message{ID: "a"}); !errors.Is(err, models.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	all, err := bm.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages() error: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[1].ID != "a" || all[2].ID != "b" {
		t.Fatalf("unexpected descending order: %v", ids(all))
	}

	conv, err := bm.ListConversationMessages(ctx, "1")
	if err != nil {
		t.Fatalf("ListConversationMessages() error: %v", err)
	}
	if len(conv) != 2 || conv[0].ID != "b" || conv[1].ID != "a" {
		t.Fatalf("unexpected ascending order: %v", ids(conv))
	}

	convs, err := bm.ListConversations(ctx)
	if err != nil || len(convs) != 2 || convs[0].ID != "2" || convs[1].MessageCount != 2 {
		t.Fatalf("ListConversations() = %+v, %v", convs, err)
	}

	updated, err := bm.UpdateMessageStatus(ctx, "a", models.StatusRead, 99, now)
	if err != nil {
		t.Fatalf("UpdateMessageStatus() error: %v", err)
	}
	if updated.Status != models.StatusRead || updated.StatusTimestamp != 99 || updated.WaID != "1" {
		t.Fatalf("unexpected updated message: %+v", updated)
	}
	if _, err := bm.UpdateMessageStatus(ctx, "missing", models.StatusRead, 1, now); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	n, err := bm.CountMessages(ctx)
	if err != nil || n != 3 {
		t.Fatalf("CountMessages() = %d, %v", n, err)
	}
}

func TestBoltManager_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()

	bm, err := NewBoltManager(path)
	if err != nil {
		t.Fatalf("NewBoltManager() error: %v", err)
	}
	raw := map[string]any{"id": "m1", "text": map[string]any{"body": "hi"}}
	if err := bm.InsertMessage(ctx, &models.Message{ID: "m1", WaID: "1", RawPayload: raw}); err != nil {
		t.Fatalf("InsertMessage() error: %v", err)
	}
	if err := bm.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	bm, err = NewBoltManager(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer bm.Close()

	msgs, err := bm.ListMessages(ctx)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("ListMessages() = %v, %v", msgs, err)
	}
	text, _ := msgs[0].RawPayload["text"].(map[string]any)
	if text["body"] != "hi" {
		t.Fatalf("raw payload lost: %#v", msgs[0].RawPayload)
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
