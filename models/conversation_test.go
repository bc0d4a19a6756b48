package models

import (
	"testing"
	"time"
)

func TestBuildConversations_GroupsAndSortsNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "a1", WaID: "111", Timestamp: 100, Content: "old a", ProcessedAt: base},
		{ID: "b1", WaID: "222", Timestamp: 300, Content: "newest b", ProcessedAt: base},
		{ID: "a2", WaID: "111", Timestamp: 200, Content: "new a", ProcessedAt: base},
		{ID: "b0", WaID: "222", Timestamp: 50, Content: "old b", ProcessedAt: base},
		{ID: "c1", WaID: "333", Timestamp: 150, Content: "only c", ProcessedAt: base},
	}

	convs := BuildConversations(msgs)

	if len(convs) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(convs))
	}

	wantOrder := []string{"222", "111", "333"}
	for i, id := range wantOrder {
		if convs[i].ID != id {
			t.Fatalf("position %d: expected %q, got %q", i, id, convs[i].ID)
		}
	}

	if convs[0].LastMessage.ID != "b1" || convs[0].MessageCount != 2 {
		t.Fatalf("unexpected conversation 222: %+v", convs[0])
	}
	if convs[1].LastMessage.ID != "a2" || convs[1].MessageCount != 2 {
		t.Fatalf("unexpected conversation 111: %+v", convs[1])
	}
	if convs[2].LastMessage.ID != "c1" || convs[2].MessageCount != 1 {
		t.Fatalf("unexpected conversation 333: %+v", convs[2])
	}
}

func TestBuildConversations_SameTimestampPrefersLaterProcessing(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "late", WaID: "111", Timestamp: 100, ProcessedAt: base.Add(time.Second)},
		{ID: "early", WaID: "111", Timestamp: 100, ProcessedAt: base},
	}

	convs := BuildConversations(msgs)
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	if convs[0].LastMessage.ID != "late" {
		t.Fatalf("expected last message %q, got %q", "late", convs[0].LastMessage.ID)
	}
}

func TestBuildConversations_Empty(t *testing.T) {
	convs := BuildConversations(nil)
	if convs == nil || len(convs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", convs)
	}
}
