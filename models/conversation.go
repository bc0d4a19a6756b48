package models

import "sort"

// Conversation is the read-side projection of all messages sharing a
// conversation key. The JSON shape matches what the web client expects.
type Conversation struct {
	ID           string  `bson:"_id" json:"_id"`
	LastMessage  Message `bson:"lastMessage" json:"lastMessage"`
	MessageCount int     `bson:"messageCount" json:"messageCount"`
}

// newerThan reports whether a should be preferred over b as the latest message.
func newerThan(a, b *Message) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.ProcessedAt.After(b.ProcessedAt)
}

// BuildConversations groups msgs by conversation key, keeps the newest
// message of every group and returns the groups newest first.
func BuildConversations(msgs []Message) []Conversation {
	byKey := make(map[string]*Conversation)
	for i := range msgs {
		m := &msgs[i]
		conv, ok := byKey[m.WaID]
		if !ok {
			byKey[m.WaID] = &Conversation{ID: m.WaID, LastMessage: *m, MessageCount: 1}
			continue
		}
		conv.MessageCount++
		if newerThan(m, &conv.LastMessage) {
			conv.LastMessage = *m
		}
	}

	out := make([]Conversation, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessage.Timestamp != out[j].LastMessage.Timestamp {
			return out[i].LastMessage.Timestamp > out[j].LastMessage.Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}
