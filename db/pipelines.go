package db

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	newestFirst = bson.D{{Key: "timestamp", Value: -1}, {Key: "processed_at", Value: -1}}
	oldestFirst = bson.D{{Key: "timestamp", Value: 1}, {Key: "processed_at", Value: 1}}
)

// ConversationsPipeline groups messages by conversation key. Sorting before
// $group makes $first pick the newest message of every group.
func ConversationsPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$sort", Value: newestFirst}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$wa_id"},
			{Key: "lastMessage", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
			{Key: "messageCount", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastMessage.timestamp", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}
