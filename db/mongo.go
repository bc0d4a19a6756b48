package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"whatsapp-relay/models"
)

const (
	DefaultDatabase = "whatsapp"

	usersCollection      = "users"
	chatsCollection      = "chats"
	messagesCollection   = "messages"
	migrationsCollection = "schema_migrations"
)

type MongoManager struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *mongo.Collection
	chats    *mongo.Collection
	messages *mongo.Collection
}

// NewMongoManager creates the client. The driver connects lazily, so an
// unreachable server shows up on Ping or on the first query, not here.
func NewMongoManager(ctx context.Context, uri, database string) (*MongoManager, error) {
	if database == "" {
		database = DefaultDatabase
	}

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(25).
		SetRetryWrites(false).
		SetRetryReads(false)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	return newMongoManager(client.Database(database)), nil
}

func newMongoManager(d *mongo.Database) *MongoManager {
	return &MongoManager{
		client:   d.Client(),
		db:       d,
		users:    d.Collection(usersCollection),
		chats:    d.Collection(chatsCollection),
		messages: d.Collection(messagesCollection),
	}
}

func (m *MongoManager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoManager) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Users

func (m *MongoManager) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := m.findUserByUsername(ctx, user.Username); err == nil {
		return models.ErrDuplicate
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, err := m.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *MongoManager) findUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := m.users.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (m *MongoManager) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := m.findAll(ctx, m.users, bson.M{}, nil, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Chats

func (m *MongoManager) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.ID.IsZero() {
		chat.ID = primitive.NewObjectID()
	}
	if _, err := m.chats.InsertOne(ctx, chat); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (m *MongoManager) ListUserChats(ctx context.Context, userID primitive.ObjectID) ([]models.Chat, error) {
	chats := []models.Chat{}
	if err := m.findAll(ctx, m.chats, bson.M{"participants": userID}, nil, &chats); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

func (m *MongoManager) SetChatLastMessage(ctx context.Context, chatID primitive.ObjectID, ref models.LastMessageRef) error {
	res, err := m.chats.UpdateByID(ctx, chatID, bson.M{"$set": bson.M{"lastMessage": ref}})
	if err != nil {
		return fmt.Errorf("update chat lastMessage: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Messages

func (m *MongoManager) InsertMessage(ctx context.Context, msg *models.Message) error {
	if _, err := m.messages.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// InsertMessageIfAbsent does a single existence check before inserting.
// The unique index on id turns a lost race into a duplicate instead of a
// second record.
func (m *MongoManager) InsertMessageIfAbsent(ctx context.Context, msg *models.Message) (bool, error) {
	err := m.messages.FindOne(ctx, bson.M{"id": msg.ID}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, mongo.ErrNoDocuments):
		return false, fmt.Errorf("lookup message: %w", err)
	}

	if err := m.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *MongoManager) UpdateMessageStatus(ctx context.Context, id string, status models.MessageStatus, statusTS int64, at time.Time) (*models.Message, error) {
	update := bson.M{"$set": bson.M{
		"status":           status,
		"status_timestamp": statusTS,
		"updated_at":       at,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg models.Message
	err := m.messages.FindOneAndUpdate(ctx, bson.M{"id": id}, update, opts).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update message status: %w", err)
	}
	return &msg, nil
}

func (m *MongoManager) ListMessages(ctx context.Context) ([]models.Message, error) {
	msgs := []models.Message{}
	if err := m.findAll(ctx, m.messages, bson.M{}, newestFirst, &msgs); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (m *MongoManager) ListConversationMessages(ctx context.Context, waID string) ([]models.Message, error) {
	msgs := []models.Message{}
	if err := m.findAll(ctx, m.messages, bson.M{"wa_id": waID}, oldestFirst, &msgs); err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	return msgs, nil
}

func (m *MongoManager) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	cur, err := m.messages.Aggregate(ctx, ConversationsPipeline())
	if err != nil {
		return nil, fmt.Errorf("aggregate conversations: %w", err)
	}
	convs := []models.Conversation{}
	if err := cur.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return convs, nil
}

func (m *MongoManager) CountMessages(ctx context.Context) (int64, error) {
	n, err := m.messages.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (m *MongoManager) findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D, out interface{}) error {
	opts := options.Find()
	if sort != nil {
		opts.SetSort(sort)
	}
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}
