package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"whatsapp-relay/models"
)

var (
	usersBucket     = []byte("users")
	usernamesBucket = []byte("usernames")
	chatsBucket     = []byte("chats")
	messagesBucket  = []byte("messages")
)

// BoltManager is a single-file store with the same contract as the MongoDB
// store. Records are kept as JSON keyed by id; listing scans the bucket.
type BoltManager struct {
	db *bbolt.DB
}

func NewBoltManager(path string) (*BoltManager, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{usersBucket, usernamesBucket, chatsBucket, messagesBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltManager{db: db}, nil
}

func (bm *BoltManager) Ping(ctx context.Context) error {
	return bm.db.View(func(tx *bbolt.Tx) error { return nil })
}

func (bm *BoltManager) Close() error {
	return bm.db.Close()
}

// Users

func (bm *BoltManager) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	return bm.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(usernamesBucket)
		if names.Get([]byte(user.Username)) != nil {
			return models.ErrDuplicate
		}
		if err := putJSON(tx.Bucket(usersBucket), user.ID.Hex(), user); err != nil {
			return err
		}
		return names.Put([]byte(user.Username), []byte(user.ID.Hex()))
	})
}

func (bm *BoltManager) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := bm.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(usersBucket).ForEach(func(k, v []byte) error {
			var u models.User
			if err := json.Unmarshal(v, &u); err != nil {
				return fmt.Errorf("decode user %s: %w", k, err)
			}
			users = append(users, u)
			return nil
		})
	})
	return users, err
}

// Chats

func (bm *BoltManager) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.ID.IsZero() {
		chat.ID = primitive.NewObjectID()
	}
	return bm.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(chatsBucket), chat.ID.Hex(), chat)
	})
}

func (bm *BoltManager) ListUserChats(ctx context.Context, userID primitive.ObjectID) ([]models.Chat, error) {
	chats := []models.Chat{}
	err := bm.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(chatsBucket).ForEach(func(k, v []byte) error {
			var c models.Chat
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode chat %s: %w", k, err)
			}
			if c.HasParticipant(userID) {
				chats = append(chats, c)
			}
			return nil
		})
	})
	return chats, err
}

func (bm *BoltManager) SetChatLastMessage(ctx context.Context, chatID primitive.ObjectID, ref models.LastMessageRef) error {
	return bm.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(chatsBucket)
		var c models.Chat
		if err := getJSON(b, chatID.Hex(), &c); err != nil {
			return err
		}
		c.LastMessage = &ref
		return putJSON(b, chatID.Hex(), &c)
	})
}

// Messages

func (bm *BoltManager) InsertMessage(ctx context.Context, msg *models.Message) error {
	return bm.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(messagesBucket)
		if b.Get([]byte(msg.ID)) != nil {
			return models.ErrDuplicate
		}
		return putJSON(b, msg.ID, msg)
	})
}

func (bm *BoltManager) InsertMessageIfAbsent(ctx context.Context, msg *models.Message) (bool, error) {
	err := bm.InsertMessage(ctx, msg)
	if errors.Is(err, models.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (bm *BoltManager) UpdateMessageStatus(ctx context.Context, id string, status models.MessageStatus, statusTS int64, at time.Time) (*models.Message, error) {
	var msg models.Message
	err := bm.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(messagesBucket)
		if err := getJSON(b, id, &msg); err != nil {
			return err
		}
		msg.Status = status
		msg.StatusTimestamp = statusTS
		msg.UpdatedAt = &at
		return putJSON(b, id, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns every message, newest first.
func (bm *BoltManager) ListMessages(ctx context.Context) ([]models.Message, error) {
	msgs, err := bm.scanMessages(func(*models.Message) bool { return true })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool { return newerFirst(&msgs[i], &msgs[j]) })
	return msgs, nil
}

// ListConversationMessages returns the messages of one conversation, oldest first.
func (bm *BoltManager) ListConversationMessages(ctx context.Context, waID string) ([]models.Message, error) {
	msgs, err := bm.scanMessages(func(m *models.Message) bool { return m.WaID == waID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool { return newerFirst(&msgs[j], &msgs[i]) })
	return msgs, nil
}

func (bm *BoltManager) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	msgs, err := bm.scanMessages(func(*models.Message) bool { return true })
	if err != nil {
		return nil, err
	}
	return models.BuildConversations(msgs), nil
}

func (bm *BoltManager) CountMessages(ctx context.Context) (int64, error) {
	var n int
	err := bm.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(messagesBucket).Stats().KeyN
		return nil
	})
	return int64(n), err
}

func (bm *BoltManager) scanMessages(keep func(*models.Message) bool) ([]models.Message, error) {
	msgs := []models.Message{}
	err := bm.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(messagesBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m models.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decode message %s: %w", k, err)
			}
			if keep(&m) {
				msgs = append(msgs, m)
			}
		}
		return nil
	})
	return msgs, err
}

func newerFirst(a, b *models.Message) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.ProcessedAt.After(b.ProcessedAt)
}

func putJSON(b *bbolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func getJSON(b *bbolt.Bucket, key string, v interface{}) error {
	data := b.Get([]byte(key))
	if data == nil {
		return models.ErrNotFound
	}
	return json.Unmarshal(data, v)
}
