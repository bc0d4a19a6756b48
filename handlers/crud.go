package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"whatsapp-relay/models"
)

type createUserRequest struct {
	Username        string `json:"username"`
	DisplayName     string `json:"displayName"`
	ProfilePhotoURL string `json:"profilePhotoUrl"`
}

type createChatRequest struct {
	Type         string   `json:"type"`
	Participants []string `json:"participants"`
	ChatName     string   `json:"chatName"`
}

type createMessageRequest struct {
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
	Type     string `json:"type"`
}

func (api *API) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if req.Username == "" || req.DisplayName == "" {
		badRequest(c, "username and displayName are required")
		return
	}

	now := api.now().UTC()
	user := &models.User{
		ID:          primitive.NewObjectID(),
		Username:    req.Username,
		DisplayName: req.DisplayName,
		CreatedAt:   now,
		LastSeen:    now,
	}
	if req.ProfilePhotoURL != "" {
		user.ProfilePhotoURL = &req.ProfilePhotoURL
	}

	if err := api.db.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			badRequest(c, "User already exists")
			return
		}
		internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"userId": user.ID})
}

func (api *API) listUsers(c *gin.Context) {
	users, err := api.db.ListUsers(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (api *API) createChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if req.Type == "" || len(req.Participants) < 2 {
		badRequest(c, "type and at least 2 participants are required")
		return
	}

	participants := make([]primitive.ObjectID, 0, len(req.Participants))
	for _, p := range req.Participants {
		id, err := primitive.ObjectIDFromHex(p)
		if err != nil {
			badRequest(c, "invalid participant id: "+p)
			return
		}
		participants = append(participants, id)
	}

	chat := &models.Chat{
		ID:           primitive.NewObjectID(),
		Type:         models.ChatType(req.Type),
		Participants: participants,
		CreatedAt:    api.now().UTC(),
	}
	if req.ChatName != "" {
		chat.ChatName = &req.ChatName
	}

	if err := api.db.CreateChat(c.Request.Context(), chat); err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chatId": chat.ID})
}

func (api *API) listUserChats(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid user id")
		return
	}

	chats, err := api.db.ListUserChats(c.Request.Context(), userID)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (api *API) createMessage(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if req.ChatID == "" || req.SenderID == "" || req.Content == "" || req.Type == "" {
		badRequest(c, "chatId, senderId, content, and type are required")
		return
	}

	chatID, err := primitive.ObjectIDFromHex(req.ChatID)
	if err != nil {
		badRequest(c, "invalid chatId")
		return
	}
	senderID, err := primitive.ObjectIDFromHex(req.SenderID)
	if err != nil {
		badRequest(c, "invalid senderId")
		return
	}

	ctx := c.Request.Context()
	now := api.now().UTC()
	msg := &models.Message{
		ID:          primitive.NewObjectID().Hex(),
		WaID:        chatID.Hex(),
		From:        senderID.Hex(),
		Timestamp:   now.Unix(),
		Type:        req.Type,
		Content:     req.Content,
		Status:      models.StatusSent,
		ProcessedAt: now,
	}
	if err := api.db.InsertMessage(ctx, msg); err != nil {
		internalError(c, err)
		return
	}

	ref := models.LastMessageRef{MessageID: msg.ID, Timestamp: now}
	if err := api.db.SetChatLastMessage(ctx, chatID, ref); err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			internalError(c, err)
			return
		}
		slog.Warn("messages: chat not found for lastMessage update", "chat", chatID.Hex(), "message", msg.ID)
	}

	api.broadcaster.Broadcast(models.NewMessageEvent(msg))
	c.JSON(http.StatusCreated, gin.H{"messageId": msg.ID})
}

func (api *API) listChatMessages(c *gin.Context) {
	chatID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid chat id")
		return
	}

	msgs, err := api.db.ListConversationMessages(c.Request.Context(), chatID.Hex())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
