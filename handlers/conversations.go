package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-relay/models"
)

type sendMessageRequest struct {
	WaID    string `json:"wa_id"`
	Content string `json:"content"`
	From    string `json:"from"`
}

func (api *API) listMessages(c *gin.Context) {
	msgs, err := api.db.ListMessages(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (api *API) listConversations(c *gin.Context) {
	convs, err := api.db.ListConversations(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (api *API) listConversationMessages(c *gin.Context) {
	msgs, err := api.db.ListConversationMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// sendDemoMessage stores a locally authored message. Nothing is sent to
// the provider.
func (api *API) sendDemoMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if req.WaID == "" || req.Content == "" {
		badRequest(c, "wa_id and content are required")
		return
	}
	if req.From == "" {
		req.From = models.DemoSender
	}

	now := api.now().UTC()
	msg := &models.Message{
		ID:          fmt.Sprintf("demo_%d", api.nextDemoMillis(now.UnixMilli())),
		WaID:        req.WaID,
		From:        req.From,
		Timestamp:   now.Unix(),
		Type:        models.TypeText,
		Content:     req.Content,
		Status:      models.StatusSent,
		ProcessedAt: now,
		IsDemo:      true,
	}
	if err := api.db.InsertMessage(c.Request.Context(), msg); err != nil {
		internalError(c, err)
		return
	}

	api.broadcaster.Broadcast(models.NewMessageEvent(msg))
	c.JSON(http.StatusCreated, msg)
}

// nextDemoMillis keeps demo ids unique when two sends land in the same
// millisecond.
func (api *API) nextDemoMillis(ms int64) int64 {
	api.demoMu.Lock()
	defer api.demoMu.Unlock()
	if ms <= api.lastDemo {
		ms = api.lastDemo + 1
	}
	api.lastDemo = ms
	return ms
}
