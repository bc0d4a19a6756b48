package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"whatsapp-relay/events"
	"whatsapp-relay/whatsapp"
)

// Ingester is implemented by whatsapp.Ingester.
type Ingester interface {
	Ingest(ctx context.Context, body []byte) (whatsapp.Result, error)
}

// API holds the dependencies of the HTTP handlers.
type API struct {
	db          DBManager
	ingester    Ingester
	broadcaster events.Broadcaster
	hub         *Hub
	now         func() time.Time

	demoMu   sync.Mutex
	lastDemo int64
}

// NewAPI wires the handlers. broadcaster receives every event created
// through the REST endpoints; hub serves /ws and the realtime stats.
func NewAPI(db DBManager, ingester Ingester, broadcaster events.Broadcaster, hub *Hub) *API {
	if broadcaster == nil {
		broadcaster = events.Nop{}
	}
	return &API{
		db:          db,
		ingester:    ingester,
		broadcaster: broadcaster,
		hub:         hub,
		now:         time.Now,
	}
}

// SetupAPIRoutes registers every route on router.
func SetupAPIRoutes(router *gin.Engine, api *API) {
	router.Use(corsMiddleware())

	router.GET("/healthz", api.health)

	// Webhook
	router.POST("/webhook", api.receiveWebhook)

	// Users and chats
	router.POST("/users", api.createUser)
	router.GET("/users", api.listUsers)
	router.GET("/users/:id/chats", api.listUserChats)
	router.POST("/chats", api.createChat)
	router.GET("/chats/:id/messages", api.listChatMessages)
	router.POST("/messages", api.createMessage)

	// Webhook messages and conversations
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/messages", api.listMessages)
		apiGroup.GET("/conversations", api.listConversations)
		apiGroup.GET("/conversations/:id/messages", api.listConversationMessages)
		apiGroup.POST("/send-message", api.sendDemoMessage)
		apiGroup.GET("/realtime/stats", api.realtimeStats)
	}

	if api.hub != nil {
		router.GET("/ws", api.hub.HandleWebSocket)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (api *API) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := api.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "store": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "store": "up"})
}

func (api *API) realtimeStats(c *gin.Context) {
	if api.hub == nil {
		c.JSON(http.StatusOK, HubStats{Subscriptions: map[string]int{}})
		return
	}
	c.JSON(http.StatusOK, api.hub.Stats())
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
