package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"whatsapp-relay/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client control messages.
const (
	wsSubscribe   = "subscribe"
	wsUnsubscribe = "unsubscribe"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection. subs is guarded by the hub lock.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]struct{}
}

// Hub keeps the connected clients and their conversation subscriptions.
// A client without subscriptions receives every event.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	wildcard map[*Client]struct{}
	topics   map[string]map[*Client]struct{}
}

// HubStats is returned by the realtime stats endpoint.
type HubStats struct {
	Clients       int            `json:"clients"`
	Subscriptions map[string]int `json:"subscriptions"`
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		wildcard: make(map[*Client]struct{}),
		topics:   make(map[string]map[*Client]struct{}),
	}
}

// Broadcast sends evt to the subscribers of its conversation and to every
// wildcard client. Clients whose buffer is full are disconnected.
func (h *Hub) Broadcast(evt models.Event) {
	data, err := json.Marshal(evt.Message)
	if err != nil {
		slog.Error("ws: failed to encode event", "type", evt.Message.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return
	}

	targets := make([]*Client, 0, len(h.wildcard)+len(h.topics[evt.Conversation]))
	for c := range h.wildcard {
		targets = append(targets, c)
	}
	for c := range h.topics[evt.Conversation] {
		targets = append(targets, c)
	}

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			slog.Warn("ws: client too slow, dropping", "client", c.ID)
			h.removeLocked(c)
		}
	}
}

// Stats reports the number of clients and subscribers per conversation.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make(map[string]int, len(h.topics))
	for topic, set := range h.topics {
		subs[topic] = len(set)
	}
	return HubStats{Clients: len(h.clients), Subscriptions: subs}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) register(c *Client, conversations []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	for _, conv := range conversations {
		h.subscribeLocked(c, conv)
	}
	if len(c.subs) == 0 {
		h.wildcard[c] = struct{}{}
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) subscribe(c *Client, conv string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.subscribeLocked(c, conv)
}

func (h *Hub) unsubscribe(c *Client, conv string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	if _, ok := c.subs[conv]; !ok {
		return
	}
	delete(c.subs, conv)
	h.dropTopicLocked(c, conv)
	if len(c.subs) == 0 {
		h.wildcard[c] = struct{}{}
	}
}

func (h *Hub) subscribeLocked(c *Client, conv string) {
	if conv == "" {
		return
	}
	c.subs[conv] = struct{}{}
	set, ok := h.topics[conv]
	if !ok {
		set = make(map[*Client]struct{})
		h.topics[conv] = set
	}
	set[c] = struct{}{}
	delete(h.wildcard, c)
}

func (h *Hub) dropTopicLocked(c *Client, conv string) {
	if set, ok := h.topics[conv]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.topics, conv)
		}
	}
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	delete(h.wildcard, c)
	for conv := range c.subs {
		h.dropTopicLocked(c, conv)
	}
	close(c.send)
}

// HandleWebSocket upgrades the request and attaches the connection to the
// hub. Repeated ?conversation= parameters subscribe at connect time.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]struct{}),
	}
	h.register(client, c.QueryArray("conversation"))
	slog.Info("ws: client connected", "client", client.ID, "remote", c.ClientIP())

	go client.writePump()
	go client.readPump()
}

type controlMessage struct {
	Type    string `json:"type"`
	Payload struct {
		Conversation string `json:"conversation"`
	} `json:"payload"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		slog.Info("ws: client disconnected", "client", c.ID)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("ws: read error", "client", c.ID, "error", err)
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case wsSubscribe:
			c.hub.subscribe(c, msg.Payload.Conversation)
		case wsUnsubscribe:
			c.hub.unsubscribe(c, msg.Payload.Conversation)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
