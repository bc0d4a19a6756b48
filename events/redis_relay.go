package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"whatsapp-relay/models"
)

// DefaultRedisChannel is the pub/sub channel shared by all relay instances.
const DefaultRedisChannel = "relay:events"

// DefaultRetryInterval is the pause between subscription attempts.
const DefaultRetryInterval = 2 * time.Second

// RedisRelay publishes events on a Redis channel and re-dispatches every
// event received on that channel to the local broadcaster. Running one
// relay per instance lets a webhook hitting instance A reach a browser
// connected to instance B.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   Broadcaster
	retry   time.Duration

	subscribed atomic.Bool
	readyOnce  sync.Once
	ready      chan struct{}
}

// NewRedisRelay wires a relay. local is usually the WebSocket hub.
func NewRedisRelay(rdb *redis.Client, channel string, local Broadcaster) *RedisRelay {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		local:   local,
		retry:   DefaultRetryInterval,
		ready:   make(chan struct{}),
	}
}

// Broadcast publishes evt. While this instance is not subscribed, or if
// Redis is unavailable, the event is delivered to local clients directly.
func (r *RedisRelay) Broadcast(evt models.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("relay: failed to encode event", "type", evt.Message.Type, "error", err)
		return
	}
	if err := r.rdb.Publish(context.Background(), r.channel, data).Err(); err != nil {
		slog.Warn("relay: publish failed, delivering locally", "channel", r.channel, "error", err)
		r.local.Broadcast(evt)
		return
	}
	if !r.subscribed.Load() {
		r.local.Broadcast(evt)
	}
}

// Ready is closed once the first subscription is confirmed by the server.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Subscribed reports whether events published now come back to this instance.
func (r *RedisRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Run subscribes to the relay channel and forwards events until ctx is
// done. A failed or lost subscription is retried every retry interval.
func (r *RedisRelay) Run(ctx context.Context) error {
	for {
		err := r.subscribeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("relay: subscription down, retrying", "channel", r.channel, "in", r.retry, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.retry):
		}
	}
}

func (r *RedisRelay) subscribeOnce(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	defer r.subscribed.Store(false)

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.subscribed.Store(true)
	r.readyOnce.Do(func() { close(r.ready) })
	slog.Info("relay: subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription closed")
			}
			var evt models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				slog.Warn("relay: dropping undecodable event", "error", err)
				continue
			}
			r.local.Broadcast(evt)
		}
	}
}
