package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRelayChannel = "sdui:push"

type relayEnvelope struct {
	Origin string          `json:"origin"`
	Scope  Scope           `json:"scope"`
	Event  json.RawMessage `json:"event"`
}

// RedisRelay fans broadcasts out to every gateway instance sharing a Redis
// channel. Each instance ignores the envelopes it published itself.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	instance string
	hub      *Hub
}

func NewRedisRelay(addr, password string, db int, channel string, hub *Hub) (*RedisRelay, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if strings.TrimSpace(channel) == "" {
		channel = DefaultRelayChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return newRedisRelay(client, channel, hub), nil
}

func newRedisRelay(client *redis.Client, channel string, hub *Hub) *RedisRelay {
	return &RedisRelay{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		hub:      hub,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, scope Scope, evt Event) error {
	raw, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(relayEnvelope{Origin: r.instance, Scope: scope, Event: raw})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, msg).Err()
}

// Run subscribes and delivers remote broadcasts to the local hub until ctx
// is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Printf("push: relay decode failed: %v", err)
		return
	}
	if env.Origin == r.instance {
		return
	}
	var evt Event
	if err := json.Unmarshal(env.Event, &evt); err != nil {
		log.Printf("push: relay event decode failed: %v", err)
		return
	}
	r.hub.Deliver(env.Scope, evt)
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
