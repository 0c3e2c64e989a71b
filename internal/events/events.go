package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"semaphore/posts/internal/metrics"
	"semaphore/posts/internal/model"
)

type Type string

const (
	PostCreated Type = "post.created"
	PostUpdated Type = "post.updated"
	PostDeleted Type = "post.deleted"
)

// Event is published after a write has been committed to the store. Post is
// omitted for deletions.
type Event struct {
	Type   Type        `json:"type"`
	PostID string      `json:"postId"`
	Actor  string      `json:"actor"`
	At     time.Time   `json:"at"`
	Post   *model.Post `json:"post,omitempty"`
}

func NewEvent(eventType Type, post model.Post, actor string) Event {
	evt := Event{
		Type:   eventType,
		PostID: post.ID,
		Actor:  actor,
		At:     time.Now().UTC(),
	}
	if eventType != PostDeleted {
		p := post
		evt.Post = &p
	}
	return evt
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// redisClient is the subset of *redis.Client the publisher needs.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisPublisher struct {
	client  redisClient
	channel string
	metrics *metrics.Metrics
}

func NewRedisPublisher(client redisClient, channel string, m *metrics.Metrics) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, metrics: m}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	err := p.publish(ctx, evt)
	p.metrics.ObserveEvent(string(evt.Type), err)
	return err
}

func (p *RedisPublisher) publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", evt.Type, err)
	}
	return nil
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
