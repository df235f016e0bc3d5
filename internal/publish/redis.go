// Package publish mirrors committed analysis results to Redis pub/sub so
// other processes can follow a run without holding its stream.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ratemysite/backend/internal/session"
)

const DefaultChannel = "ratemysite:results"

// Message is the JSON body published for every committed result.
type Message struct {
	SessionID string            `json:"session_id"`
	Index     int               `json:"index"`
	URL       string            `json:"url"`
	Data      map[string]string `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
	Time      time.Time         `json:"time"`
}

type RedisPublisher struct {
	client  *redis.Client
	channel string
	now     func() time.Time
}

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(ctx context.Context, redisURL, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return newRedisPublisher(client, channel), nil
}

func newRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel, now: time.Now}
}

func (p *RedisPublisher) Publish(ctx context.Context, sessionID string, index int, r session.Result) error {
	body, err := p.encode(sessionID, index, r)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) encode(sessionID string, index int, r session.Result) ([]byte, error) {
	body, err := json.Marshal(Message{
		SessionID: sessionID,
		Index:     index,
		URL:       r.URL,
		Data:      r.Data,
		Error:     r.Error,
		Time:      p.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return body, nil
}

func (p *RedisPublisher) Channel() string { return p.channel }

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
