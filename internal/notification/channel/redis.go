package channel

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/eventreg/internal/notification/domain"
)

const (
	// SettledChannel carries every settled event.
	SettledChannel = "eventreg:orders:settled"
	// organizerChannel carries one organizer's settled events.
	organizerChannel = "eventreg:orders:settled:%s"
)

// RedisPublisher fans settled events out over Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (c *RedisPublisher) Name() string { return "redis" }

func (c *RedisPublisher) Deliver(ctx context.Context, evt domain.SettledEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	for _, name := range []string{SettledChannel, fmt.Sprintf(organizerChannel, evt.OrganizerID)} {
		if err := c.client.Publish(ctx, name, payload).Err(); err != nil {
			return fmt.Errorf("publish settled event: %w", err)
		}
	}
	return nil
}
