package relay

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisFanout is the [EXPANSION] cross-instance Fanout implementation,
// grounded on internal/pubsub.RedisClient.PublishToDevice /
// SubscribeToMessages: one Redis pub/sub channel per recipient
// identity, so a relay instance that doesn't hold the live connection
// can still hand a freshly-routed envelope to the instance that does.
type RedisFanout struct {
	client *redis.Client
}

// NewRedisFanout wraps an existing go-redis client.
func NewRedisFanout(client *redis.Client) *RedisFanout {
	return &RedisFanout{client: client}
}

func channelFor(recipientID string) string {
	return "vauchi:relay:recipient:" + recipientID
}

// Publish broadcasts frame on recipientID's channel. Every relay
// instance subscribed via Subscribe receives it; only the instance
// holding a live connection for recipientID will actually forward it
// (Hub.DeliverFanout is a no-op elsewhere).
func (f *RedisFanout) Publish(ctx context.Context, recipientID string, frame []byte) error {
	if err := f.client.Publish(ctx, channelFor(recipientID), frame).Err(); err != nil {
		return fmt.Errorf("relay: publish fanout frame: %w", err)
	}
	return nil
}

// Subscribe listens on a wildcard pattern covering every recipient
// channel and forwards each message to hub.DeliverFanout. It blocks
// until ctx is cancelled.
func (f *RedisFanout) Subscribe(ctx context.Context, hub *Hub) {
	pubsub := f.client.PSubscribe(ctx, "vauchi:relay:recipient:*")
	defer func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("relay: warning: pubsub close: %v", err)
		}
	}()

	const prefix = "vauchi:relay:recipient:"
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			recipientID := msg.Channel[len(prefix):]
			hub.DeliverFanout(ctx, recipientID, []byte(msg.Payload))
		}
	}
}
