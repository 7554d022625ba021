// Package notify publishes frontend refresh events after committed writes so
// connected clients re-fetch the entities that changed.
package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the pub/sub channel frontend gateways subscribe to.
const Channel = "broker.events"

// Actions understood by the frontend.
const (
	ActionRefreshRobots = "broker/REFRESH_TNSROBOTS"
	ActionRefreshSource = "broker/REFRESH_SOURCE"
)

// Event is one refresh message. Payload names the entity that changed.
type Event struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Notifier publishes events. Publishing happens after commit and is best
// effort; implementations log failures instead of returning them.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

// RedisNotifier publishes events on a redis pub/sub channel.
type RedisNotifier struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisNotifier returns a notifier over the given redis client.
func NewRedisNotifier(client *redis.Client, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, logger: logger}
}

func (n *RedisNotifier) Publish(ctx context.Context, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("encode notification", zap.Error(err))
		return
	}
	if err := n.client.Publish(ctx, Channel, msg).Err(); err != nil {
		n.logger.Warn("publish notification",
			zap.String("action", ev.Action), zap.Error(err))
	}
}

// Nop discards all events. Used by the migrator and in tests.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// RefreshRobots builds the event telling clients to reload the robot list of a
// group.
func RefreshRobots(groupID int64) Event {
	return Event{Action: ActionRefreshRobots, Payload: map[string]any{"group_id": groupID}}
}

// RefreshSource builds the event telling clients to reload one source by its
// internal key.
func RefreshSource(objKey string) Event {
	return Event{Action: ActionRefreshSource, Payload: map[string]any{"obj_key": objKey}}
}
