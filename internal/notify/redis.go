package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/redis/go-redis/v9"
)

const publishTimeout = 5 * time.Second

// Publisher is the subset of *redis.Client used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes notifications as JSON on a pub/sub channel. Ledger
// events go to the same channel with an ":events" suffix.
type RedisNotifier struct {
	client  Publisher
	channel string
}

func NewRedisNotifier(client Publisher, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (r *RedisNotifier) Send(ctx context.Context, n Notification) error {
	return r.publish(ctx, r.channel, n)
}

func (r *RedisNotifier) SendEvent(ctx context.Context, ev models.PostEvent) error {
	return r.publish(ctx, r.channel+":events", ev)
}

func (r *RedisNotifier) publish(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.client.Publish(pubCtx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	slog.Debug("published to redis", "channel", channel)
	return nil
}

// EventSink receives ledger events.
type EventSink interface {
	SendEvent(ctx context.Context, ev models.PostEvent) error
}

// Forward relays events to sink until events is closed or ctx is done.
// Delivery failures are logged and do not stop the relay.
func Forward(ctx context.Context, events <-chan models.PostEvent, sink EventSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sink.SendEvent(ctx, ev); err != nil {
				slog.Warn("failed to forward post event", "post_record_id", ev.PostRecordID, "event_type", ev.EventType, "error", err)
			}
		}
	}
}
