package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "club:"
	publishTimeout = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-process delivery.
// Topic repeats the hub topic so a message landing on the wrong channel is dropped.
type redisPayload struct {
	Topic string          `json:"topic"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

func topicChannel(topic string) string {
	return channelPrefix + topic
}

// decodeTopicMessage parses a channel message for topic.
func decodeTopicMessage(topic, raw string) (redisPayload, error) {
	var p redisPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, err
	}
	if p.Topic != topic {
		return p, fmt.Errorf("message for topic %q on channel of %q", p.Topic, topic)
	}
	if p.Event == "" {
		return p, errors.New("message without event")
	}
	return p, nil
}

// RedisPubSub implements RedisPublisher and RedisSubscriber using Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for topic events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishTopicEvent publishes an event to the topic's Redis channel.
func (r *RedisPubSub) PublishTopicEvent(topic string, event string, payload []byte) error {
	body, err := json.Marshal(redisPayload{Topic: topic, Event: event, Data: payload, At: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	receivers, err := r.client.Publish(ctx, topicChannel(topic), body).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	r.logger.Debug("topic event published", zap.String("topic", topic), zap.String("event", event), zap.Int64("receivers", receivers))
	return nil
}

// SubscribeTopic subscribes to the topic's Redis channel and calls handler for each
// message addressed to topic. The returned cancel stops the subscription.
func (r *RedisPubSub) SubscribeTopic(topic string, handler func(event string, payload []byte)) (cancel func(), err error) {
	channel := topicChannel(topic)
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	recvCtx, cancelRecv := context.WithTimeout(ctx, publishTimeout)
	_, err = pubsub.Receive(recvCtx)
	cancelRecv()
	if err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				p, err := decodeTopicMessage(topic, msg.Payload)
				if err != nil {
					r.logger.Warn("dropping pubsub message", zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return cancelCtx, nil
}
