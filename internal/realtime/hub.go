package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paddle-club/backend/internal/models"
)

const (
	// TopicAttendance carries every attendance record change.
	TopicAttendance = "attendance"
	// EventRegistrationStatus is a models.StatusChange payload.
	EventRegistrationStatus = "registration_status"
	// EventAttendanceChanged is a models.AttendanceSummary payload.
	EventAttendanceChanged = "attendance_changed"
)

// RegistrationTopic is the topic carrying status changes of one registration.
func RegistrationTopic(id uuid.UUID) string {
	return "registration:" + id.String()
}

// Handler receives a topic message. It runs on the publishing goroutine and must not block.
type Handler func(event string, payload []byte)

// Hub maintains topic -> subscribers and delivers published changes to them.
// With Redis configured, publishes go through Redis pub/sub so every process
// (trigger worker and API servers alike) sees them exactly once.
type Hub struct {
	// topic -> map[subscriptionID]Handler
	topics   map[string]map[string]Handler
	subs     map[string]func() // cancel Redis subscription per topic
	mu       sync.RWMutex
	redisMu  sync.Mutex // serializes Redis subscribe and cancel
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-process delivery).
type RedisPublisher interface {
	PublishTopicEvent(topic string, event string, payload []byte) error
}

// RedisSubscriber subscribes to topic channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeTopic(topic string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a hub. redisPub and redisSub may be nil for a single-process hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics:   make(map[string]map[string]Handler),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Subscription is a registered handler. Cancel detaches it.
type Subscription struct {
	hub   *Hub
	topic string
	id    string
	once  sync.Once
}

// Cancel detaches the handler. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.hub.unsubscribe(s.topic, s.id) })
}

// Subscribe attaches fn to topic. The first subscriber of a topic starts its Redis
// subscription; if that fails fn is not attached and the next Subscribe retries.
func (h *Hub) Subscribe(topic string, fn Handler) (*Subscription, error) {
	h.redisMu.Lock()
	defer h.redisMu.Unlock()

	if err := h.ensureRedis(topic); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[string]Handler)
	}
	h.topics[topic][id] = fn
	h.mu.Unlock()
	h.logger.Debug("subscribed", zap.String("topic", topic), zap.String("subscription_id", id))
	return &Subscription{hub: h, topic: topic, id: id}, nil
}

// ensureRedis starts the Redis subscription of topic unless it is running.
// Callers hold redisMu; mu is not held across the network round trip.
func (h *Hub) ensureRedis(topic string) error {
	if h.redisSub == nil {
		return nil
	}
	h.mu.RLock()
	_, running := h.subs[topic]
	h.mu.RUnlock()
	if running {
		return nil
	}
	cancel, err := h.redisSub.SubscribeTopic(topic, func(event string, payload []byte) {
		h.Broadcast(topic, event, json.RawMessage(payload))
	})
	if err != nil {
		h.logger.Warn("redis subscribe failed", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	h.mu.Lock()
	h.subs[topic] = cancel
	h.mu.Unlock()
	return nil
}

// unsubscribe removes a handler. Cancels the Redis subscription when the last one leaves.
func (h *Hub) unsubscribe(topic, id string) {
	h.redisMu.Lock()
	defer h.redisMu.Unlock()

	var cancel func()
	h.mu.Lock()
	if m, ok := h.topics[topic]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(h.topics, topic)
			cancel = h.subs[topic]
			delete(h.subs, topic)
		}
	}
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.logger.Debug("unsubscribed", zap.String("topic", topic), zap.String("subscription_id", id))
}

// Broadcast delivers a message to the local subscribers of topic only.
func (h *Hub) Broadcast(topic, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("marshal broadcast payload", zap.Error(err))
			return
		}
	}

	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.topics[topic]))
	for _, fn := range h.topics[topic] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(event, data)
	}
}

// Publish delivers a message to subscribers of topic in every process. Through Redis
// when configured, so the Redis subscriber callback performs the local broadcast once.
func (h *Hub) Publish(topic, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal publish payload", zap.Error(err))
		return
	}
	if h.redis != nil {
		if err := h.redis.PublishTopicEvent(topic, event, data); err != nil {
			h.logger.Warn("redis publish failed", zap.String("topic", topic), zap.Error(err))
		}
		return
	}
	h.Broadcast(topic, event, json.RawMessage(data))
}

// RegistrationChanged publishes a registration status change.
func (h *Hub) RegistrationChanged(change models.StatusChange) {
	h.Publish(RegistrationTopic(change.RegistrationID), EventRegistrationStatus, change)
}

// AttendanceChanged publishes an attendance record change.
func (h *Hub) AttendanceChanged(summary models.AttendanceSummary) {
	h.Publish(TopicAttendance, EventAttendanceChanged, summary)
}

// SubscriberCount returns the number of local subscribers of topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
