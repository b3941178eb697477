package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ChannelPrefix namespaces the Redis pub/sub channels used for change signals
const ChannelPrefix = "pharmacy:changes:"

// InventoryTopic is the change topic for one pharmacy's inventory collection
func InventoryTopic(pharmacyID string) string {
	return "inventory:" + pharmacyID
}

// Notifier fans out "something changed" signals per topic. Signals carry no
// payload and coalesce: a listener that has not drained its channel sees at
// most one pending signal.
type Notifier interface {
	Notify(ctx context.Context, topic string) error
	// Listen returns a channel that receives a signal after each change to
	// topic. The channel is closed once ctx is done.
	Listen(ctx context.Context, topic string) (<-chan struct{}, error)
}

// signal does a non-blocking send, dropping the signal if one is already pending
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// LocalNotifier delivers signals to listeners in the same process
type LocalNotifier struct {
	mu        sync.Mutex
	listeners map[string]map[chan struct{}]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[string]map[chan struct{}]struct{})}
}

func (n *LocalNotifier) Notify(_ context.Context, topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.listeners[topic] {
		signal(ch)
	}
	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context, topic string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.listeners[topic] == nil {
		n.listeners[topic] = make(map[chan struct{}]struct{})
	}
	n.listeners[topic][ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.listeners[topic], ch)
		if len(n.listeners[topic]) == 0 {
			delete(n.listeners, topic)
		}
		close(ch)
		n.mu.Unlock()
	}()

	return ch, nil
}

// RedisNotifier publishes signals over Redis pub/sub so every replica's
// listeners see writes made by any replica
type RedisNotifier struct {
	client *redis.Client
	logger *logrus.Entry
}

func NewRedisNotifier(client *redis.Client, logger *logrus.Logger) *RedisNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisNotifier{client: client, logger: logger.WithField("component", "redis_notifier")}
}

func (n *RedisNotifier) Notify(ctx context.Context, topic string) error {
	if err := n.client.Publish(ctx, ChannelPrefix+topic, "changed").Err(); err != nil {
		return fmt.Errorf("failed to publish change for %s: %w", topic, err)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context, topic string) (<-chan struct{}, error) {
	pubsub := n.client.Subscribe(ctx, ChannelPrefix+topic)
	// wait for the subscription to be confirmed so no change is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	out := make(chan struct{}, 1)
	msgs := pubsub.Channel()
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					n.logger.WithField("topic", topic).Warn("Change subscription closed")
					return
				}
				signal(out)
			}
		}
	}()

	return out, nil
}
