// Package realtime fans out change notifications to live observers. Each
// topic is a channel per collection key (a user's cart, a user's unread
// counter); subscribers get an explicit handle to close when they leave.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Broker publishes payloads on topics and hands out subscriptions.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

const subscriptionBuffer = 16

// Subscription delivers payloads for one topic until Close is called.
// Observers only care about the newest state, so a slow reader loses the
// oldest queued payload rather than blocking publishers.
type Subscription struct {
	topic     string
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
	stop      func()
}

func newSubscription(topic string) *Subscription {
	return &Subscription{
		topic: topic,
		ch:    make(chan []byte, subscriptionBuffer),
		done:  make(chan struct{}),
	}
}

func (s *Subscription) Topic() string { return s.topic }

// C is closed after Close returns.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Done is closed as soon as Close starts.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.stop()
		}
		close(s.ch)
	})
	return nil
}

func (s *Subscription) deliver(payload []byte) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.ch <- payload:
		return
	default:
	}

	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- payload:
	default:
	}
}

func CartTopic(uid uuid.UUID) string {
	return "cart:" + uid.String()
}

func UnreadTopic(uid uuid.UUID) string {
	return "unread:" + uid.String()
}

func PublishJSON(ctx context.Context, b Broker, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, topic, payload)
}
