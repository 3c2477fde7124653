package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/cosmetics-store/internal/config"
	"github.com/sirupsen/logrus"
)

var ErrBrokerClosed = errors.New("broker closed")

// RedisBroker relays topics over Redis pub/sub so every API instance sees
// every change.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(ctx context.Context, cfg config.RedisConfig) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logrus.WithField("addr", cfg.Addr).Info("redis broker connected")
	return &RedisBroker{client: client}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topic)

	// Wait for the confirmation so nothing published after Subscribe returns
	// is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := newSubscription(topic)
	in := pubsub.Channel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case msg, ok := <-in:
				if !ok {
					return
				}
				sub.deliver([]byte(msg.Payload))
			case <-sub.done:
				return
			}
		}
	}()

	sub.stop = func() {
		if err := pubsub.Close(); err != nil {
			logrus.WithError(err).WithField("topic", topic).Warn("close redis subscription")
		}
		wg.Wait()
	}

	return sub, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Client exposes the connection so other Redis-backed components can share
// the pool.
func (b *RedisBroker) Client() *redis.Client {
	return b.client
}
