package realtime

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Feed decodes a subscription's JSON payloads into T. An optional initial
// value is delivered first so a new observer starts from the current state.
type Feed[T any] struct {
	sub  *Subscription
	out  chan T
	wg   sync.WaitGroup
	once sync.Once
}

func NewFeed[T any](sub *Subscription, initial *T) *Feed[T] {
	f := &Feed[T]{sub: sub, out: make(chan T, 1)}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer close(f.out)

		if initial != nil && !f.send(*initial) {
			return
		}
		for payload := range sub.C() {
			var v T
			if err := json.Unmarshal(payload, &v); err != nil {
				logrus.WithError(err).WithField("topic", sub.Topic()).Warn("drop undecodable payload")
				continue
			}
			if !f.send(v) {
				return
			}
		}
	}()

	return f
}

func (f *Feed[T]) send(v T) bool {
	select {
	case <-f.sub.Done():
		return false
	default:
	}
	select {
	case f.out <- v:
		return true
	case <-f.sub.Done():
		return false
	}
}

func (f *Feed[T]) Updates() <-chan T { return f.out }

// Close unsubscribes and waits for the decoder to exit. Updates is closed
// when Close returns.
func (f *Feed[T]) Close() error {
	var err error
	f.once.Do(func() {
		err = f.sub.Close()
		f.wg.Wait()
	})
	return err
}
