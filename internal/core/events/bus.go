package events

import (
	"sync"

	"go.uber.org/zap"
)

// Bus is the in-process publish/subscribe registry. Publish fans out
// synchronously to subscribers in subscription order, and a panicking
// handler is logged without affecting later handlers or the publisher.
//
// Subscribers live in an ordered slice and removal compacts it, so an
// Unsubscribe never reorders the remaining subscribers. Subscribe and
// Unsubscribe may be called at any time, including from other goroutines;
// a publish already in flight delivers to the subscriber set it started
// with.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	logger *zap.Logger
}

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	topic   string // empty means every topic
	handler func(Event)
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.With(zap.String("component", "eventbus")),
	}
}

// Publish delivers the event to every current subscriber of its topic,
// exactly once each, in subscription order.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.topic != "" && sub.topic != event.Topic() {
			continue
		}
		b.deliver(sub, event)
	}
}

// Subscribe registers a handler for one topic. May be called at any time.
func (b *Bus) Subscribe(topic string, handler func(Event)) *Subscription {
	return b.add(&Subscription{topic: topic, handler: handler})
}

// SubscribeAll registers a handler for every topic.
func (b *Bus) SubscribeAll(handler func(Event)) *Subscription {
	return b.add(&Subscription{handler: handler})
}

func (b *Bus) add(sub *Subscription) *Subscription {
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

func (b *Bus) Unsubscribe(subscription *Subscription) {
	if subscription == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == subscription {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// deliver contains handler panics so one failing subscriber cannot break
// delivery to the rest.
func (b *Bus) deliver(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				zap.String("topic", event.Topic()),
				zap.Any("panic", r))
		}
	}()
	sub.handler(event)
}
