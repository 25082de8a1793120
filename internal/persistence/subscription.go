package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/hark/pkg/blackboard"
)

// EventSubscription is an active Pub/Sub subscription to the raw-event ingress channel.
// Caller must call Close() when done.
type EventSubscription struct {
	events <-chan blackboard.RawEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of decoded raw events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *EventSubscription) Events() <-chan blackboard.RawEvent {
	return s.events
}

// Errors returns the channel of decode failures. Malformed messages are skipped
// and the subscription continues.
func (s *EventSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *EventSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEvents subscribes to raw events published for this instance.
// Delivery is at-most-once: a slow subscriber may miss events.
func (c *Client) SubscribeEvents(ctx context.Context) (*EventSubscription, error) {
	events, errs, cancel, err := subscribe(ctx, c.rdb, blackboard.EventsChannel(c.instanceName), blackboard.DecodeRawEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	return &EventSubscription{events: events, errors: errs, cancel: cancel}, nil
}

// MessageSubscription is an active Pub/Sub subscription to emitted messages.
// Caller must call Close() when done.
type MessageSubscription struct {
	messages <-chan blackboard.OutputMessage
	errors   <-chan error
	cancel   func()
	once     sync.Once
}

// Messages returns the channel of emitted messages.
func (s *MessageSubscription) Messages() <-chan blackboard.OutputMessage {
	return s.messages
}

// Errors returns the channel of decode failures.
func (s *MessageSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *MessageSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeMessages subscribes to messages emitted by this instance.
func (c *Client) SubscribeMessages(ctx context.Context) (*MessageSubscription, error) {
	msgs, errs, cancel, err := subscribe(ctx, c.rdb, blackboard.MessagesChannel(c.instanceName), decodeMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to messages: %w", err)
	}
	return &MessageSubscription{messages: msgs, errors: errs, cancel: cancel}, nil
}

func decodeMessage(data []byte) (blackboard.OutputMessage, error) {
	var msg blackboard.OutputMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return blackboard.OutputMessage{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return msg, nil
}

// subscribe confirms the subscription, then pumps decoded payloads until ctx
// is cancelled or cancel is called. Both channels are closed on exit.
func subscribe[T any](ctx context.Context, rdb *redis.Client, channel string, decode func([]byte) (T, error)) (<-chan T, <-chan error, func(), error) {
	pubsub := rdb.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so publishes after return are seen
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, nil, err
	}

	items := make(chan T, 10)
	errs := make(chan error, 10)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(items)
		defer close(errs)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				item, err := decode([]byte(msg.Payload))
				if err != nil {
					select {
					case errs <- err:
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case items <- item:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return items, errs, cancel, nil
}
