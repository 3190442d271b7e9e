// Package events wraps redis pub/sub into explicit subscription objects:
// Subscribe returns a channel plus an Unsubscribe, and cancellation is
// always an explicit Unsubscribe call.
package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Channel is the single broadcast channel all services publish on.
const Channel = "broadcast"

// Event is the envelope every published change uses. Origin identifies the
// publisher so subscribers can drop their own echoes.
type Event struct {
	Type    string          `json:"type"`
	PartyID string          `json:"partyId,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Bus struct {
	rdb *redis.Client
}

func NewBus(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// Publish broadcasts one event.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel, string(data)).Err()
}

// Subscription delivers events on C until Unsubscribe is called. C closes
// after Unsubscribe.
type Subscription struct {
	C <-chan Event

	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func (s *Subscription) Unsubscribe() {
	s.cancel()
	_ = s.pubsub.Close()
}

// Subscribe delivers every event for one party, or every event when partyID
// is empty. Malformed payloads are logged and dropped.
func (b *Bus) Subscribe(ctx context.Context, partyID string) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	pubsub := b.rdb.Subscribe(ctx, Channel)
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("events: drop malformed event: %v", err)
					continue
				}
				if partyID != "" && event.PartyID != partyID {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{C: out, pubsub: pubsub, cancel: cancel}
}
