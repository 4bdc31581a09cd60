package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/decimalcoins/broom-chat/internal/metrics"
	"github.com/decimalcoins/broom-chat/internal/models"
)

const roomChannelPrefix = "chat:room:"

func roomChannel(roomID string) string {
	return roomChannelPrefix + roomID
}

// insertEvent is the payload broadcast for every stored message.
type insertEvent struct {
	Type string         `json:"type"`
	New  models.Message `json:"new"`
}

// Feed broadcasts message inserts per room over Redis pub/sub.
type Feed struct {
	client *redis.Client
}

func NewFeed(client *redis.Client) *Feed {
	return &Feed{client: client}
}

func (f *Feed) Publish(ctx context.Context, msg models.Message) error {
	data, err := json.Marshal(insertEvent{Type: "INSERT", New: msg})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, roomChannel(msg.RoomID), data).Err()
}

// Subscribe delivers every insert into roomID to onInsert, one at a time, until
// the subscription is closed. Delivery is at-least-once and unordered relative
// to the subscriber's own writes.
func (f *Feed) Subscribe(ctx context.Context, roomID string, onInsert func(models.Message)) (*Subscription, error) {
	ps := f.client.Subscribe(ctx, roomChannel(roomID))
	// Wait for the confirmation so no insert published after we return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", roomID, err)
	}

	s := &Subscription{
		roomID: roomID,
		pubsub: ps,
		done:   make(chan struct{}),
	}
	go s.deliver(ps.Channel(), onInsert)
	metrics.ActiveSubscriptions.Inc()
	return s, nil
}

type Subscription struct {
	roomID string
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *Subscription) RoomID() string {
	return s.roomID
}

func (s *Subscription) deliver(ch <-chan *redis.Message, onInsert func(models.Message)) {
	defer close(s.done)
	for msg := range ch {
		var ev insertEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			slog.Warn("dropping malformed insert event", "room_id", s.roomID, "error", err)
			continue
		}
		if ev.Type != "INSERT" || ev.New.RoomID != s.roomID {
			continue
		}
		onInsert(ev.New)
	}
}

// Unsubscribe stops delivery and waits for an in-progress callback to return.
// It must not be called from inside onInsert.
func (s *Subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.pubsub.Close()
		<-s.done
		metrics.ActiveSubscriptions.Dec()
	})
	return s.err
}
