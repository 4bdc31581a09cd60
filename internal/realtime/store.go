package realtime

import (
	"context"
	"log/slog"

	"github.com/decimalcoins/broom-chat/internal/metrics"
	"github.com/decimalcoins/broom-chat/internal/models"
)

type MessageStore interface {
	FetchHistory(ctx context.Context, roomID string) ([]models.Message, error)
	Append(ctx context.Context, p models.NewMessage) (*models.Message, error)
}

type Publisher interface {
	Publish(ctx context.Context, msg models.Message) error
}

// BroadcastingStore publishes every message it appends. The stored row is the
// source of truth, so a failed publish is logged and the append still succeeds.
type BroadcastingStore struct {
	MessageStore
	publisher Publisher
}

func NewBroadcastingStore(store MessageStore, publisher Publisher) *BroadcastingStore {
	return &BroadcastingStore{MessageStore: store, publisher: publisher}
}

func (s *BroadcastingStore) Append(ctx context.Context, p models.NewMessage) (*models.Message, error) {
	m, err := s.MessageStore.Append(ctx, p)
	if err != nil {
		return nil, err
	}
	metrics.MessagesAppended.WithLabelValues(m.Kind.String()).Inc()

	if err := s.publisher.Publish(context.WithoutCancel(ctx), *m); err != nil {
		metrics.PublishFailures.Inc()
		slog.Error("failed to publish message insert", "error", err, "room_id", m.RoomID, "message_id", m.ID)
	}
	return m, nil
}
