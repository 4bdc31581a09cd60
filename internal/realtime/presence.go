package realtime

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceTTL = 120 * time.Second

// Presence tracks which users have a room open.
type Presence struct {
	client *redis.Client
}

func NewPresence(client *redis.Client) *Presence {
	return &Presence{client: client}
}

func roomPresenceKey(roomID string) string {
	return "presence:room:" + roomID
}

func (p *Presence) Join(ctx context.Context, roomID, userID string) error {
	pipe := p.client.Pipeline()
	pipe.SAdd(ctx, roomPresenceKey(roomID), userID)
	pipe.Expire(ctx, roomPresenceKey(roomID), presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Presence) Leave(ctx context.Context, roomID, userID string) error {
	return p.client.SRem(ctx, roomPresenceKey(roomID), userID).Err()
}

// Refresh keeps an idle room's presence set alive.
func (p *Presence) Refresh(ctx context.Context, roomID string) error {
	return p.client.Expire(ctx, roomPresenceKey(roomID), presenceTTL).Err()
}

func (p *Presence) Online(ctx context.Context, roomID string) (int64, error) {
	return p.client.SCard(ctx, roomPresenceKey(roomID)).Result()
}
