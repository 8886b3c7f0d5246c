package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConversationEntry is one turn of the rolling short-term window kept in
// Redis. This is distinct from the durable ConversationRecord: the window
// only exists to give the model recent dialogue, and it expires on its own.
type ConversationEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ShortTermStore manages per-user conversation context in Redis lists.
type ShortTermStore struct {
	client  *redis.Client
	maxMsgs int
	ttl     time.Duration
}

// NewShortTermStore creates a new short-term memory store.
func NewShortTermStore(client *redis.Client, maxMsgs, ttlSec int) *ShortTermStore {
	return &ShortTermStore{
		client:  client,
		maxMsgs: maxMsgs,
		ttl:     time.Duration(ttlSec) * time.Second,
	}
}

func convKey(userID string) string {
	return "conv:" + userID
}

// GetRecentMessages returns the last `limit` turns for the user, oldest first.
func (s *ShortTermStore) GetRecentMessages(ctx context.Context, userID string, limit int) ([]ConversationEntry, error) {
	key := convKey(userID)

	// LRANGE key -limit -1 returns the last `limit` elements
	vals, err := s.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	entries := make([]ConversationEntry, 0, len(vals))
	for _, v := range vals {
		var entry ConversationEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// AppendTurn adds one turn to the user's window, trims it to the configured
// size and refreshes the key's TTL.
func (s *ShortTermStore) AppendTurn(ctx context.Context, userID string, entry ConversationEntry) error {
	key := convKey(userID)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, string(data))
	pipe.LTrim(ctx, key, int64(-s.maxMsgs), -1)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

// Clear deletes the short-term window for a user.
func (s *ShortTermStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, convKey(userID)).Err()
}
