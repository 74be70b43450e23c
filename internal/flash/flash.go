// Package flash stores single-shot messages for a user in Redis.  A
// message is shown once: Pop returns every pending message and clears
// the list in the same transaction.
package flash

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Levels used by the HTTP handlers.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelError   = "error"
	LevelWarning = "warning"
)

// Message is one pending notification.
type Message struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Store keeps messages under "<prefix>:<userID>".  A Store with a nil
// client drops pushes and pops nothing, so the application keeps working
// without Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore returns a Store.  Messages left unread expire after ttl.
func NewStore(rdb *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "flash"
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) key(userID uint64) string {
	return fmt.Sprintf("%s:%d", s.prefix, userID)
}

// Push appends a message for userID and refreshes the list's expiry.
func (s *Store) Push(ctx context.Context, userID uint64, level, text string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	b, err := json.Marshal(Message{Level: level, Text: text})
	if err != nil {
		return err
	}
	key := s.key(userID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, b)
		if s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

// Pop returns the pending messages for userID, oldest first, and removes
// them.  Entries that fail to decode are skipped.
func (s *Store) Pop(ctx context.Context, userID uint64) ([]Message, error) {
	out := []Message{}
	if s == nil || s.rdb == nil {
		return out, nil
	}
	key := s.key(userID)
	var lr *redis.StringSliceCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		lr = p.LRange(ctx, key, 0, -1)
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, raw := range lr.Val() {
		var m Message
		if json.Unmarshal([]byte(raw), &m) == nil {
			out = append(out, m)
		}
	}
	return out, nil
}
