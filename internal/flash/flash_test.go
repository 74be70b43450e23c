package flash

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "flash", ttl), mr
}

func TestPushPop(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, 7, LevelError, "not enough seats available"))
	require.NoError(t, s.Push(ctx, 7, LevelSuccess, "reservation updated"))
	assert.True(t, mr.Exists("flash:7"))

	msgs, err := s.Pop(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []Message{
		{Level: LevelError, Text: "not enough seats available"},
		{Level: LevelSuccess, Text: "reservation updated"},
	}, msgs)

	// shown once
	msgs, err = s.Pop(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.False(t, mr.Exists("flash:7"))
}

func TestMessagesArePerUser(t *testing.T) {
	s, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, 1, LevelInfo, "for one"))
	msgs, err := s.Pop(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = s.Pop(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMessagesExpire(t *testing.T) {
	s, mr := newTestStore(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, 3, LevelInfo, "soon gone"))
	assert.Equal(t, 30*time.Second, mr.TTL("flash:3"))

	mr.FastForward(31 * time.Second)
	msgs, err := s.Pop(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSkipsUndecodableEntries(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	_, err := mr.Push("flash:4", "garbage")
	require.NoError(t, err)
	require.NoError(t, s.Push(context.Background(), 4, LevelInfo, "ok"))

	msgs, err := s.Pop(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []Message{{Level: LevelInfo, Text: "ok"}}, msgs)
}

func TestNilClientIsNoop(t *testing.T) {
	s := NewStore(nil, "", time.Minute)
	require.NoError(t, s.Push(context.Background(), 1, LevelInfo, "dropped"))
	msgs, err := s.Pop(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
