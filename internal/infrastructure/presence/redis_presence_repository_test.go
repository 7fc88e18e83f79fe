package presence

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freelancehub/internal/domain/entity"
	"freelancehub/pkg/errors"
)

// newTestRepository needs a reachable server at REDIS_ADDR.
func newTestRepository(t *testing.T) *RedisPresenceRepository {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisPresenceRepository(client, time.Minute)
}

func TestRedisPresenceRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()
	t.Cleanup(func() { repo.client.Del(context.Background(), key(userID)) })

	_, err := repo.Get(ctx, userID)
	assert.True(t, errors.IsNotFound(err))

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Upsert(ctx, &entity.Presence{UserID: userID, Status: entity.PresenceAway, LastActive: now, Device: &entity.DeviceInfo{Platform: "ios"}}))
	require.NoError(t, repo.SetTyping(ctx, userID, &entity.TypingIndicator{ConversationID: "c1", Timestamp: now}))

	// status writes leave typing alone
	require.NoError(t, repo.Upsert(ctx, &entity.Presence{UserID: userID, Status: entity.PresenceOnline, LastActive: now}))

	p, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, entity.PresenceOnline, p.Status)
	require.NotNil(t, p.Device)
	assert.Equal(t, "ios", p.Device.Platform)
	require.NotNil(t, p.TypingIn)
	assert.Equal(t, "c1", p.TypingIn.ConversationID)

	require.NoError(t, repo.SetTyping(ctx, userID, nil))
	p, err = repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, p.TypingIn)

	ttl, err := repo.client.TTL(ctx, key(userID)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}

func TestRedisPresenceSubscribe(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()
	t.Cleanup(func() { repo.client.Del(context.Background(), key(userID)) })

	var mu sync.Mutex
	var seen []*entity.Presence
	unsubscribe := repo.Subscribe(ctx, userID, func(p *entity.Presence) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	}, func(err error) { t.Errorf("unexpected error: %v", err) })
	defer unsubscribe()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}
	require.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Nil(t, seen[0])
	mu.Unlock()

	require.NoError(t, repo.Upsert(ctx, &entity.Presence{UserID: userID, Status: entity.PresenceOnline, LastActive: time.Now()}))
	require.Eventually(t, func() bool { return count() == 2 }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, entity.PresenceOnline, seen[1].Status)
	mu.Unlock()
}
