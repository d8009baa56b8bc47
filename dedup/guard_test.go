package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-oplog/pkg/reqctx"
	"github.com/goliatone/go-oplog/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestKey(t *testing.T) {
	require.Equal(t, "api::article.article|hello|publish",
		Key("api::article.article", "hello", types.ClassPublish))
}

func TestSuppress_RequestScope(t *testing.T) {
	guard := New(Config{})
	ctx := reqctx.WithRequest(context.Background(), reqctx.New("POST", "/api/articles", nil))

	require.False(t, guard.Suppress(ctx, "k1"))
	require.True(t, guard.Suppress(ctx, "k1"))
	require.False(t, guard.Suppress(ctx, "k2"))
}

func TestSuppress_CrossRequestTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	guard := New(Config{TTL: 5 * time.Second, Clock: clock})

	firstReq := reqctx.WithRequest(context.Background(), reqctx.New("POST", "/a", nil))
	secondReq := reqctx.WithRequest(context.Background(), reqctx.New("POST", "/b", nil))

	require.False(t, guard.Suppress(firstReq, "k1"))

	clock.Advance(2 * time.Second)
	require.True(t, guard.Suppress(secondReq, "k1"))

	clock.Advance(4 * time.Second)
	thirdReq := reqctx.WithRequest(context.Background(), reqctx.New("POST", "/c", nil))
	require.False(t, guard.Suppress(thirdReq, "k1"))
}

func TestSuppress_NoRequestContextStillDedupes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	guard := New(Config{TTL: 5 * time.Second, Clock: clock})

	require.False(t, guard.Suppress(context.Background(), "k1"))
	require.True(t, guard.Suppress(context.Background(), "k1"))
}

func TestSuppress_EmptyKeyNeverSuppressed(t *testing.T) {
	guard := New(Config{})
	require.False(t, guard.Suppress(context.Background(), ""))
	require.False(t, guard.Suppress(context.Background(), ""))
}

func TestEvictStale(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	guard := New(Config{TTL: time.Second, MaxEntries: 10, Clock: clock})

	for i := 0; i < 20; i++ {
		guard.Suppress(context.Background(), Key("m", string(rune('a'+i)), types.ClassCreate))
	}
	require.Greater(t, guard.seen.Size(), 10)

	clock.Advance(5 * time.Second)
	guard.Suppress(context.Background(), "fresh")

	require.LessOrEqual(t, guard.seen.Size(), 10)
}
