package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"adsb_pipeline/internal/store"
)

// fakeRedis implements RedisClient over a map.
type fakeRedis struct {
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestCacheRoundTrip(t *testing.T) {
	c := NewWithClient(newFakeRedis())
	ctx := context.Background()

	alt := int64(35000)
	want := store.Stats{MaxAltitudeBaro: &alt, HadEmergency: true}
	c.Set(ctx, "abc123", want)

	got, ok := c.Get(ctx, "abc123")
	if !ok {
		t.Fatal("Get returned miss after Set")
	}
	if got.MaxAltitudeBaro == nil || *got.MaxAltitudeBaro != 35000 || !got.HadEmergency {
		t.Errorf("got = %+v, want %+v", got, want)
	}
}

func TestCacheMiss(t *testing.T) {
	c := NewWithClient(newFakeRedis())

	if _, ok := c.Get(context.Background(), "unknown"); ok {
		t.Error("Get returned hit for unknown icao")
	}
}

func TestInvalidateOrphansEntries(t *testing.T) {
	c := NewWithClient(newFakeRedis())
	ctx := context.Background()

	c.Set(ctx, "abc123", store.Stats{HadEmergency: true})
	c.Invalidate(ctx)

	if _, ok := c.Get(ctx, "abc123"); ok {
		t.Error("entry survived Invalidate")
	}

	// Entries written after the bump are served under the new generation.
	c.Set(ctx, "abc123", store.Stats{})
	if _, ok := c.Get(ctx, "abc123"); !ok {
		t.Error("miss for entry written after Invalidate")
	}
}

func TestNilCacheIsNoOp(t *testing.T) {
	var c *StatsCache
	ctx := context.Background()

	c.Set(ctx, "abc123", store.Stats{})
	if _, ok := c.Get(ctx, "abc123"); ok {
		t.Error("nil cache returned a hit")
	}
	c.Invalidate(ctx)
	if err := c.Close(); err != nil {
		t.Errorf("Close on nil cache: %v", err)
	}
}
