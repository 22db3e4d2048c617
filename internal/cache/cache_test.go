package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/orthogate/internal/cache"
	"github.com/kiranshivaraju/orthogate/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startRedis runs a throwaway Redis and returns its URL plus a raw client
// for inspecting what the cache wrote.
func startRedis(t *testing.T) (string, *redis.Client) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "redis")
	require.NoError(t, err)

	opts, err := redis.ParseURL(endpoint)
	require.NoError(t, err)
	raw := redis.NewClient(opts)
	t.Cleanup(func() { raw.Close() })

	return endpoint, raw
}

func newCache(t *testing.T, url string, analysisTTL time.Duration) *cache.RedisCache {
	t.Helper()
	rc, err := cache.NewRedisCache(config.RedisConfig{URL: url, AnalysisTTL: analysisTTL})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	require.NoError(t, rc.Ping(context.Background()))
	return rc
}

func TestNewRedisCache_RejectsBadURL(t *testing.T) {
	_, err := cache.NewRedisCache(config.RedisConfig{URL: "memcached://localhost"})
	assert.Error(t, err)
}

// --- analyses ---

func TestAnalysis_RoundTripUnderAnalysisKey(t *testing.T) {
	url, raw := startRedis(t)
	rc := newCache(t, url, time.Minute)
	ctx := context.Background()
	id := uuid.NewString()
	doc := []byte(`{"key":"` + id + `","body":{"success":true,"model_used":"ortho-v3"}}`)

	require.NoError(t, rc.PutAnalysis(ctx, id, doc))

	got, found, err := rc.GetAnalysis(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, string(doc), string(got))

	stored, err := raw.Get(ctx, "analysis:"+id).Bytes()
	require.NoError(t, err)
	assert.Equal(t, doc, stored)
}

func TestAnalysis_UsesConfiguredTTL(t *testing.T) {
	url, raw := startRedis(t)
	ctx := context.Background()

	configured := newCache(t, url, 90*time.Second)
	require.NoError(t, configured.PutAnalysis(ctx, "a-configured", []byte(`{}`)))
	ttl, err := raw.TTL(ctx, cache.AnalysisKey("a-configured")).Result()
	require.NoError(t, err)
	assert.InDelta(t, 90, ttl.Seconds(), 2)

	defaulted := newCache(t, url, 0)
	require.NoError(t, defaulted.PutAnalysis(ctx, "a-default", []byte(`{}`)))
	ttl, err = raw.TTL(ctx, cache.AnalysisKey("a-default")).Result()
	require.NoError(t, err)
	assert.InDelta(t, cache.DefaultAnalysisTTL.Seconds(), ttl.Seconds(), 2)
}

func TestAnalysis_ExpiresAfterTTL(t *testing.T) {
	url, _ := startRedis(t)
	rc := newCache(t, url, time.Second)
	ctx := context.Background()

	require.NoError(t, rc.PutAnalysis(ctx, "short-lived", []byte(`{}`)))
	time.Sleep(1500 * time.Millisecond)

	_, found, err := rc.GetAnalysis(ctx, "short-lived")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAnalysis_MissIsNotAnError(t *testing.T) {
	url, _ := startRedis(t)
	rc := newCache(t, url, time.Minute)

	val, found, err := rc.GetAnalysis(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

// --- rate-limit windows ---

func TestHit_CountsWithinWindow(t *testing.T) {
	url, _ := startRedis(t)
	rc := newCache(t, url, time.Minute)
	ctx := context.Background()
	prefix := "og_" + uuid.NewString()[:5]

	for want := int64(1); want <= 3; want++ {
		count, resetIn, err := rc.Hit(ctx, prefix, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, count)
		assert.True(t, resetIn > 0 && resetIn <= 10*time.Second, "resetIn %v", resetIn)
	}
}

func TestHit_WindowIsNotExtended(t *testing.T) {
	url, _ := startRedis(t)
	rc := newCache(t, url, time.Minute)
	ctx := context.Background()
	prefix := "og_" + uuid.NewString()[:5]

	_, _, err := rc.Hit(ctx, prefix, time.Second)
	require.NoError(t, err)
	// A later hit with a longer window must not push the open one out.
	_, resetIn, err := rc.Hit(ctx, prefix, 30*time.Second)
	require.NoError(t, err)
	assert.LessOrEqual(t, resetIn, time.Second)

	time.Sleep(1500 * time.Millisecond)

	count, _, err := rc.Hit(ctx, prefix, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestHit_ConcurrentRequestsGetDistinctCounts(t *testing.T) {
	url, _ := startRedis(t)
	rc := newCache(t, url, time.Minute)
	prefix := "og_" + uuid.NewString()[:5]
	const n = 20

	var wg sync.WaitGroup
	counts := make(chan int64, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count, _, err := rc.Hit(context.Background(), prefix, time.Minute)
			assert.NoError(t, err)
			counts <- count
		}()
	}
	wg.Wait()
	close(counts)

	seen := make(map[int64]bool, n)
	for c := range counts {
		seen[c] = true
	}
	assert.Len(t, seen, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing count %d", i)
	}
}

// --- keys ---

func TestKeys_NamespacedAndDistinct(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, "ratelimit:og_abcd1", cache.RateLimitKey("og_abcd1"))
	assert.Equal(t, "analysis:"+id, cache.AnalysisKey(id))
	assert.NotEqual(t, cache.RateLimitKey(id), cache.AnalysisKey(id))
}
