package cache_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/TanguyDH/matchIQ/internal/cache"
	"github.com/TanguyDH/matchIQ/internal/testutil"
)

var testRedis *redis.Client

func TestMain(m *testing.M) {
	flag.Parse()
	ctx := context.Background()

	if reason := testutil.ContainersDisabled(ctx); reason != "" {
		fmt.Fprintf(os.Stderr, "redis integration tests skipped: %s\n", reason)
		os.Exit(m.Run())
	}

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}

	container, err := testutil.StartContainer(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis container unavailable, integration tests skipped: %v\n", err)
		os.Exit(m.Run())
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "6379")
	testRedis = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})

	code := m.Run()
	_ = testRedis.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestRedis_SetAndExists(t *testing.T) {
	if testRedis == nil {
		t.Skip("redis not available")
	}
	ctx := context.Background()
	r := cache.NewRedisFromClient(testRedis)

	ok, err := r.Exists(ctx, "dedup:s1:m1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetTTL(ctx, "dedup:s1:m1", time.Minute))
	ok, err = r.Exists(ctx, "dedup:s1:m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := testRedis.TTL(ctx, "dedup:s1:m1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, r.Delete(ctx, "dedup:s1:m1"))
	ok, err = r.Exists(ctx, "dedup:s1:m1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, r.Ping(ctx))
}
