package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableRedis points at a port nothing listens on.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func newLimitedApp(rl *RateLimiter, prefix string, limit int) *fiber.App {
	app := fiber.New()
	app.Post("/submit", rl.Limit(prefix, limit, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusAccepted)
	})
	return app
}

func submit(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/submit", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestLimitDisabledSkipsRedis(t *testing.T) {
	app := newLimitedApp(NewRateLimiter(unreachableRedis(t), zerolog.Nop()), "image", 0)

	for i := 0; i < 3; i++ {
		resp := submit(t, app)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
	}
}

func TestLimitFailsOpenWhenRedisDown(t *testing.T) {
	app := newLimitedApp(NewRateLimiter(unreachableRedis(t), zerolog.Nop()), "image", 1)

	for i := 0; i < 3; i++ {
		resp := submit(t, app)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
}

func TestLimitRejectsOverQuota(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: redis not available: %v", err)
	}

	prefix := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		keys, _ := rdb.Keys(context.Background(), "ratelimit:"+prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(context.Background(), keys...)
		}
	})

	app := newLimitedApp(NewRateLimiter(rdb, zerolog.Nop()), prefix, 2)

	first := submit(t, app)
	assert.Equal(t, http.StatusAccepted, first.StatusCode)
	assert.Equal(t, "2", first.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header.Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusAccepted, submit(t, app).StatusCode)

	third := submit(t, app)
	assert.Equal(t, http.StatusTooManyRequests, third.StatusCode)
	assert.NotEmpty(t, third.Header.Get("Retry-After"))
}
