package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryRateLimiter_Window(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	rl := newMemoryRateLimiter(func() time.Time { return now })
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d := rl.Allow(ctx, "k", 3, time.Minute)
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, i, d.Count)
	}
	assert.False(t, rl.Allow(ctx, "k", 3, time.Minute).Allowed)
	assert.True(t, rl.Allow(ctx, "other", 3, time.Minute).Allowed)

	now = now.Add(time.Minute + time.Second)
	assert.True(t, rl.Allow(ctx, "k", 3, time.Minute).Allowed)
}

func TestMemoryRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	rl := newMemoryRateLimiter(func() time.Time { return now })
	rl.Allow(context.Background(), "k", 1, time.Minute)

	rl.cleanup(now.Add(2 * time.Minute))
	assert.Empty(t, rl.entries)
}

func TestMemoryRateLimiter_NoLimit(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow(context.Background(), "k", 0, time.Minute).Allowed)
	}
	rl.Close()
}

func TestRateLimit_Middleware(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()
	m := NewMetrics()
	h := RateLimit(rl, "/api/auth/login", 2, time.Minute, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := do("10.0.0.1:5000")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do("10.0.0.1:5001").Code)

	limited := do("10.0.0.1:5002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.JSONEq(t, `{"error":"Too many requests"}`, limited.Body.String())
	assert.Equal(t, "0", limited.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do("10.0.0.2:5000").Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitHits.WithLabelValues("/api/auth/login")))
}

func TestRateLimit_Disabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, RateLimit(nil, "/x", 5, time.Minute, nil)(next))

	rl := NewMemoryRateLimiter()
	defer rl.Close()
	h := RateLimit(rl, "/x", 0, time.Minute, nil)(next)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitKeyIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	assert.Equal(t, "ip:192.0.2.7", rateLimitKeyIP(req))

	req.RemoteAddr = ""
	assert.Equal(t, "ip:unknown", rateLimitKeyIP(req))
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	rl := NewRedisRateLimiter(client, zap.NewNop())
	defer rl.Close()

	d := rl.Allow(context.Background(), "k", 1, time.Minute)
	assert.True(t, d.Allowed)
	assert.True(t, rl.Allow(context.Background(), "k", 0, time.Minute).Allowed)
}

// fakeRedisCounter answers INCR, PTTL and PEXPIRE in process through a client
// hook, so no server is contacted.
type fakeRedisCounter struct {
	mu         sync.Mutex
	counts     map[string]int64
	ttls       map[string]time.Duration
	failExpire int
	expires    int
}

func newFakeRedisCounter() *fakeRedisCounter {
	return &fakeRedisCounter{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedisCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (f *fakeRedisCounter) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		f.apply(cmd)
		return cmd.Err()
	}
}

func (f *fakeRedisCounter) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			f.apply(cmd)
		}
		return nil
	}
}

func (f *fakeRedisCounter) apply(cmd redis.Cmder) {
	f.mu.Lock()
	defer f.mu.Unlock()

	args := cmd.Args()
	if len(args) < 2 {
		return
	}
	key, _ := args[1].(string)
	switch c := cmd.(type) {
	case *redis.IntCmd:
		f.counts[key]++
		c.SetVal(f.counts[key])
	case *redis.DurationCmd:
		ttl, ok := f.ttls[key]
		if !ok {
			ttl = -1
		}
		c.SetVal(ttl)
	case *redis.BoolCmd:
		f.expires++
		if f.failExpire > 0 {
			f.failExpire--
			c.SetErr(errors.New("connection reset"))
			return
		}
		f.ttls[key] = time.Minute
		c.SetVal(true)
	}
}

func TestRedisRateLimiter_ExpiryRecoversAfterFailure(t *testing.T) {
	fake := newFakeRedisCounter()
	fake.failExpire = 1
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(fake)
	defer client.Close()

	rl := NewRedisRateLimiter(client, zap.NewNop())
	ctx := context.Background()
	const key = "mindease:ratelimit:ip:192.0.2.7"

	d := rl.Allow(ctx, "ip:192.0.2.7", 5, time.Minute)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
	assert.NotContains(t, fake.ttls, key)

	d = rl.Allow(ctx, "ip:192.0.2.7", 5, time.Minute)
	assert.Equal(t, 2, d.Count)
	assert.Contains(t, fake.ttls, key)
	assert.Equal(t, 2, fake.expires)

	d = rl.Allow(ctx, "ip:192.0.2.7", 5, time.Minute)
	assert.Equal(t, 3, d.Count)
	assert.Equal(t, 2, fake.expires)
	assert.WithinDuration(t, time.Now().Add(time.Minute), d.WindowEnd, 5*time.Second)
}

func TestRedisRateLimiter_Limit(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(newFakeRedisCounter())
	defer client.Close()

	rl := NewRedisRateLimiter(client, zap.NewNop())
	for i := 0; i < 2; i++ {
		assert.True(t, rl.Allow(context.Background(), "k", 2, time.Minute).Allowed)
	}
	d := rl.Allow(context.Background(), "k", 2, time.Minute)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3, d.Count)
}
