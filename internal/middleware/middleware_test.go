package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cleancity/internal/cache"
	"github.com/iliyamo/cleancity/internal/config"
	"github.com/iliyamo/cleancity/internal/logger"
	"github.com/iliyamo/cleancity/internal/utils"
)

const secret = "test-secret"

func bearer(t *testing.T, id uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, role, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/admin", JWTAuth(secret), RequireRole("admin"))
	g.GET("/whoami", func(c echo.Context) error {
		id, ok := UserID(c)
		require.True(t, ok)
		return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
	})

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin/whoami", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin/whoami", "Bearer junk").Code)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin/whoami", bearer(t, 3, "user")).Code)

	rec := serve(e, http.MethodGet, "/admin/whoami", bearer(t, 7, "admin"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"role":"admin"}`, rec.Body.String())
}

func TestLocalRateLimiter(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 5 * time.Hour, KeyStrategy: "ip", Prefix: "rl",
	}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		NewRateLimiter(cfg, nil, logger.Discard()))

	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/x", "").Code)
	rec := serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLocalBucketsSweepIdle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := config.RateLimitConfig{Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute}
	l := newLocalBuckets(cfg, func() time.Time { return now })

	_, _ = l.take(context.Background(), "a")
	now = now.Add(2 * time.Minute)
	_, _ = l.take(context.Background(), "b")
	assert.Len(t, l.buckets, 1)
}

type fakeResponses struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (f *fakeResponses) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeResponses) SetEx(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

type fakeCounter struct {
	mu sync.Mutex
	n  int64
}

func (f *fakeCounter) Get(context.Context, string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(strconv.FormatInt(f.n, 10), nil)
}

func (f *fakeCounter) Incr(context.Context, string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return redis.NewIntResult(f.n, nil)
}

func TestResponseCacheHitMissAndInvalidation(t *testing.T) {
	store := &fakeResponses{data: map[string][]byte{}}
	gen := cache.NewGeneration(&fakeCounter{}, "cache", logger.Discard())
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute,
		KeyStrategy: "user_route_query", Prefix: "cache",
	}

	calls := 0
	e := echo.New()
	g := e.Group("", JWTAuth(secret), NewResponseCache(cfg, store, gen))
	g.GET("/reports", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	})

	alice, bob := bearer(t, 1, "admin"), bearer(t, 2, "admin")

	first := serve(e, http.MethodGet, "/reports", alice)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(e, http.MethodGet, "/reports", alice)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, first.Header().Get(echo.HeaderContentType), second.Header().Get(echo.HeaderContentType))

	other := serve(e, http.MethodGet, "/reports", bob)
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"), "callers never share entries")

	gen.Bump(context.Background())
	after := serve(e, http.MethodGet, "/reports", alice)
	assert.Equal(t, "MISS", after.Header().Get("X-Cache"))
	assert.Equal(t, 3, calls)
}

func TestResponseCachePassThroughWithoutStore(t *testing.T) {
	mw := NewResponseCache(config.CacheConfig{Enabled: true}, nil, nil)
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, mw)
	rec := serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
}
