package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/utils"
)

const secret = "test-secret"

func newServer(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/v1/whoami", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"user_id": UserID(c), "role": Role(c)})
	}, mw...)
	return e
}

func do(e *echo.Echo, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, userID uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, userID, role, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func TestJWTAuth(t *testing.T) {
	e := newServer(JWTAuth(secret))

	rec := do(e, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_token")

	rec = do(e, map[string]string{"Authorization": "Bearer nonsense", "Accept-Language": "en"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_token", body["error"])
	assert.Equal(t, "Invalid or expired token", body["message"])

	other, err := utils.NewAccessToken("another-secret", 1, model.RoleAdmin, 5)
	require.NoError(t, err)
	rec = do(e, map[string]string{"Authorization": "Bearer " + other.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, map[string]string{"Authorization": bearer(t, 42, model.RoleTreasurer)})
	require.Equal(t, http.StatusOK, rec.Code)
	var who struct {
		UserID uint64 `json:"user_id"`
		Role   string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &who))
	assert.Equal(t, uint64(42), who.UserID)
	assert.Equal(t, model.RoleTreasurer, who.Role)
}

func TestRequireRole(t *testing.T) {
	e := newServer(JWTAuth(secret), RequireRole(model.WriterRoles...))

	rec := do(e, map[string]string{"Authorization": bearer(t, 7, model.RoleBoard)})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Brak uprawnień")

	rec = do(e, map[string]string{"Authorization": bearer(t, 7, model.RoleAdmin)})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Without JWTAuth in front nobody is authenticated.
	rec = do(newServer(RequireRole(model.RoleAdmin)), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenBucketFallsBackToLocalLimiter(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Scope:          "login",
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}
	e := newServer(NewTokenBucket(cfg, nil))

	for i := 0; i < 2; i++ {
		rec := do(e, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := do(e, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too_many_requests")

	cfg.Enabled = false
	e = newServer(NewTokenBucket(cfg, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(e, nil).Code)
	}
}

func TestLocalLimiterRefills(t *testing.T) {
	l := newLocalLimiter(config.RateLimitConfig{Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute})
	now := time.Now()

	ok, _, _ := l.take("k", now)
	assert.True(t, ok)
	ok, _, retry := l.take("k", now)
	assert.False(t, ok)
	assert.Positive(t, retry)

	ok, _, _ = l.take("other", now)
	assert.True(t, ok, "keys are independent")

	ok, _, _ = l.take("k", now.Add(1100*time.Millisecond))
	assert.True(t, ok)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/auth/login")

	cfg := config.RateLimitConfig{Prefix: "rl", Scope: "login", KeyStrategy: "ip_route"}
	assert.Equal(t, "rl:login:ip:10.0.0.1:route:POST /v1/auth/login", buildRateKey(cfg, c))

	c.Set(ctxUserID, uint64(9))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:login:user:9", buildRateKey(cfg, c))
}

func TestCacheKeyDependsOnLanguage(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query_lang"}

	key := func(lang string) string {
		req := httptest.NewRequest(http.MethodGet, "/v1/finance/categories?type=income", nil)
		req.Header.Set("Accept-Language", lang)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath("/v1/finance/categories")
		return cacheKeyFrom(cfg, c)
	}
	assert.Equal(t, key("pl"), key(""))
	assert.NotEqual(t, key("pl"), key("en"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.JSONEq(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
}

func TestCacheDisabledWithoutRedis(t *testing.T) {
	e := newServer(NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil))
	rec := do(e, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
