package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

type memUsers struct {
	byID   map[uint64]model.User
	getErr error
}

func (m *memUsers) Create(context.Context, *model.User, string, int) error { return nil }
func (m *memUsers) GetByEmail(context.Context, string) (model.User, error) {
	return model.User{}, repository.ErrUserNotFound
}
func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	if m.getErr != nil {
		return model.User{}, m.getErr
	}
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}
func (m *memUsers) UpdatePassword(context.Context, uint64, string, int) error { return nil }
func (m *memUsers) TouchLastLogin(context.Context, uint64, time.Time) error { return nil }

type memTokens struct {
	userID    uint64
	rotated   int
	revokeErr error
	revoked   bool
}

func (m *memTokens) StoreRefresh(context.Context, uint64, string, time.Time) error { return nil }
func (m *memTokens) Rotate(context.Context, string, string, time.Time) (uint64, error) {
	m.rotated++
	return m.userID, nil
}
func (m *memTokens) RevokeByHash(context.Context, string) error { return nil }
func (m *memTokens) RevokeAllForUser(context.Context, uint64) error {
	m.revoked = true
	return m.revokeErr
}

func refreshRequest(h *AuthHandler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookie, Value: "old-token"})
	rec := httptest.NewRecorder()
	_ = h.Refresh(echo.New().NewContext(req, rec))
	return rec
}

func lastCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		return nil
	}
	return cookies[len(cookies)-1]
}

func authCfg() config.Config {
	return config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, CookiePath: "/v1/auth"}
}

func TestRefreshRotatesCookie(t *testing.T) {
	users := &memUsers{byID: map[uint64]model.User{4: {ID: 4, Role: model.RoleTreasurer, IsActive: true}}}
	tokens := &memTokens{userID: 4}
	rec := refreshRequest(NewAuthHandler(authCfg(), users, tokens, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	ck := lastCookie(rec)
	require.NotNil(t, ck)
	assert.NotEqual(t, "old-token", ck.Value)
	assert.NotEmpty(t, ck.Value)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, 1, tokens.rotated)
}

func TestRefreshKeepsNewTokenWhenLookupFails(t *testing.T) {
	users := &memUsers{getErr: errors.New("connection reset")}
	tokens := &memTokens{userID: 4}
	rec := refreshRequest(NewAuthHandler(authCfg(), users, tokens, nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	ck := lastCookie(rec)
	require.NotNil(t, ck, "rotated token must reach the client")
	assert.NotEqual(t, "old-token", ck.Value)
	assert.NotEmpty(t, ck.Value)
}

func TestRefreshInactiveAccountClearsCookie(t *testing.T) {
	users := &memUsers{byID: map[uint64]model.User{4: {ID: 4, Role: model.RoleBoard}}}
	tokens := &memTokens{userID: 4, revokeErr: errors.New("lock wait timeout")}
	rec := refreshRequest(NewAuthHandler(authCfg(), users, tokens, nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_inactive", decode(t, rec)["error"])
	assert.True(t, tokens.revoked)
	ck := lastCookie(rec)
	require.NotNil(t, ck)
	assert.Empty(t, ck.Value)
}
