package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/handler"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/utils"
)

const secret = "router-secret"

// newAPI wires every group with empty handlers; requests in these tests are
// rejected by middleware before a handler touches its services.
func newAPI() *echo.Echo {
	e := echo.New()
	g := Guards{JWTSecret: secret}
	RegisterAuth(e, handler.NewAuthHandler(config.Config{JWTSecret: secret, CookiePath: "/v1/auth"}, nil, nil, nil), g)
	RegisterMembers(e, &handler.MemberHandler{}, g)
	RegisterFees(e, &handler.FeeHandler{}, g)
	RegisterFinance(e, &handler.FinanceHandler{}, g)
	RegisterEquipment(e, &handler.EquipmentHandler{}, g)
	RegisterEvents(e, &handler.EventHandler{}, g)
	RegisterReports(e, &handler.ReportHandler{}, g)
	return e
}

func call(t *testing.T, e *echo.Echo, method, path, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		tok, err := utils.NewAccessToken(secret, 1, role, 5)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	e := newAPI()
	for _, path := range []string{
		"/v1/members", "/v1/fees", "/v1/fees/types", "/v1/finance/transactions",
		"/v1/equipment", "/v1/equipment/reservations", "/v1/events", "/v1/reports/dashboard",
		"/v1/auth/me",
	} {
		rec := call(t, e, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestBoardIsReadOnly(t *testing.T) {
	e := newAPI()
	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/v1/members"},
		{http.MethodPost, "/v1/fees/types/1/generate"},
		{http.MethodPost, "/v1/fees/1/pay"},
		{http.MethodPost, "/v1/finance/import"},
		{http.MethodPost, "/v1/finance/transactions/1/match"},
		{http.MethodPost, "/v1/equipment/reservations"},
		{http.MethodPost, "/v1/events/1/open"},
	} {
		rec := call(t, e, r.method, r.path, model.RoleBoard)
		assert.Equal(t, http.StatusForbidden, rec.Code, r.path)
	}
}

func TestAdminOnlyRoutes(t *testing.T) {
	e := newAPI()
	for _, r := range []struct{ method, path string }{
		{http.MethodDelete, "/v1/members/1"},
		{http.MethodDelete, "/v1/events/1"},
		{http.MethodPost, "/v1/fees/1/cancel"},
		{http.MethodPost, "/v1/auth/register"},
	} {
		rec := call(t, e, r.method, r.path, model.RoleTreasurer)
		assert.Equal(t, http.StatusForbidden, rec.Code, r.path)
	}
}

func TestLoginValidatesBeforeLookup(t *testing.T) {
	e := newAPI()
	rec := call(t, e, http.MethodPost, "/v1/auth/login", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_body")
}

func TestLogoutWithoutTokenClearsCookie(t *testing.T) {
	e := newAPI()
	rec := call(t, e, http.MethodPost, "/v1/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "refresh_token=")
}
