package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
	"github.com/stw-baltyk/baltyk-manager/internal/utils"
)

// refreshCookie holds the raw refresh token; it is HttpOnly and scoped to
// the auth routes.
const refreshCookie = "refresh_token"

// UserStore is the account storage the auth endpoints use.
type UserStore interface {
	Create(ctx context.Context, u *model.User, password string, cost int) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdatePassword(ctx context.Context, id uint64, password string, cost int) error
	TouchLastLogin(ctx context.Context, id uint64, at time.Time) error
}

// TokenStore keeps hashed refresh tokens.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Rotate(ctx context.Context, oldHash, newHash string, exp time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg     config.Config
	Users   UserStore
	Tokens  TokenStore
	Members *repository.MemberRepo
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, m *repository.MemberRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Members: m}
}

// ----- DTOs -----

type registerReq struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Role      string  `json:"role"` // ADMIN | TREASURER | BOARD
	MemberID  *uint64 `json:"member_id"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type authResp struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        model.User `json:"user"`
}

var (
	errUnauthorized   = &apiError{status: http.StatusUnauthorized, code: "invalid_credentials"}
	errInvalidRefresh = &apiError{status: http.StatusUnauthorized, code: "invalid_refresh_token"}
)

// issue creates an access token and a stored refresh token and sets the
// refresh cookie.
func (h *AuthHandler) issue(c echo.Context, u model.User) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return err
	}
	h.setRefreshCookie(c, refresh.Raw, refresh.Exp)
	return c.JSON(http.StatusOK, authResp{AccessToken: access.Token, ExpiresAt: access.Exp, User: u})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, raw string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    raw,
		Path:     h.Cfg.CookiePath,
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     h.Cfg.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// presentedRefresh reads the refresh token from the cookie, falling back to
// a JSON body field for non-browser clients.
func presentedRefresh(c echo.Context) string {
	if ck, err := c.Cookie(refreshCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	var req refreshReq
	if err := c.Bind(&req); err == nil {
		return strings.TrimSpace(req.RefreshToken)
	}
	return ""
}

// Login verifies credentials and returns an access token; the refresh token
// is set as a cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return fail(c, badRequest("invalid_body", "email/password required"))
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fail(c, errUnauthorized)
		}
		return fail(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(c, errUnauthorized)
	}
	if !u.IsActive {
		return fail(c, repository.ErrAccountInactive)
	}
	now := time.Now().UTC()
	if err := h.Users.TouchLastLogin(ctx, u.ID, now); err != nil {
		return fail(c, err)
	}
	u.LastLogin = &now
	if err := h.issue(c, u); err != nil {
		return fail(c, err)
	}
	return nil
}

// Refresh rotates the refresh token and returns a new access token. A token
// can be used once; replaying it fails.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := presentedRefresh(c)
	if raw == "" {
		return fail(c, errInvalidRefresh)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	next, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return fail(c, err)
	}
	userID, err := h.Tokens.Rotate(ctx, utils.HashRefreshRaw(raw), utils.HashRefreshRaw(next.Raw), next.Exp)
	if err != nil {
		h.clearRefreshCookie(c)
		return fail(c, errInvalidRefresh)
	}
	// The old token is spent; hand out the new one even if the rest fails.
	h.setRefreshCookie(c, next.Raw, next.Exp)

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return fail(c, err)
	}
	if !u.IsActive {
		if err := h.Tokens.RevokeAllForUser(ctx, u.ID); err != nil {
			log.Printf("auth: revoke tokens of inactive user %d: %v", u.ID, err)
		}
		h.clearRefreshCookie(c)
		return fail(c, repository.ErrAccountInactive)
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, authResp{AccessToken: access.Token, ExpiresAt: access.Exp, User: u})
}

// Logout revokes the presented refresh token and clears the cookie. It
// succeeds even when no token is presented.
func (h *AuthHandler) Logout(c echo.Context) error {
	if raw := presentedRefresh(c); raw != "" {
		ctx, cancel := reqCtx(c)
		defer cancel()
		if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw)); err != nil {
			return fail(c, err)
		}
	}
	h.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated account and its linked member, if any.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, errUnauthorized)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	out := echo.Map{"user": u}
	if u.MemberID != nil {
		m, err := h.Members.GetByID(ctx, *u.MemberID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fail(c, err)
		}
		if err == nil {
			out["member"] = m
		}
	}
	return c.JSON(http.StatusOK, out)
}

// Register creates an account (ADMIN only).
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	if req.Email == "" {
		return fail(c, repository.Invalid("email", "required"))
	}
	if req.Role == "" {
		req.Role = model.RoleBoard
	}
	if !model.ValidRole(req.Role) {
		return fail(c, repository.Invalid("role", "unknown role"))
	}
	if err := utils.CheckPassword(req.Password); err != nil {
		return fail(c, repository.ErrWeakPassword)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if req.MemberID != nil {
		if _, err := h.Members.GetByID(ctx, *req.MemberID); err != nil {
			return fail(c, err)
		}
	}
	u := &model.User{
		Email:     req.Email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      req.Role,
		MemberID:  req.MemberID,
	}
	if err := h.Users.Create(ctx, u, req.Password, h.Cfg.BcryptCost); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// ChangePassword replaces the caller's password and signs out every other
// session by revoking all refresh tokens.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, errUnauthorized)
	}
	var req changePasswordReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if err := utils.CheckPassword(req.NewPassword); err != nil {
		return fail(c, repository.ErrWeakPassword)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		return fail(c, repository.ErrInvalidCredentials)
	}
	if err := h.Users.UpdatePassword(ctx, uid, req.NewPassword, h.Cfg.BcryptCost); err != nil {
		return fail(c, err)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		return fail(c, err)
	}
	h.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}
