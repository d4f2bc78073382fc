// Account HTTP handlers.
//
//   - POST   /auth/register   (create account)
//   - POST   /auth/login      (issue bearer token)
//   - GET    /me              (profile + remaining minutes)
//   - PUT    /me/password     (change password)
//   - DELETE /me              (hard delete)
//   - GET    /usage           (remaining minutes, optional auth)
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/services"
)

//
// DTOs
//

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Email    string `json:"email"    binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery"`
	Name     string `json:"name"     example:"Ada"`
}

// LoginRequest is the JSON payload for obtaining a token.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery"`
}

// ChangePasswordRequest is the JSON payload for PUT /me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password"     binding:"required"`
}

// UserView is the public shape of an account.
type UserView struct {
	ID        string    `json:"id"         example:"0b7e6f1c-5a3d-4c1e-9f2a-6d8b1e0c4a77"`
	Email     string    `json:"email"      example:"ada@example.com"`
	Name      string    `json:"name"       example:"Ada"`
	IsPremium bool      `json:"is_premium" example:"false"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterResponse wraps the created account.
type RegisterResponse struct {
	User UserView `json:"user"`
}

// LoginResponse carries the bearer token and its expiry.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserView  `json:"user"`
}

// ProfileResponse is the caller's account with quota information.
type ProfileResponse struct {
	UserView
	RemainingMinutes float64 `json:"remaining_minutes" example:"87.5"`
}

// UsageResponse reports the minutes left in the rolling window.
type UsageResponse struct {
	RemainingMinutes float64 `json:"remaining_minutes" example:"87.5"`
	Success          bool    `json:"success"           example:"true"`
}

func viewOf(u *domain.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, Name: u.Name, IsPremium: u.IsPremium, CreatedAt: u.CreatedAt}
}

//
// Handlers
//

// Register godoc
// @ID          register
// @Summary     Create an account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account details"
// @Success     201   {object}  handlers.RegisterResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid email or weak password"
// @Failure     409   {object}  handlers.ErrorResponse  "Email already registered"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password required")
		return
	}

	u, err := h.accounts.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	switch {
	case err == nil:
		ok(c, http.StatusCreated, RegisterResponse{User: viewOf(u)})
	case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrWeakPassword):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrEmailTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		failInternal(c, ErrCodeInternal, err)
	}
}

// Login godoc
// @ID          login
// @Summary     Exchange credentials for a bearer token
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.LoginResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid email or password"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password required")
		return
	}

	sess, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		ok(c, http.StatusOK, LoginResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: viewOf(sess.User)})
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	default:
		failInternal(c, ErrCodeInternal, err)
	}
}

// Me godoc
// @ID          getMe
// @Summary     Current user's profile
// @Tags        Account
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ProfileResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	p, err := h.accounts.Profile(c.Request.Context(), userID(c))
	switch {
	case err == nil:
		ok(c, http.StatusOK, ProfileResponse{UserView: viewOf(p.User), RemainingMinutes: p.RemainingMinutes})
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	default:
		failInternal(c, ErrCodeInternal, err)
	}
}

// ChangePassword godoc
// @ID          changePassword
// @Summary     Change the current user's password
// @Tags        Account
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.ChangePasswordRequest  true  "Current and new password"
// @Success     200   {object}  handlers.SuccessResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Wrong current password or weak new password"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404   {object}  handlers.ErrorResponse  "User not found"
// @Router      /me/password [put]
func (h *Handlers) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "current_password and new_password required")
		return
	}

	err := h.accounts.ChangePassword(c.Request.Context(), userID(c), req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		okSuccess(c)
	case errors.Is(err, services.ErrWrongPassword), errors.Is(err, services.ErrWeakPassword):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	default:
		failInternal(c, ErrCodeInternal, err)
	}
}

// DeleteMe godoc
// @ID          deleteMe
// @Summary     Delete the current account and everything it owns
// @Tags        Account
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.SuccessResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /me [delete]
func (h *Handlers) DeleteMe(c *gin.Context) {
	err := h.accounts.Delete(c.Request.Context(), userID(c))
	// A concurrent delete already did the work.
	if err != nil && !errors.Is(err, services.ErrUserNotFound) {
		failInternal(c, ErrCodeInternal, err)
		return
	}
	okSuccess(c)
}

// Usage godoc
// @ID          getUsage
// @Summary     Remaining transcription minutes
// @Description Minutes left in the trailing 30-day window. Anonymous callers get 401 with zero minutes.
// @Tags        Account
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UsageResponse
// @Failure     401  {object}  handlers.UsageResponse
// @Router      /usage [get]
func (h *Handlers) Usage(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, UsageResponse{RemainingMinutes: 0, Success: false})
		return
	}
	ok(c, http.StatusOK, UsageResponse{
		RemainingMinutes: h.quota.RemainingMinutes(c.Request.Context(), uid),
		Success:          true,
	})
}
