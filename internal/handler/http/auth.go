package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/utafrali/VideoTubeGo/pkg/middleware"
	"github.com/utafrali/VideoTubeGo/pkg/validator"
	"github.com/utafrali/VideoTubeGo/internal/auth"
	"github.com/utafrali/VideoTubeGo/internal/domain"
	"github.com/utafrali/VideoTubeGo/internal/service"
)

// Cookie names for the credential pair.
const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

// maxUploadBytes caps multipart request memory for image uploads.
const maxUploadBytes = 10 << 20

// AuthHandler handles HTTP requests for session endpoints: register, login,
// token refresh, logout, and password change.
type AuthHandler struct {
	service      *service.UserService
	jwtManager   *auth.JWTManager
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler. secureCookie should be true
// everywhere except plain-HTTP development setups.
func NewAuthHandler(svc *service.UserService, jwtManager *auth.JWTManager, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:      svc,
		jwtManager:   jwtManager,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// --- Request DTOs ---

// LoginRequest is the JSON request body for user login. Either username or
// email identifies the account.
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the JSON request body for token refresh, used when the
// refresh token is not presented as a cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordRequest is the JSON request body for changing the password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// --- Response types ---

// LoginResponse carries the sanitized user and the token pair. The tokens are
// duplicated in the body for clients that cannot use cookies.
type LoginResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// TokenResponse carries a freshly rotated token pair.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register. The body is multipart/form-data
// with fields username, email, fullName, password and files avatar (required)
// and coverImage (optional).
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	input := service.RegisterInput{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		FullName: r.FormValue("fullName"),
		Password: r.FormValue("password"),
	}

	avatar, closeAvatar, err := formFile(r, "avatar")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		writeError(w, http.StatusBadRequest, "invalid avatar file: "+err.Error())
		return
	}
	if closeAvatar != nil {
		defer closeAvatar()
	}
	input.Avatar = avatar

	cover, closeCover, err := formFile(r, "coverImage")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		writeError(w, http.StatusBadRequest, "invalid cover image file: "+err.Error())
		return
	}
	if closeCover != nil {
		defer closeCover()
	}
	input.CoverImage = cover

	user, err := h.service.Register(r.Context(), input)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, user, "User registered successfully")
}

// Login handles POST /api/v1/auth/login. On success the token pair is set as
// httpOnly cookies and echoed in the response body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	user, tokens, err := h.service.Login(r.Context(), service.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.setAuthCookies(w, tokens)
	writeJSON(w, http.StatusOK, LoginResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "User logged in successfully")
}

// RefreshToken handles POST /api/v1/auth/refresh-token. The refresh token is
// read from the refreshToken cookie, or failing that from the request body.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(refreshCookieName); err == nil {
		token = c.Value
	}
	if token == "" {
		var req RefreshRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err == nil {
			token = req.RefreshToken
		}
	}

	tokens, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.setAuthCookies(w, tokens)
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "Access token refreshed")
}

// Logout handles POST /api/v1/auth/logout (auth required). The stored refresh
// token is cleared and both cookies are expired.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user not authenticated")
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, nil, "User logged out successfully")
}

// ChangePassword handles POST /api/v1/auth/change-password (auth required).
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	// The stored refresh token is gone, so the cookies are useless now.
	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, nil, "Password changed successfully")
}

// --- Cookie helpers ---

func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, tokens *domain.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    tokens.AccessToken,
		Path:     "/",
		MaxAge:   int(h.jwtManager.AccessExpiry().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    tokens.RefreshToken,
		Path:     "/",
		MaxAge:   int(h.jwtManager.RefreshExpiry().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// formFile extracts a multipart file as a service upload. The returned close
// function must be called after the service is done reading, when non-nil.
func formFile(r *http.Request, field string) (*service.FileUpload, func(), error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, err
	}

	upload := &service.FileUpload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        file,
	}
	return upload, func() { _ = file.Close() }, nil
}
