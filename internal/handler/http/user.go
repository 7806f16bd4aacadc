package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/utafrali/VideoTubeGo/pkg/middleware"
	"github.com/utafrali/VideoTubeGo/internal/domain"
	"github.com/utafrali/VideoTubeGo/internal/service"
)

// UserHandler handles HTTP requests for the authenticated user's profile.
type UserHandler struct {
	service *service.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// GetCurrentUser handles GET /api/v1/users/me
func (h *UserHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user not authenticated")
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, user, "Current user fetched successfully")
}

// UpdateAvatar handles PATCH /api/v1/users/me/avatar. The body is
// multipart/form-data with a single avatar file.
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", "Avatar image updated successfully", h.service.UpdateAvatar)
}

// UpdateCoverImage handles PATCH /api/v1/users/me/cover-image. The body is
// multipart/form-data with a single coverImage file.
func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", "Cover image updated successfully", h.service.UpdateCoverImage)
}

func (h *UserHandler) updateImage(
	w http.ResponseWriter,
	r *http.Request,
	field, message string,
	update func(ctx context.Context, userID string, upload *service.FileUpload) (*domain.User, error),
) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user not authenticated")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	upload, closeFile, err := formFile(r, field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, field+" file is required")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid "+field+" file: "+err.Error())
		return
	}
	defer closeFile()

	user, err := update(r.Context(), userID, upload)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, user, message)
}
