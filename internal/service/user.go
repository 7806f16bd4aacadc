package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/utafrali/VideoTubeGo/pkg/errors"
	"github.com/utafrali/VideoTubeGo/internal/auth"
	"github.com/utafrali/VideoTubeGo/internal/domain"
	"github.com/utafrali/VideoTubeGo/internal/event"
	"github.com/utafrali/VideoTubeGo/internal/repository"
	"github.com/utafrali/VideoTubeGo/internal/storage"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// tokenGenerationFailed is the only message surfaced when minting or
// persisting tokens fails; the cause stays in the logs.
const tokenGenerationFailed = "something went wrong while generating tokens"

// UserService implements the session lifecycle: registration, login with
// token issuance, refresh-token rotation, and logout.
type UserService struct {
	repo       repository.UserRepository
	store      storage.Storage
	jwtManager *auth.JWTManager
	producer   *event.Producer
	logger     *slog.Logger
}

// NewUserService creates a new user service.
func NewUserService(
	repo repository.UserRepository,
	store storage.Storage,
	jwtManager *auth.JWTManager,
	producer *event.Producer,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		repo:       repo,
		store:      store,
		jwtManager: jwtManager,
		producer:   producer,
		logger:     logger,
	}
}

// --- Input types ---

// FileUpload carries an inbound image file from the delivery layer.
type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// RegisterInput holds the parameters for registering a new user.
// Avatar is mandatory; CoverImage may be nil.
type RegisterInput struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	Avatar     *FileUpload
	CoverImage *FileUpload
}

// LoginInput holds the parameters for user login. At least one of Username
// and Email must be set.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// --- Session operations ---

// Register creates a new user account. The avatar is uploaded to storage
// before the record is written; a cover image upload failure is tolerated and
// leaves the URL empty.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	username := domain.NormalizeUsername(input.Username)
	email := strings.TrimSpace(input.Email)
	fullName := strings.TrimSpace(input.FullName)

	if username == "" {
		return nil, apperrors.InvalidInput("username is required")
	}
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if fullName == "" {
		return nil, apperrors.InvalidInput("full name is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.InvalidInput("password is required")
	}
	if input.Avatar == nil {
		return nil, apperrors.InvalidInput("avatar image is required")
	}

	// Uniqueness check on either field; the database unique constraints
	// still back this up against races.
	if _, err := s.repo.GetByUsernameOrEmail(ctx, username, email); err == nil {
		return nil, apperrors.AlreadyExists("user", "username or email", username)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	userID := uuid.New().String()

	avatarURL, err := s.uploadImage(ctx, "avatars", userID, input.Avatar)
	if err != nil {
		return nil, apperrors.Upstream("avatar upload failed", err)
	}

	coverURL := ""
	if input.CoverImage != nil {
		coverURL, err = s.uploadImage(ctx, "covers", userID, input.CoverImage)
		if err != nil {
			// The cover image is optional; losing it does not fail registration.
			s.logger.WarnContext(ctx, "cover image upload failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			coverURL = ""
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:            userID,
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		PasswordHash:  string(hashedPassword),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	// Read back by id to guard against a write that silently did not persist.
	created, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("something went wrong while registering the user", err)
	}

	if err := s.producer.PublishUserRegistered(ctx, created); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", created.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", created.ID),
		slog.String("username", created.Username),
	)

	return created.Sanitize(), nil
}

// Login authenticates a user by username or email plus password. On success
// it mints an access/refresh pair and persists the refresh token, atomically
// superseding any refresh token from a previous session.
func (s *UserService) Login(ctx context.Context, input LoginInput) (*domain.User, *domain.TokenPair, error) {
	username := domain.NormalizeUsername(input.Username)
	email := strings.TrimSpace(input.Email)

	if username == "" && email == "" {
		return nil, nil, apperrors.InvalidInput("username or email is required")
	}

	user, err := s.repo.GetByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("find user for login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, apperrors.Unauthorized("invalid user credentials")
	}

	tokens, err := s.issueTokenPair(ctx, user.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "token issuance failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, nil, apperrors.Internal(tokenGenerationFailed, err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user.Sanitize(), tokens, nil
}

// Refresh exchanges a valid refresh token for a fresh access/refresh pair.
// The presented token must exactly match the stored value; once rotated, the
// old value is permanently invalid even while cryptographically sound. All
// verification failures surface as Unauthorized so callers receive a uniform
// re-authenticate signal.
func (s *UserService) Refresh(ctx context.Context, presented string) (*domain.TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil, apperrors.Unauthorized("unauthorized request")
	}

	claims, err := s.jwtManager.VerifyClass(presented, auth.ClassRefresh)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperrors.Unauthorized("refresh token is expired")
		}
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	user, err := s.repo.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	// Reuse detector: a rotated-out value no longer matches the stored one.
	if user.RefreshToken != presented {
		return nil, apperrors.Unauthorized("Refresh token is expired or used")
	}

	accessToken, err := s.jwtManager.MintAccessToken(user.ID)
	if err != nil {
		return nil, apperrors.Internal(tokenGenerationFailed, err)
	}
	refreshToken, err := s.jwtManager.MintRefreshToken(user.ID)
	if err != nil {
		return nil, apperrors.Internal(tokenGenerationFailed, err)
	}

	// Compare-and-set keyed on the presented value: of two concurrent
	// refreshes only one can win, the loser gets Unauthorized here.
	if err := s.repo.RotateRefreshToken(ctx, user.ID, presented, refreshToken); err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			return nil, err
		}
		return nil, apperrors.Internal(tokenGenerationFailed, err)
	}

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("user_id", user.ID),
	)

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Logout clears the stored refresh token for the user. Logging out an
// already-logged-out user succeeds.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.ClearRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	if err := s.producer.PublishUserLoggedOut(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.logged_out event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", userID),
	)

	return nil
}

// --- Account operations ---

// GetCurrentUser retrieves the sanitized view of a user by ID.
func (s *UserService) GetCurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Sanitize(), nil
}

// ChangePassword verifies the current password and replaces it. The stored
// refresh token is cleared so existing sessions must log in again.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperrors.InvalidInput("new password is required")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return apperrors.Unauthorized("current password is incorrect")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	user.PasswordHash = string(hashedPassword)
	if err := s.repo.Update(ctx, user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.repo.ClearRefreshToken(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear refresh token after password change",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("user_id", userID),
	)

	return nil
}

// UpdateAvatar uploads a new avatar image and stores its URL.
func (s *UserService) UpdateAvatar(ctx context.Context, userID string, upload *FileUpload) (*domain.User, error) {
	return s.updateImage(ctx, userID, "avatars", upload, func(u *domain.User, url string) {
		u.AvatarURL = url
	})
}

// UpdateCoverImage uploads a new cover image and stores its URL.
func (s *UserService) UpdateCoverImage(ctx context.Context, userID string, upload *FileUpload) (*domain.User, error) {
	return s.updateImage(ctx, userID, "covers", upload, func(u *domain.User, url string) {
		u.CoverImageURL = url
	})
}

// --- Helpers ---

func (s *UserService) updateImage(ctx context.Context, userID, kind string, upload *FileUpload, apply func(*domain.User, string)) (*domain.User, error) {
	if upload == nil {
		return nil, apperrors.InvalidInput("image file is required")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	url, err := s.uploadImage(ctx, kind, userID, upload)
	if err != nil {
		return nil, apperrors.Upstream("image upload failed", err)
	}

	apply(user, url)
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user image: %w", err)
	}

	s.logger.InfoContext(ctx, "user image updated",
		slog.String("user_id", userID),
		slog.String("kind", kind),
	)

	return user.Sanitize(), nil
}

// issueTokenPair mints both tokens and persists the refresh token. The write
// completes before the pair is returned, so a client never holds a refresh
// token that was not stored.
func (s *UserService) issueTokenPair(ctx context.Context, userID string) (*domain.TokenPair, error) {
	accessToken, err := s.jwtManager.MintAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	refreshToken, err := s.jwtManager.MintRefreshToken(userID)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	if err := s.repo.SetRefreshToken(ctx, userID, refreshToken); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// uploadImage writes the file to storage under a key namespaced by kind and
// user, returning the public URL.
func (s *UserService) uploadImage(ctx context.Context, kind, userID string, upload *FileUpload) (string, error) {
	key := fmt.Sprintf("%s/%s/%s", kind, userID, uuid.New().String())

	result, err := s.store.Upload(ctx, &storage.UploadInput{
		Key:         key,
		ContentType: upload.ContentType,
		Size:        upload.Size,
		Data:        upload.Data,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", kind, err)
	}

	return result.URL, nil
}
