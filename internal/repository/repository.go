package repository

import (
	"context"

	"github.com/utafrali/VideoTubeGo/internal/domain"
)

// UserRepository defines the interface for user and refresh-token persistence.
// The stored refresh token is a single value per user: an empty string means
// the user has no active session.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByUsernameOrEmail retrieves a user matching either field. Empty
	// arguments never match.
	GetByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error)

	// Update modifies an existing user's profile fields and password hash.
	Update(ctx context.Context, user *domain.User) error

	// SetRefreshToken unconditionally overwrites the stored refresh token.
	// This is the rotation primitive used at login.
	SetRefreshToken(ctx context.Context, id, token string) error

	// RotateRefreshToken replaces the stored refresh token only if the
	// currently stored value equals previous (compare-and-set). Returns
	// ErrUnauthorized via apperrors when the stored value no longer matches,
	// which is how a concurrent refresh loser observes defeat.
	RotateRefreshToken(ctx context.Context, id, previous, next string) error

	// ClearRefreshToken removes the stored refresh token. Idempotent:
	// clearing an already-cleared token is not an error.
	ClearRefreshToken(ctx context.Context, id string) error
}
