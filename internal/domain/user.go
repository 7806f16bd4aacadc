package domain

import (
	"strings"
	"time"
)

// User represents a registered user of the platform.
//
// PasswordHash and RefreshToken are server-side secrets and are never
// serialized; Sanitize additionally zeroes them on copies handed to callers.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	AvatarURL     string    `json:"avatar_url"`
	CoverImageURL string    `json:"cover_image_url,omitempty"`
	PasswordHash  string    `json:"-"`
	RefreshToken  string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Sanitize returns a copy of the user with credential fields cleared.
func (u *User) Sanitize() *User {
	s := *u
	s.PasswordHash = ""
	s.RefreshToken = ""
	return &s
}

// NormalizeUsername lower-cases and trims a username for storage and lookup.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
