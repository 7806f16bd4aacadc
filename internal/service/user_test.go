package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/utafrali/VideoTubeGo/pkg/errors"
	pkgkafka "github.com/utafrali/VideoTubeGo/pkg/kafka"
	"github.com/utafrali/VideoTubeGo/internal/auth"
	"github.com/utafrali/VideoTubeGo/internal/domain"
	"github.com/utafrali/VideoTubeGo/internal/event"
	"github.com/utafrali/VideoTubeGo/internal/storage"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error) {
	args := m.Called(ctx, username, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	args := m.Called(ctx, id, token)
	return args.Error(0)
}

func (m *mockUserRepository) RotateRefreshToken(ctx context.Context, id, previous, next string) error {
	args := m.Called(ctx, id, previous, next)
	return args.Error(0)
}

func (m *mockUserRepository) ClearRefreshToken(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Stub Storage ---

// stubStorage records uploads and can be told to fail for keys under a given
// prefix, e.g. "covers/".
type stubStorage struct {
	mu         sync.Mutex
	uploaded   []string
	failPrefix string
}

func (s *stubStorage) Upload(_ context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPrefix != "" && strings.HasPrefix(input.Key, s.failPrefix) {
		return nil, errors.New("storage unavailable")
	}

	s.uploaded = append(s.uploaded, input.Key)
	return &storage.UploadResult{
		Key: input.Key,
		URL: "https://cdn.test/" + input.Key,
	}, nil
}

func (s *stubStorage) Delete(_ context.Context, _ string) error {
	return nil
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJWTManager() *auth.JWTManager {
	return auth.NewJWTManager("test-secret-key-for-testing", 15*time.Minute, 7*24*time.Hour)
}

func newTestEventProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

func newTestService(repo *mockUserRepository, store storage.Storage) *UserService {
	logger := newTestLogger()
	return NewUserService(repo, store, newTestJWTManager(), newTestEventProducer(), logger)
}

// hashForTest creates a bcrypt hash with cost 4 for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), 4)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func avatarUpload() *FileUpload {
	return &FileUpload{
		FileName:    "avatar.png",
		ContentType: "image/png",
		Size:        4,
		Data:        strings.NewReader("PNG."),
	}
}

func coverUpload() *FileUpload {
	return &FileUpload{
		FileName:    "cover.jpg",
		ContentType: "image/jpeg",
		Size:        4,
		Data:        strings.NewReader("JPG."),
	}
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Username: "Ada",
		Email:    "ada@x.io",
		FullName: "Ada Lovelace",
		Password: "SecurePass123",
		Avatar:   avatarUpload(),
	}
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	repo := new(mockUserRepository)
	store := &stubStorage{}
	svc := newTestService(repo, store)
	ctx := context.Background()

	repo.On("GetByUsernameOrEmail", ctx, "ada", "ada@x.io").
		Return(nil, apperrors.NotFound("user", "ada"))

	// The read-back after Create must observe the row the insert wrote.
	persisted := &domain.User{}
	repo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) {
			*persisted = *args.Get(1).(*domain.User)
		}).
		Return(nil)
	repo.On("GetByID", ctx, mock.AnythingOfType("string")).Return(persisted, nil)

	input := validRegisterInput()
	input.CoverImage = coverUpload()

	user, err := svc.Register(ctx, input)

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "ada", user.Username)
	assert.Equal(t, "ada@x.io", user.Email)
	assert.Equal(t, "Ada Lovelace", user.FullName)
	assert.True(t, strings.HasPrefix(user.AvatarURL, "https://cdn.test/avatars/"))
	assert.True(t, strings.HasPrefix(user.CoverImageURL, "https://cdn.test/covers/"))
	assert.Empty(t, user.PasswordHash)
	assert.Empty(t, user.RefreshToken)
	assert.NotZero(t, user.CreatedAt)

	assert.Len(t, store.uploaded, 2)
	repo.AssertExpectations(t)
}

func TestRegister_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"empty username", func(in *RegisterInput) { in.Username = "  " }},
		{"empty email", func(in *RegisterInput) { in.Email = "" }},
		{"empty full name", func(in *RegisterInput) { in.FullName = "" }},
		{"empty password", func(in *RegisterInput) { in.Password = "   " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockUserRepository)
			svc := newTestService(repo, &stubStorage{})

			input := validRegisterInput()
			tt.mutate(&input)

			user, err := svc.Register(context.Background(), input)

			assert.Nil(t, user)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_MissingAvatar(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})

	input := validRegisterInput()
	input.Avatar = nil

	user, err := svc.Register(context.Background(), input)

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRegister_DuplicateUser(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	existing := &domain.User{ID: "user-123", Username: "ada", Email: "ada@x.io"}
	repo.On("GetByUsernameOrEmail", ctx, "ada", "ada@x.io").Return(existing, nil)

	user, err := svc.Register(ctx, validRegisterInput())

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_AvatarUploadFails(t *testing.T) {
	repo := new(mockUserRepository)
	store := &stubStorage{failPrefix: "avatars/"}
	svc := newTestService(repo, store)
	ctx := context.Background()

	repo.On("GetByUsernameOrEmail", ctx, "ada", "ada@x.io").
		Return(nil, apperrors.NotFound("user", "ada"))

	user, err := svc.Register(ctx, validRegisterInput())

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_CoverUploadFailureTolerated(t *testing.T) {
	repo := new(mockUserRepository)
	store := &stubStorage{failPrefix: "covers/"}
	svc := newTestService(repo, store)
	ctx := context.Background()

	repo.On("GetByUsernameOrEmail", ctx, "ada", "ada@x.io").
		Return(nil, apperrors.NotFound("user", "ada"))

	persisted := &domain.User{}
	repo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) {
			*persisted = *args.Get(1).(*domain.User)
		}).
		Return(nil)
	repo.On("GetByID", ctx, mock.AnythingOfType("string")).Return(persisted, nil)

	input := validRegisterInput()
	input.CoverImage = coverUpload()

	user, err := svc.Register(ctx, input)

	require.NoError(t, err)
	assert.NotEmpty(t, user.AvatarURL)
	assert.Empty(t, user.CoverImageURL)
}

func TestRegister_ReadBackMissing(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	repo.On("GetByUsernameOrEmail", ctx, "ada", "ada@x.io").
		Return(nil, apperrors.NotFound("user", "ada"))
	repo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	repo.On("GetByID", ctx, mock.AnythingOfType("string")).
		Return(nil, apperrors.NotFound("user", "gone"))

	user, err := svc.Register(ctx, validRegisterInput())

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}

// --- Login Tests ---

func TestLogin_SuccessByEmail(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	existing := &domain.User{
		ID:           "user-123",
		Username:     "ada",
		Email:        "ada@x.io",
		PasswordHash: hashForTest("SecurePass123"),
	}

	repo.On("GetByUsernameOrEmail", ctx, "", "ada@x.io").Return(existing, nil)

	var storedToken string
	repo.On("SetRefreshToken", ctx, "user-123", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			storedToken = args.String(2)
		}).
		Return(nil)

	user, tokens, err := svc.Login(ctx, LoginInput{Email: "ada@x.io", Password: "SecurePass123"})

	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotNil(t, tokens)
	assert.Equal(t, "user-123", user.ID)
	assert.Empty(t, user.PasswordHash)
	assert.Empty(t, user.RefreshToken)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	// The refresh token handed to the client is the one persisted.
	assert.Equal(t, tokens.RefreshToken, storedToken)

	// Each token verifies only under its own class.
	jwtManager := newTestJWTManager()
	claims, err := jwtManager.VerifyClass(tokens.AccessToken, auth.ClassAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)

	claims, err = jwtManager.VerifyClass(tokens.RefreshToken, auth.ClassRefresh)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)

	_, err = jwtManager.VerifyClass(tokens.RefreshToken, auth.ClassAccess)
	assert.Error(t, err)

	repo.AssertExpectations(t)
}

func TestLogin_SuccessByUsername(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	existing := &domain.User{
		ID:           "user-123",
		Username:     "ada",
		Email:        "ada@x.io",
		PasswordHash: hashForTest("SecurePass123"),
	}

	repo.On("GetByUsernameOrEmail", ctx, "ada", "").Return(existing, nil)
	repo.On("SetRefreshToken", ctx, "user-123", mock.AnythingOfType("string")).Return(nil)

	user, tokens, err := svc.Login(ctx, LoginInput{Username: "Ada", Password: "SecurePass123"})

	require.NoError(t, err)
	assert.Equal(t, "user-123", user.ID)
	assert.NotEmpty(t, tokens.RefreshToken)

	repo.AssertExpectations(t)
}

func TestLogin_WrongPassword(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	existing := &domain.User{
		ID:           "user-123",
		Email:        "ada@x.io",
		PasswordHash: hashForTest("CorrectPass123"),
	}

	repo.On("GetByUsernameOrEmail", ctx, "", "ada@x.io").Return(existing, nil)

	user, tokens, err := svc.Login(ctx, LoginInput{Email: "ada@x.io", Password: "WrongPass456"})

	assert.Nil(t, user)
	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	repo.AssertNotCalled(t, "SetRefreshToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_UserNotFound(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	repo.On("GetByUsernameOrEmail", ctx, "", "ghost@x.io").
		Return(nil, apperrors.NotFound("user", "ghost@x.io"))

	user, tokens, err := svc.Login(ctx, LoginInput{Email: "ghost@x.io", Password: "AnyPass123"})

	assert.Nil(t, user)
	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLogin_MissingIdentifier(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})

	user, tokens, err := svc.Login(context.Background(), LoginInput{Password: "SecurePass123"})

	assert.Nil(t, user)
	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestLogin_TokenStorageFails(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	existing := &domain.User{
		ID:           "user-123",
		Email:        "ada@x.io",
		PasswordHash: hashForTest("SecurePass123"),
	}

	repo.On("GetByUsernameOrEmail", ctx, "", "ada@x.io").Return(existing, nil)
	repo.On("SetRefreshToken", ctx, "user-123", mock.AnythingOfType("string")).
		Return(errors.New("connection reset"))

	user, tokens, err := svc.Login(ctx, LoginInput{Email: "ada@x.io", Password: "SecurePass123"})

	assert.Nil(t, user)
	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	assert.Contains(t, err.Error(), "something went wrong while generating tokens")
}

// --- Refresh Tests ---

func TestRefresh_Success(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	presented, err := newTestJWTManager().MintRefreshToken("user-123")
	require.NoError(t, err)

	existing := &domain.User{ID: "user-123", RefreshToken: presented}
	repo.On("GetByID", ctx, "user-123").Return(existing, nil)
	repo.On("RotateRefreshToken", ctx, "user-123", presented, mock.AnythingOfType("string")).Return(nil)

	tokens, err := svc.Refresh(ctx, presented)

	require.NoError(t, err)
	require.NotNil(t, tokens)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.NotEqual(t, presented, tokens.RefreshToken)

	repo.AssertExpectations(t)
}

func TestRefresh_SupersededTokenRejected(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	jwtManager := newTestJWTManager()
	old, err := jwtManager.MintRefreshToken("user-123")
	require.NoError(t, err)
	current, err := jwtManager.Mint("user-123", auth.ClassRefresh, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, old, current)

	// The store holds the rotated-in value; the client replays the old one.
	existing := &domain.User{ID: "user-123", RefreshToken: current}
	repo.On("GetByID", ctx, "user-123").Return(existing, nil)

	tokens, err := svc.Refresh(ctx, old)

	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Contains(t, err.Error(), "Refresh token is expired or used")
	repo.AssertNotCalled(t, "RotateRefreshToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresh_EmptyToken(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})

	tokens, err := svc.Refresh(context.Background(), "   ")

	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})

	expired, err := newTestJWTManager().Mint("user-123", auth.ClassRefresh, -time.Minute)
	require.NoError(t, err)

	tokens, err := svc.Refresh(context.Background(), expired)

	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Contains(t, err.Error(), "expired")
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})

	accessToken, err := newTestJWTManager().MintAccessToken("user-123")
	require.NoError(t, err)

	tokens, err := svc.Refresh(context.Background(), accessToken)

	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestRefresh_WrongSecret(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})

	forged, err := auth.NewJWTManager("some-other-secret", time.Minute, time.Hour).
		MintRefreshToken("user-123")
	require.NoError(t, err)

	tokens, err := svc.Refresh(context.Background(), forged)

	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRefresh_AfterLogout(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	presented, err := newTestJWTManager().MintRefreshToken("user-123")
	require.NoError(t, err)

	// Logout cleared the stored token, so nothing matches.
	existing := &domain.User{ID: "user-123", RefreshToken: ""}
	repo.On("GetByID", ctx, "user-123").Return(existing, nil)
	repo.On("ClearRefreshToken", ctx, "user-123").Return(nil)

	require.NoError(t, svc.Logout(ctx, "user-123"))

	tokens, err := svc.Refresh(ctx, presented)

	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Contains(t, err.Error(), "Refresh token is expired or used")
}

func TestRefresh_UnknownSubject(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	presented, err := newTestJWTManager().MintRefreshToken("user-gone")
	require.NoError(t, err)

	repo.On("GetByID", ctx, "user-gone").Return(nil, apperrors.NotFound("user", "user-gone"))

	tokens, err := svc.Refresh(ctx, presented)

	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRefresh_ConcurrentRotationLoses(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	presented, err := newTestJWTManager().MintRefreshToken("user-123")
	require.NoError(t, err)

	existing := &domain.User{ID: "user-123", RefreshToken: presented}
	repo.On("GetByID", ctx, "user-123").Return(existing, nil)

	// The compare-and-set lost against a concurrent refresh.
	repo.On("RotateRefreshToken", ctx, "user-123", presented, mock.AnythingOfType("string")).
		Return(apperrors.Unauthorized("Refresh token is expired or used"))

	tokens, err := svc.Refresh(ctx, presented)

	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Contains(t, err.Error(), "Refresh token is expired or used")
}

// --- Logout Tests ---

func TestLogout_Success(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	repo.On("ClearRefreshToken", ctx, "user-123").Return(nil)

	err := svc.Logout(ctx, "user-123")

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestLogout_Idempotent(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	repo.On("ClearRefreshToken", ctx, "user-123").Return(nil)

	require.NoError(t, svc.Logout(ctx, "user-123"))
	require.NoError(t, svc.Logout(ctx, "user-123"))
}

// --- GetCurrentUser Tests ---

func TestGetCurrentUser_Sanitized(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	existing := &domain.User{
		ID:           "user-123",
		Username:     "ada",
		Email:        "ada@x.io",
		PasswordHash: hashForTest("SecurePass123"),
		RefreshToken: "some-refresh-token",
	}

	repo.On("GetByID", ctx, "user-123").Return(existing, nil)

	user, err := svc.GetCurrentUser(ctx, "user-123")

	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)
	assert.Empty(t, user.PasswordHash)
	assert.Empty(t, user.RefreshToken)

	// The stored record keeps its secrets.
	assert.NotEmpty(t, existing.PasswordHash)
	assert.NotEmpty(t, existing.RefreshToken)
}

func TestGetCurrentUser_NotFound(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	repo.On("GetByID", ctx, "nonexistent").Return(nil, apperrors.NotFound("user", "nonexistent"))

	user, err := svc.GetCurrentUser(ctx, "nonexistent")

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// --- ChangePassword Tests ---

func TestChangePassword_Success(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	existing := &domain.User{
		ID:           "user-123",
		PasswordHash: hashForTest("OldPass123"),
	}

	repo.On("GetByID", ctx, "user-123").Return(existing, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	repo.On("ClearRefreshToken", ctx, "user-123").Return(nil)

	err := svc.ChangePassword(ctx, "user-123", "OldPass123", "NewPass456")

	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash), []byte("NewPass456")))
	repo.AssertExpectations(t)
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})
	ctx := context.Background()

	existing := &domain.User{
		ID:           "user-123",
		PasswordHash: hashForTest("OldPass123"),
	}

	repo.On("GetByID", ctx, "user-123").Return(existing, nil)

	err := svc.ChangePassword(ctx, "user-123", "WrongPass", "NewPass456")

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestChangePassword_EmptyNew(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})

	err := svc.ChangePassword(context.Background(), "user-123", "OldPass123", "  ")

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Image Update Tests ---

func TestUpdateAvatar_Success(t *testing.T) {
	repo := new(mockUserRepository)
	store := &stubStorage{}
	svc := newTestService(repo, store)
	ctx := context.Background()

	existing := &domain.User{ID: "user-123", AvatarURL: "https://cdn.test/avatars/user-123/old"}
	repo.On("GetByID", ctx, "user-123").Return(existing, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*domain.User")).Return(nil)

	user, err := svc.UpdateAvatar(ctx, "user-123", avatarUpload())

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(user.AvatarURL, "https://cdn.test/avatars/user-123/"))
	assert.NotEqual(t, "https://cdn.test/avatars/user-123/old", user.AvatarURL)
	repo.AssertExpectations(t)
}

func TestUpdateCoverImage_UploadFails(t *testing.T) {
	repo := new(mockUserRepository)
	store := &stubStorage{failPrefix: "covers/"}
	svc := newTestService(repo, store)
	ctx := context.Background()

	existing := &domain.User{ID: "user-123"}
	repo.On("GetByID", ctx, "user-123").Return(existing, nil)

	user, err := svc.UpdateCoverImage(ctx, "user-123", coverUpload())

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateAvatar_MissingFile(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, &stubStorage{})

	user, err := svc.UpdateAvatar(context.Background(), "user-123", nil)

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
