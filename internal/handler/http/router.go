package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/VideoTubeGo/pkg/health"
	"github.com/utafrali/VideoTubeGo/pkg/middleware"
	"github.com/utafrali/VideoTubeGo/internal/auth"
	"github.com/utafrali/VideoTubeGo/internal/service"
)

// NewRouter creates a chi router with all user service routes registered.
func NewRouter(
	userService *service.UserService,
	jwtManager *auth.JWTManager,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
	secureCookie bool,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("user"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Token validator that bridges to our internal JWTManager. Only access
	// tokens pass; a refresh token on an authenticated route is rejected.
	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := jwtManager.VerifyClass(token, auth.ClassAccess)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{UserID: claims.Subject}, nil
	}

	authHandler := NewAuthHandler(userService, jwtManager, secureCookie, logger)
	userHandler := NewUserHandler(userService, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		// Registration is multipart/form-data, so no JSON enforcement here.
		r.Post("/register", authHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Post("/login", authHandler.Login)
			r.Post("/refresh-token", authHandler.RefreshToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(middleware.Auth(tokenValidator))

			r.Post("/logout", authHandler.Logout)
			r.Post("/change-password", authHandler.ChangePassword)
		})
	})

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(middleware.Auth(tokenValidator))

		r.Get("/me", userHandler.GetCurrentUser)
		r.Patch("/me/avatar", userHandler.UpdateAvatar)
		r.Patch("/me/cover-image", userHandler.UpdateCoverImage)
	})

	return r
}
