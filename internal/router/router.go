package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quizport/quizport-backend/internal/config"
	"github.com/quizport/quizport-backend/internal/handler"
	"github.com/quizport/quizport-backend/internal/middleware"
	"github.com/quizport/quizport-backend/internal/response"
	"github.com/quizport/quizport-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth   *handler.AuthHandler
	Portal *handler.PortalHandler
	WS     *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the unauthenticated beacon endpoint. Beacons carry
	// only a single-use token, so a tight per-IP budget is the brake
	// against blind token guessing.
	beaconLimiter := middleware.NewRateLimiter(10, time.Minute)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", handlers.Auth.StudentLogin)

		auth.POST("/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetProfile)
	}

	// ─── 2. Portal Group (JWT + Single Device) ─────────────────────────
	portalAPI := router.Group("/api/v1/portal")
	portalAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		middleware.NoStore(),
	)
	{
		portalAPI.POST("/tests/:test_id/start", handlers.Portal.StartAttempt)
		portalAPI.GET("/tests/:test_id/paper", handlers.Portal.GetTestPaper)
		portalAPI.GET("/tests/:test_id/state", handlers.Portal.GetAttemptState)
		portalAPI.POST("/tests/:test_id/submit", handlers.Portal.SubmitTest)
	}

	// ─── 3. Beacon (token in body, rate limited) ───────────────────────
	router.POST("/api/v1/portal/attempts/beacon",
		beaconLimiter.Middleware(),
		handlers.Portal.SubmitBeacon,
	)

	// ─── 4. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/portal/tests/:test_id/stream", handlers.WS.ProctorStream)
	}

	return router
}
