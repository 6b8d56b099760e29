package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hskprep/hsk-backend/internal/config"
	"github.com/hskprep/hsk-backend/internal/handler"
	"github.com/hskprep/hsk-backend/internal/middleware"
	"github.com/hskprep/hsk-backend/internal/response"
	"github.com/hskprep/hsk-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Exam    *handler.ExamHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
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

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		auth.POST("/logout", middleware.RequireUserJWT(authService), handlers.Auth.Logout)
	}

	// ─── 2. Learner Group (JWT + Single Login) ─────────────────────────
	userAPI := router.Group("/api/v1")
	userAPI.Use(middleware.RequireUserJWT(authService))
	{
		userAPI.GET("/me/profile", handlers.Auth.Profile)

		userAPI.GET("/exams", handlers.Exam.List)
		userAPI.GET("/exams/:exam_id", handlers.Exam.Get)
		userAPI.GET("/exams/:exam_id/eligibility", handlers.Exam.Eligibility)
		userAPI.GET("/exams/:exam_id/paper", handlers.Exam.Paper)

		userAPI.POST("/exams/:exam_id/sessions", handlers.Session.Start)
		userAPI.GET("/sessions", handlers.Session.History)
		userAPI.GET("/sessions/:session_id/question", handlers.Session.CurrentQuestion)
		userAPI.POST("/sessions/:session_id/answer", handlers.Session.SubmitAnswer)
		userAPI.POST("/sessions/:session_id/navigate", handlers.Session.Navigate)
		userAPI.POST("/sessions/:session_id/complete", handlers.Session.Complete)
		userAPI.GET("/sessions/:session_id/result", handlers.Session.Result)
		userAPI.GET("/sessions/:session_id/time", handlers.Session.TimeRemaining)
	}

	// ─── 3. WebSocket Group (Learner WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireUserWSAuth(authService))
	{
		ws.GET("/sessions/:session_id/clock", handlers.WS.SessionClockStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.POST("/exams", handlers.Exam.Create)
		adminAPI.PATCH("/exams/:exam_id", handlers.Exam.Update)
		adminAPI.GET("/exams/:exam_id/stats", handlers.Exam.Stats)
		adminAPI.POST("/exams/:exam_id/refresh-cache", handlers.Exam.RefreshCache)
	}

	return router
}
