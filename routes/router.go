package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parley-forum/parley/config"
	"github.com/parley-forum/parley/controllers"
	"github.com/parley-forum/parley/middleware"
	"github.com/parley-forum/parley/services"
	"github.com/parley-forum/parley/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, svc *services.Service) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinLogPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Static("/uploads", "./uploads")

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(db)
	threadController := controllers.NewThreadController(svc)
	postController := controllers.NewPostController(svc)
	voteController := controllers.NewVoteController(svc)
	moderationController := controllers.NewModerationController(svc)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(db), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(db), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(db), authController.UpdateProfile)

	// Thread and post URLs follow the /comments/{category}s/{id}/ shape the
	// site links with; the category segment arrives in plural form.
	comments := api.Group("/comments")
	comments.Use(middleware.OptionalAuth(db))
	comments.GET("/:category", threadController.ListThreads)
	comments.GET("/:category/:id", postController.ShowThread)

	authed := comments.Group("")
	authed.Use(middleware.AuthRequired(db), middleware.RateLimitMiddleware())
	authed.POST("/:category", postController.CreateThread)
	authed.POST("/:category/:id/posts/:postId/reply", postController.Reply)
	authed.PUT("/:category/:id/posts/:postId", postController.EditPost)
	authed.POST("/:category/:id/posts/:postId/vote/:mode", voteController.Vote)

	staff := comments.Group("")
	staff.Use(middleware.AuthRequired(db), middleware.ModeratorRequired())
	staff.POST("/:category/:id/close", threadController.CloseThread)
	staff.POST("/:category/:id/reopen", threadController.ReopenThread)
	staff.POST("/:category/:id/posts/:postId/approve", moderationController.ToggleApproved)
	staff.POST("/:category/:id/posts/:postId/spam", moderationController.ToggleSpam)
	staff.POST("/:category/:id/posts/:postId/delete", moderationController.ToggleDeleted)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(db), middleware.RateLimitMiddleware())
	protected.POST("/upload", postController.Upload)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
