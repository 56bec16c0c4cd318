package api

import (
	"net/http"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/metrics"
	"alcyxob/notes-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Auth        service.AuthService
	Documents   service.DocumentService
	Versions    service.VersionService
	Views       service.ViewService
	DeadLetters service.DeadLetterService
}

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	maxUploadBytes int64,
	svc Services,
	log logrus.FieldLogger,
) {
	authHandler := NewAuthHandler(svc.Auth, log)
	documentHandler := NewDocumentHandler(svc.Documents, maxUploadBytes, log)
	versionHandler := NewVersionHandler(svc.Versions, maxUploadBytes, log)
	viewHandler := NewViewHandler(svc.Views, log)
	adminHandler := NewAdminHandler(svc.DeadLetters, log)

	authMiddleware := AuthMiddleware(jwtSecret)
	adminOnly := RoleMiddleware(domain.RoleAdmin)

	router.Use(RequestLogger(log), metrics.GinMiddleware())

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			caller, err := getIdentityFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			c.JSON(http.StatusOK, gin.H{"userId": caller.UserID, "username": caller.Username, "role": caller.Role})
		})

		// --- Documents ---
		docs := protected.Group("/documents")
		{
			docs.POST("", documentHandler.Upload)
			docs.GET("/:id", documentHandler.Get)
			docs.DELETE("/:id", documentHandler.Delete)
			docs.POST("/:id/upload", documentHandler.UploadWithID)
			docs.GET("/:id/view", viewHandler.View)
			docs.POST("/:id/favorite", documentHandler.AddFavorite)
			docs.DELETE("/:id/favorite", documentHandler.RemoveFavorite)

			// --- Versions ---
			docs.GET("/:id/versions", versionHandler.List)
			docs.POST("/:id/versions", versionHandler.Submit)

			// --- Admin actions on a document ---
			docs.GET("/:id/download", adminOnly, documentHandler.Download)
			docs.PUT("/:id/review", adminOnly, documentHandler.Review)
		}

		protected.PUT("/versions/:id/promote", adminOnly, versionHandler.Promote)

		admin := protected.Group("/admin")
		admin.Use(adminOnly)
		{
			admin.GET("/documents/pending", documentHandler.ListPending)
			admin.GET("/dead-letters", adminHandler.ListDeadLetters)
			admin.POST("/dead-letters/:id/replay", adminHandler.ReplayDeadLetter)
		}
	}
}
