package api

import (
	"net/http"

	"dmarcview-backend/internal/auth/delivery"
	authUsecase "dmarcview-backend/internal/auth/usecase"
	reportDelivery "dmarcview-backend/internal/report/delivery"
	syncDelivery "dmarcview-backend/internal/sync/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, syncHandler *syncDelivery.SyncHandler, reportHandler *reportDelivery.ReportHandler) {
	authHandler := delivery.NewAuthHandler(authUsecase)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/google", authHandler.GoogleSignIn)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", delivery.AuthMiddleware(authUsecase), authHandler.Me)
		}

		// OAuth callback is reached by browser redirect, so it cannot carry
		// a bearer token; the signed state identifies the user.
		api.GET("/sync/connect/:provider/callback", syncHandler.Callback)

		// Sync routes (protected)
		sync := api.Group("/sync")
		sync.Use(delivery.AuthMiddleware(authUsecase))
		{
			sync.GET("/configs", syncHandler.ListConfigs)
			sync.POST("/configs/imap", syncHandler.CreateImapConfig)
			sync.GET("/configs/:id", syncHandler.GetConfig)
			sync.PATCH("/configs/:id", syncHandler.UpdateConfig)
			sync.DELETE("/configs/:id", syncHandler.DeleteConfig)
			sync.POST("/configs/:id/run", syncHandler.TriggerSync)
			sync.GET("/configs/:id/runs", syncHandler.ListRuns)
			sync.GET("/configs/:id/deletions", syncHandler.ListAuditEntries)
			sync.POST("/configs/:id/upgrade-scope", syncHandler.UpgradeScope)
			sync.GET("/connect/:provider", syncHandler.Connect)
		}

		// Report routes (protected)
		reports := api.Group("/reports")
		reports.Use(delivery.AuthMiddleware(authUsecase))
		{
			reports.GET("", reportHandler.ListReports)
			reports.POST("/upload", reportHandler.UploadReport)
		}
	}
}
