package api

import (
	authUsecase "dmarcview-backend/internal/auth/usecase"
	reportDelivery "dmarcview-backend/internal/report/delivery"
	syncDelivery "dmarcview-backend/internal/sync/delivery"
	"dmarcview-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase   authUsecase.AuthUsecase
	syncHandler   *syncDelivery.SyncHandler
	reportHandler *reportDelivery.ReportHandler
	config        *config.Config
}

func NewHandler(authUc authUsecase.AuthUsecase, syncHandler *syncDelivery.SyncHandler, reportHandler *reportDelivery.ReportHandler, cfg *config.Config) *Handler {
	return &Handler{
		authUsecase:   authUc,
		syncHandler:   syncHandler,
		reportHandler: reportHandler,
		config:        cfg,
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.syncHandler, h.reportHandler)

	return r.Run(addr)
}
