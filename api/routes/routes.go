package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/cieplik206/dokumenty/api/handlers"
	"github.com/cieplik206/dokumenty/api/middleware"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// SetupRoutes registers every endpoint on r.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger, origins ...string) {
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(origins...))

	r.GET("/healthz", h.Health.Healthz)

	v1 := r.Group("/api/v1")

	// Media links end up in <img> tags, which cannot send identity headers,
	// so the link itself carries a signature.
	v1.GET("/media/:id", h.Media.Show)

	in := v1.Group("/intake", middleware.Identity())
	{
		in.POST("", h.Intake.Upload)
		in.GET("", h.Intake.Index)
		in.DELETE("", h.Intake.DestroyBulk)
		in.POST("/stream", h.Intake.Stream)
		in.POST("/:id/start", h.Intake.Start)
		in.POST("/:id/retry", h.Intake.Retry)
		in.POST("/:id/finalize", h.Intake.Finalize)
		in.DELETE("/:id", h.Intake.Destroy)
	}
}
