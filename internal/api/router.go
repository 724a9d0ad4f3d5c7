package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/sprintreport/internal/api/handler"
	"github.com/timmy/sprintreport/internal/api/middleware"
	"github.com/timmy/sprintreport/internal/config"
	"github.com/timmy/sprintreport/internal/service"
)

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - reports: report service behind the endpoints.
//   - cfg: server settings (gin mode and CORS).
//
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(reports handler.ReportService, cfg config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(reports)
	reportHandler := handler.NewReportHandler(reports)

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sr := r.Group(service.APIPrefix)
	{
		sr.POST("/generate", reportHandler.Generate)
		sr.GET("/jobs", reportHandler.List)

		sr.GET("/:job_id/status", reportHandler.Status)
		sr.GET("/:job_id/preview", reportHandler.Preview)
		sr.GET("/:job_id/approve-form", reportHandler.ApprovalForm)
		sr.POST("/:job_id/approve", reportHandler.Approve)
		sr.GET("/:job_id/download", reportHandler.Download)
	}

	return r
}
