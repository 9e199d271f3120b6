package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timmy/textfleet/internal/api/handler"
	"github.com/timmy/textfleet/internal/api/middleware"
	"github.com/timmy/textfleet/internal/config"
	"github.com/timmy/textfleet/internal/service"
)

// SetupRouter configures the Gin router of the coordinator status API.
// Parameters:
//   - coord: running coordinator whose registry and shutdown latch are reported.
//   - history: finished-job store, nil when history is disabled.
//   - cfg: server mode and CORS settings.
//
// Returns:
//   - *gin.Engine: router with every route registered.
func SetupRouter(coord *service.Coordinator, history handler.HistoryReader, cfg config.ServerConfig) *gin.Engine {
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
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler()
	jobHandler := handler.NewJobHandler(coord.Registry(), coord.Shutdown())
	historyHandler := handler.NewHistoryHandler(history)

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", jobHandler.Status)

		// Active jobs
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.GET("/jobs/:id", jobHandler.GetJob)

		// Finished jobs
		v1.GET("/history", historyHandler.List)
		v1.GET("/history/:id", historyHandler.Get)
	}

	return r
}
