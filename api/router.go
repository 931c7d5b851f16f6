package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/api/handlers"
	"github.com/yourusername/hotsync-go/api/middleware"
	"github.com/yourusername/hotsync-go/internal/app"
	"github.com/yourusername/hotsync-go/pkg/logger"
)

// Services are the application components the HTTP API exposes
type Services struct {
	Packages     *app.PackageService
	Orchestrator *app.HotUpdateOrchestrator
	Janitor      *app.CacheJanitor
	Loader       *app.ContentLoader
	Logger       *zap.Logger
	MultiLogger  *logger.MultiLogger // optional, enables the log endpoints
}

// SetupRouter sets up the HTTP router
func SetupRouter(s Services) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log, s.MultiLogger))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(s.Packages, s.Orchestrator)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		packageHandler := handlers.NewPackageHandler(s.Packages, log)
		cacheHandler := handlers.NewCacheHandler(s.Janitor, log)
		packages := v1.Group("/packages")
		{
			packages.GET("", packageHandler.ListPackages)
			packages.GET("/:name", packageHandler.GetPackage)
			packages.POST("/:name/init", packageHandler.InitPackage)
			packages.POST("/:name/version", packageHandler.RequestVersion)
			packages.GET("/:name/manifest", packageHandler.GetManifest)
			packages.POST("/:name/manifest", packageHandler.UpdateManifest)
			packages.GET("/:name/download-size", packageHandler.DownloadSize)
			packages.GET("/:name/cache", cacheHandler.GetInfo)
			packages.DELETE("/:name/cache", cacheHandler.ClearAll)
			packages.POST("/:name/cache/clear-unused", cacheHandler.ClearUnused)
		}

		downloadHandler := handlers.NewDownloadHandler(s.Packages, log)
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", downloadHandler.CreateTask)
			tasks.GET("", downloadHandler.ListTasks)
			tasks.GET("/:id", downloadHandler.GetTask)
			tasks.POST("/:id/begin", downloadHandler.BeginTask)
			tasks.POST("/:id/pause", downloadHandler.PauseTask)
			tasks.POST("/:id/resume", downloadHandler.ResumeTask)
			tasks.POST("/:id/cancel", downloadHandler.CancelTask)
		}

		assetHandler := handlers.NewAssetHandler(s.Loader, log)
		v1.GET("/assets/exists", assetHandler.Exists)
		v1.GET("/assets/load", assetHandler.Load)

		updateHandler := handlers.NewUpdateHandler(s.Orchestrator, log)
		v1.POST("/update", updateHandler.Run)
		v1.GET("/update", updateHandler.Status)

		eventHandler := handlers.NewEventWebSocketHandler(s.Packages.Events(), log)
		v1.GET("/events", eventHandler.HandleWebSocket)

		if s.MultiLogger != nil {
			logsDir := s.MultiLogger.GetLogsDir()
			logHandler := handlers.NewLogHandler(logsDir)
			logStream := handlers.NewLogWebSocketHandler(logsDir, log)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/stream", logStream.HandleWebSocket)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	return router
}
