package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/api"
	"github.com/yourusername/hotsync-go/api/handlers"
	"github.com/yourusername/hotsync-go/internal/app"
	"github.com/yourusername/hotsync-go/internal/domain"
	"github.com/yourusername/hotsync-go/internal/infrastructure"
	"github.com/yourusername/hotsync-go/pkg/logger"
)

var (
	configPath = flag.String("config", "", "Path to config file (default: ./configs, ~/.hotsync, /etc/hotsync)")
	runUpdate  = flag.Bool("update", false, "Run one hot update pass on startup")
)

func main() {
	flag.Parse()

	if err := runServer(); err != nil {
		logger.NewDefault().Fatal("Server failed", zap.Error(err))
	}
}

func runServer() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	profile, err := config.Profile()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// update, download and error categories, one file per day
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer multiLog.Close()

	log.Info("Starting hotsync server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("profile", profile.Name),
		zap.String("play_mode", string(profile.PlayMode)),
		zap.Int("packages", len(profile.Packages)))

	if err := createDirectories(config, profile); err != nil {
		return err
	}

	var index domain.CacheIndexRepository
	if profile.PlayMode == domain.PlayModeHostRemote {
		sqliteIndex, err := infrastructure.NewSQLiteCacheIndex(config.Storage.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open cache index: %w", err)
		}
		defer sqliteIndex.Close()
		index = sqliteIndex
	}

	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	backends := infrastructure.NewBackendFactory(index, &http.Client{Timeout: 5 * time.Minute}, log)
	hub := app.NewEventBus()

	service, err := app.NewPackageService(config, app.NewPackageRegistry(), backends, hub, notifier, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := service.Close(); err != nil {
			log.Error("Failed to release packages", zap.Error(err))
		}
	}()

	unsubscribe := hub.Subscribe(downloadEventLogger(multiLog))
	defer unsubscribe()

	orchestrator := app.NewHotUpdateOrchestrator(service, notifier, multiLog.Tee(log, logger.CategoryUpdate))
	janitor := app.NewCacheJanitor(service, log)
	loader := app.NewContentLoader(service, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if profile.AutoInitOnStartup {
		for _, name := range service.Registry().Names() {
			if err := service.InitPackage(ctx, name); err != nil {
				log.Warn("Package initialization failed", zap.String("package", name), zap.Error(err))
				multiLog.LogAppError("Package initialization failed", zap.String("package", name), zap.Error(err))
			}
		}
	}

	if *runUpdate {
		go func() {
			if err := orchestrator.Run(ctx, app.RunOptions{}); err != nil {
				log.Error("Startup update failed", zap.Error(err))
			}
		}()
	}

	var scheduler *app.UpdateScheduler
	if config.Scheduler.Enabled {
		scheduler = app.NewUpdateScheduler(orchestrator, &config.Scheduler, multiLog)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start update scheduler: %w", err)
		}
	}

	router := api.SetupRouter(api.Services{
		Packages:     service,
		Orchestrator: orchestrator,
		Janitor:      janitor,
		Loader:       loader,
		Logger:       log,
		MultiLogger:  multiLog,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
		return err
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if scheduler != nil && scheduler.IsRunning() {
		if err := scheduler.Stop(); err != nil {
			log.Error("Error stopping update scheduler", zap.Error(err))
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}

// downloadEventLogger writes task state changes and failures to the download category
func downloadEventLogger(multiLog *logger.MultiLogger) app.EventHandler {
	return func(e app.Event) {
		if e.TaskID == "" {
			return
		}
		fields := []zap.Field{
			zap.String("task_id", e.TaskID),
			zap.String("package", e.Package),
		}
		switch e.Type {
		case app.EventState:
			multiLog.LogDownloadEvent("task_"+e.State, fields...)
		case app.EventError:
			fields = append(fields, zap.String("file", e.File), zap.String("error", e.Message))
			multiLog.LogDownloadEvent("file_failed", fields...)
		case app.EventComplete:
			if e.Progress != nil {
				fields = append(fields,
					zap.Int("files", e.Progress.TotalCount),
					zap.Int64("bytes", e.Progress.TotalBytes))
			}
			multiLog.LogDownloadEvent("task_complete", fields...)
		}
	}
}

func createDirectories(config *domain.Config, profile *domain.ProfileConfig) error {
	dirs := []string{config.Logging.LogsDir}
	if profile.PlayMode == domain.PlayModeHostRemote {
		dirs = append(dirs, config.Storage.CacheDir, filepath.Dir(config.Storage.DatabasePath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
