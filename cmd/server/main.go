package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"classroom-sync-service/internal/api"
	"classroom-sync-service/internal/auth"
	"classroom-sync-service/internal/config"
	"classroom-sync-service/internal/logger"
	"classroom-sync-service/internal/report"
	"classroom-sync-service/internal/store"
	"classroom-sync-service/internal/sync"
)

func main() {
	// Load Config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting Classroom Sync Service")

	// Init Store
	st, err := store.NewStore(cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to init store", zap.Error(err))
	}
	defer st.Close()

	// Credential store, sync manager, report service
	credStore := auth.NewStore(cfg.OAuth)
	syncManager := sync.NewManager(cfg, credStore, st)
	narrator := report.NewChatNarrator(cfg.Narrative)
	reportService := report.NewService(cfg.Narrative, st, narrator)

	// Scheduler (optional, config-gated)
	scheduler := sync.NewScheduler(cfg.Scheduler, syncManager)
	scheduler.Start()

	// Init API
	handler := api.NewHandler(cfg.Server, syncManager, reportService, credStore, st)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}
