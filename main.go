package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/xuyicheng33/IPC-QUERY/config"
	"github.com/xuyicheng33/IPC-QUERY/handler"
	"github.com/xuyicheng33/IPC-QUERY/middleware"
	"github.com/xuyicheng33/IPC-QUERY/pkg/logger"
	"github.com/xuyicheng33/IPC-QUERY/pkg/metrics"
	"github.com/xuyicheng33/IPC-QUERY/service"
	"github.com/xuyicheng33/IPC-QUERY/store"
)

func main() {
	// Load .env if present, for IPC_JWT_SECRET and friends
	_ = godotenv.Load()

	// Load configuration
	cfgPath := os.Getenv("IPC_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully", "path", cfgPath)

	// Ensure data directories exist before anything touches them
	for _, dir := range []string{filepath.Dir(cfg.Database.Path), cfg.PDF.RootDir, cfg.PDF.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// Open the catalog store (runs schema migration)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open catalog store", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Initialize services
	m := metrics.New()
	importer := service.NewImporter(cfg.Importer, cfg.PDF, st, m)
	importer.Start()
	scanner := service.NewScanner(cfg.Scanner, cfg.PDF, st, m)
	scanner.Start()
	renderer := service.NewRenderer(cfg.Render, cfg.PDF, m)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	searchHandler := handler.NewSearchHandler(st, cfg.Search, m)
	docsHandler := handler.NewDocsHandler(st, importer)
	jobsHandler := handler.NewJobsHandler(importer, scanner)
	renderHandler := handler.NewRenderHandler(renderer)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(middleware.Metrics(m))                  // Request counters and latency
	router.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
		api.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// Page image endpoint lives outside /api
	router.GET("/render", middleware.AuthMiddleware(&cfg.Auth), renderHandler.Render)

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		protected.GET("/search", searchHandler.Search)
		protected.GET("/part/:id", searchHandler.Part)

		protected.GET("/docs", docsHandler.List)
		protected.GET("/docs/tree", docsHandler.Tree)
		protected.DELETE("/docs", docsHandler.Delete)
		protected.POST("/docs/rename", docsHandler.Rename)
		protected.POST("/docs/move", docsHandler.Move)
		protected.POST("/folders", docsHandler.CreateFolder)
		protected.POST("/folders/rename", docsHandler.RenameFolder)
		protected.DELETE("/folders", docsHandler.DeleteFolder)

		protected.POST("/import", jobsHandler.Upload)
		protected.GET("/import/jobs", jobsHandler.ImportJobs)
		protected.GET("/import/jobs/:id", jobsHandler.ImportJob)

		protected.POST("/scan", jobsHandler.Scan)
		protected.GET("/scan", jobsHandler.ScanJobs)
		protected.GET("/scan/:id", jobsHandler.ScanJob)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Let queued import and scan jobs drain before closing the store
	if err := importer.Stop(30 * time.Second); err != nil {
		slog.Warn("importer shutdown", "error", err)
	}
	if err := scanner.Stop(30 * time.Second); err != nil {
		slog.Warn("scanner shutdown", "error", err)
	}

	slog.Info("server exited gracefully")
}
