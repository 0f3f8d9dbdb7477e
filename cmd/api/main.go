package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fbscrape/internal/api"
	"fbscrape/internal/config"
	"fbscrape/internal/database"
	"fbscrape/internal/utils"
)

func main() {
	var (
		configFile = flag.String("config", "configs/config.yaml", "Configuration file path")
		port       = flag.String("port", "", "API server port (overrides api.port)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.API.Port = *port
	}
	if !cfg.Database.Enabled() {
		cfg.Database.Driver = database.DriverSQLite
	}

	logger := utils.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	server := api.NewServer(db, logger, cfg.API.Port, promhttp.Handler())

	logger.Info("Available endpoints:")
	logger.Info("  GET  /api/posts - List posts with pagination")
	logger.Info("  GET  /api/posts/group/{id} - Get posts by group")
	logger.Info("  GET  /api/posts/{id}/comments - Get the comments of a post")
	logger.Info("  GET  /api/stats - Get scraping statistics")
	logger.Info("  GET  /api/export/csv - Export posts to CSV")
	logger.Info("  GET  /api/health - Health check")
	logger.Info("  GET  /metrics - Prometheus metrics")
	logger.Info("  GET  /dashboard - Web dashboard")

	if err := server.Start(ctx); err != nil {
		logger.Fatalf("API server failed: %v", err)
	}
}
