package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"fbscrape/internal/config"
	"fbscrape/internal/database"
	"fbscrape/internal/monitoring"
	"fbscrape/internal/utils"
)

func main() {
	var (
		configFile  = flag.String("config", "configs/config.yaml", "Configuration file path")
		metricsFile = flag.String("metrics", "", "Metrics file path (overrides scraper.metrics_file)")
		report      = flag.Bool("report", false, "Generate and display monitoring report")
		alerts      = flag.Bool("alerts", false, "Check and display alerts")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *metricsFile != "" {
		cfg.Scraper.MetricsFile = *metricsFile
	}

	logger := utils.NewLogger(cfg.Logging)
	monitor := monitoring.NewMonitor(logger, cfg.Scraper.MetricsFile)

	if *report {
		fmt.Println(monitor.GenerateReport())
		if cfg.Database.Enabled() {
			printDatabaseStats(cfg.Database, monitor)
		}
		return
	}

	if *alerts {
		alertManager := monitoring.NewAlertManager(monitor, logger)
		active := alertManager.CheckAlerts()
		if len(active) == 0 {
			fmt.Println("✅ No alerts - system is healthy")
			return
		}
		fmt.Println("⚠️  Active Alerts:")
		for _, alert := range active {
			fmt.Printf("  - %s\n", alert)
		}
		alertManager.SendAlerts(active)
		return
	}

	health := monitor.GetHealthStatus()
	fmt.Println("Scraper Status:")
	fmt.Printf("- Status: %s\n", health["status"])
	fmt.Printf("- Last Run: %s\n", health["last_run"])
	fmt.Printf("- Total Runs: %v\n", health["total_runs"])
	fmt.Printf("- Error Rate: %s\n", health["error_rate"])
	fmt.Printf("- Average Runtime: %s\n", health["average_runtime"])

	if warning, exists := health["warning"]; exists {
		fmt.Printf("- Warning: %s\n", warning)
	}
}

func printDatabaseStats(cfg config.DatabaseConfig, monitor *monitoring.Monitor) {
	logger := utils.SetupLogger(false)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		return
	}
	defer db.Close()

	stats, err := db.GetScrapingStats(ctx)
	if err != nil {
		logger.Errorf("Failed to get database stats: %v", err)
		return
	}
	fmt.Println("\nDatabase Statistics:")
	fmt.Printf("- Total Posts: %d\n", stats.TotalPosts)
	fmt.Printf("- Total Comments: %d\n", stats.TotalComments)
	fmt.Printf("- Posts in the last 24h: %d\n", stats.RecentPosts)
	fmt.Printf("- Average Likes: %.2f\n", stats.AvgLikes)
	fmt.Printf("- Groups Scraped: %d\n", stats.Groups)
	fmt.Printf("- Last Scraped: %s\n", stats.LastScraped)

	kinds := make([]string, 0, len(stats.PostTypes))
	for t := range stats.PostTypes {
		kinds = append(kinds, t)
	}
	sort.Strings(kinds)
	for _, t := range kinds {
		fmt.Printf("  %s: %d\n", t, stats.PostTypes[t])
	}

	authors, err := db.GetTopAuthors(ctx, 5)
	if err != nil {
		logger.Errorf("Failed to get top authors: %v", err)
		return
	}
	if len(authors) > 0 {
		fmt.Println("\nTop Authors:")
		for _, a := range authors {
			fmt.Printf("- %s: %d posts, %.1f average likes\n", a.Name, a.PostCount, a.AvgLikes)
		}
	}
}
