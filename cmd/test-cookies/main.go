package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"fbscrape/internal/auth"
	"fbscrape/internal/config"
	"fbscrape/internal/utils"
)

func main() {
	var (
		configFile  = flag.String("config", "configs/config.yaml", "Configuration file path")
		cookiesFile = flag.String("cookies", "", "Cookies file (overrides scraper.cookies_file)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *cookiesFile != "" {
		cfg.Scraper.CookiesFile = *cookiesFile
	}

	logger := utils.SetupLogger(true)

	authManager, err := auth.NewAuthManager(cfg.Scraper.CookiesFile, cfg.Facebook.Auth.UserAgent, logger)
	if err != nil {
		log.Fatalf("Failed to create auth manager: %v", err)
	}
	authManager.SetBaseURL(cfg.Facebook.BaseURL)

	fmt.Println("Testing cookie loading...")
	if err := authManager.LoadCookies(); err != nil {
		fmt.Println(auth.ExtractCookiesInstructions())
		log.Fatalf("Failed to load cookies: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Facebook.Timeout+5*time.Second)
	defer cancel()

	fmt.Println("Testing authentication...")
	if err := authManager.ValidateAuth(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Authentication failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Cookies are valid and authentication successful!")
}
