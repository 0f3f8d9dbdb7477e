package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"fbscrape/internal/config"
	"fbscrape/internal/openrouter"
	"fbscrape/internal/utils"
)

func main() {
	var (
		configFile = flag.String("config", "configs/config.yaml", "Configuration file path")
		model      = flag.String("model", "", "Model to test (overrides openrouter.model)")
		listModels = flag.Bool("models", false, "Also list the models available to the key")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *model != "" {
		cfg.OpenRouter.Model = *model
	}

	logger := utils.NewLogger(cfg.Logging)
	client := openrouter.NewClient(cfg.OpenRouter, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.OpenRouter.Timeout+10*time.Second)
	defer cancel()

	fmt.Printf("Testing OpenRouter at %s with model %s\n", cfg.OpenRouter.BaseURL, cfg.OpenRouter.Model)
	reply, err := client.TestConnection(ctx)
	if errors.Is(err, openrouter.ErrNoAPIKey) {
		fmt.Fprintln(os.Stderr, "❌ OPENROUTER_API_KEY is not set. Add it to .env or the environment.")
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Connection failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Connection OK")
	fmt.Printf("   Reply: %q\n", reply.Content)
	fmt.Printf("   Model: %s\n", reply.Model)
	fmt.Printf("   Tokens used: %d\n", reply.TotalTokens)
	fmt.Printf("   Latency: %s\n", reply.Latency.Round(time.Millisecond))

	if !*listModels {
		return
	}
	models, err := client.ListModels(ctx)
	if err != nil {
		logger.Errorf("Failed to list models: %v", err)
		os.Exit(1)
	}
	fmt.Printf("\n%d models available:\n", len(models))
	for _, m := range models {
		fmt.Printf("  %s\n", m)
	}
}
