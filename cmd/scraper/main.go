package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fbscrape/internal/auth"
	"fbscrape/internal/browser"
	"fbscrape/internal/cache"
	"fbscrape/internal/config"
	"fbscrape/internal/database"
	"fbscrape/internal/monitoring"
	"fbscrape/internal/output"
	"fbscrape/internal/scheduler"
	"fbscrape/internal/scraper"
	"fbscrape/internal/utils"
)

func main() {
	var (
		configFile     = flag.String("config", "configs/config.yaml", "Configuration file path")
		targetURL      = flag.String("url", "", "Facebook group, page or post URL")
		maxPosts       = flag.Int("max-posts", 0, "Maximum posts to collect")
		resume         = flag.Bool("resume", false, "Resume from the latest checkpoint for the URL")
		engine         = flag.String("engine", "", "Browser engine: chromedp, selenium or auto")
		headless       = flag.Bool("headless", true, "Run the browser without a window")
		waitLogin      = flag.Bool("wait-login", false, "Pause for a manual login when cookies are not accepted")
		schedule       = flag.String("schedule", "", "Cron schedule for repeated runs, e.g. \"0 */6 * * *\"")
		metricsAddr    = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
		extractCookies = flag.Bool("extract-cookies", false, "Show instructions for extracting cookies")
		groupsFile     = flag.String("groups", "", "YAML file listing the groups to scrape")
	)
	flag.Parse()

	if *extractCookies {
		fmt.Println(auth.ExtractCookiesInstructions())
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.Scraper.GroupURL = *targetURL
		case "max-posts":
			cfg.Scraper.MaxPosts = *maxPosts
		case "resume":
			cfg.Scraper.Resume = *resume
		case "engine":
			cfg.Scraper.Engine = *engine
		case "headless":
			cfg.Scraper.Headless = *headless
		case "wait-login":
			cfg.Scraper.WaitLogin = *waitLogin
		case "schedule":
			cfg.Scraper.Schedule = *schedule
		}
	})

	logger := utils.NewLogger(cfg.Logging)
	prompt := newPrompter(os.Stdin, os.Stdout)

	var targets []string
	switch {
	case *groupsFile != "":
		groups, err := config.LoadGroups(*groupsFile)
		if err != nil {
			logger.Fatalf("Failed to load groups: %v", err)
		}
		for _, g := range groups {
			targets = append(targets, g.URL)
		}
	case cfg.Scraper.GroupURL != "":
		targets = []string{cfg.Scraper.GroupURL}
	default:
		u, err := prompt.TargetURL()
		if err != nil {
			logger.Fatalf("No URL to scrape: %v", err)
		}
		cfg.Scraper.GroupURL = u
		if !isFlagSet("max-posts") {
			cfg.Scraper.MaxPosts = prompt.MaxPosts(cfg.Scraper.MaxPosts)
		}
		targets = []string{u}
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &runner{
		cfg:     cfg,
		logger:  logger,
		prompt:  prompt,
		writer:  output.NewWriter(cfg.Scraper.OutputDir, logger),
		monitor: monitoring.NewMonitor(logger, cfg.Scraper.MetricsFile),
		perf:    monitoring.NewPerformanceMonitor(logger),
		cache:   cache.New(cfg.Scraper.CacheSize, cfg.Scraper.CacheTTL),
		targets: targets,
	}

	if cfg.Database.Enabled() {
		db, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		r.store = db
	}

	if *metricsAddr != "" {
		go serveMetrics(ctx, *metricsAddr, r.perf.Handler(), logger)
	}

	if cfg.Scraper.Schedule == "" {
		if err := r.runAll(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Warn("Scraping interrupted by user; partial results were saved")
				return
			}
			logger.Errorf("Scraping failed: %v", err)
			os.Exit(1)
		}
		logger.Info("Scraping completed successfully")
		return
	}

	sched := scheduler.New(logger, 0)
	if err := sched.AddJob("scrape", cfg.Scraper.Schedule, r.runAll); err != nil {
		logger.Fatalf("Failed to schedule scraping: %v", err)
	}
	sched.Start()
	logger.Infof("Scheduled scraping of %d target(s) with %q; press Ctrl+C to stop", len(targets), cfg.Scraper.Schedule)

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Warnf("Scheduler did not stop cleanly: %v", err)
	}
}

type runner struct {
	cfg     *config.Config
	logger  *logrus.Logger
	prompt  *prompter
	writer  *output.Writer
	monitor *monitoring.Monitor
	perf    *monitoring.PerformanceMonitor
	cache   *cache.PostCache
	store   scraper.Store
	targets []string
}

// runAll scrapes every target in turn. A failed target does not stop the
// others; the first error is returned.
func (r *runner) runAll(ctx context.Context) error {
	var firstErr error
	for i, target := range r.targets {
		if i > 0 {
			if err := browser.Sleep(ctx, r.cfg.Facebook.RateLimit.DelayBetweenRequests); err != nil {
				return err
			}
		}
		err := r.runOne(ctx, target)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return err
		}
		r.logger.Errorf("Failed to scrape %s: %v", target, err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *runner) runOne(ctx context.Context, target string) error {
	// the browser must outlive a cancelled ctx so the run can save cookies
	driver, err := browser.New(context.WithoutCancel(ctx), r.browserOptions(), r.logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer driver.Close()

	sc := r.cfg.Scraper
	sc.GroupURL = target

	opts := []scraper.Option{
		scraper.WithLogger(r.logger),
		scraper.WithBaseURL(r.cfg.Facebook.BaseURL),
		scraper.WithPerformanceMonitor(r.perf),
		scraper.WithCache(r.cache),
		scraper.WithLoginPrompt(r.prompt.WaitForLogin),
		scraper.WithUser(currentUser()),
	}
	if r.store != nil {
		opts = append(opts, scraper.WithStore(r.store))
	}

	start := time.Now()
	r.perf.Reset()
	result, runErr := scraper.New(driver, sc, opts...).Run(ctx)
	if result == nil {
		r.monitor.RecordScrapingRun(target, 0, 0, time.Since(start), 1)
		return runErr
	}

	path, err := r.writer.Save(result)
	if err != nil {
		r.logger.Errorf("Failed to save results: %v", err)
	} else {
		fmt.Printf("Saved %d posts with %d comments to %s\n",
			result.Statistics.TotalPosts, result.Statistics.TotalComments, path)
	}

	failures := r.perf.Summary().Errors
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		failures++
	}
	r.monitor.RecordScrapingRun(target, len(result.Posts), result.Statistics.TotalComments, time.Since(start), failures)
	return runErr
}

func (r *runner) browserOptions() browser.Options {
	engine := r.cfg.Scraper.Engine
	if engine == "auto" {
		engine = ""
	}
	return browser.Options{
		Engine:               engine,
		Headless:             r.cfg.Scraper.Headless,
		UserAgent:            r.cfg.Facebook.Auth.UserAgent,
		WindowWidth:          r.cfg.Browser.WindowWidth,
		WindowHeight:         r.cfg.Browser.WindowHeight,
		PageLoadTimeout:      r.cfg.Scraper.PageLoadTimeout,
		NavigationsPerMinute: r.cfg.Facebook.RateLimit.RequestsPerMinute,
		ExecPath:             r.cfg.Browser.ExecPath,
		UserDataDir:          r.cfg.Browser.UserDataDir,
		DisableGPU:           r.cfg.Browser.DisableGPU,
		SeleniumBrowser:      r.cfg.Browser.SeleniumBrowser,
		SeleniumPort:         r.cfg.Browser.SeleniumPort,
		DriverPath:           r.cfg.Browser.DriverPath,
	}
}

func serveMetrics(ctx context.Context, addr string, h http.Handler, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Infof("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Metrics server failed: %v", err)
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}
