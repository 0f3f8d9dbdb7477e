package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"fbscrape/internal/analyzer"
	"fbscrape/internal/auth"
	"fbscrape/internal/browser"
	"fbscrape/internal/config"
	"fbscrape/internal/selectors"
	"fbscrape/internal/utils"
)

type report struct {
	Source string                   `json:"source"`
	Feed   analyzer.FeedSelectors   `json:"feed"`
	Modal  *analyzer.ModalSelectors `json:"modal,omitempty"`
}

func main() {
	var (
		configFile = flag.String("config", "configs/config.yaml", "Configuration file path")
		htmlFile   = flag.String("file", "", "Saved HTML page to analyze")
		pageURL    = flag.String("url", "", "Live Facebook page to analyze")
		modal      = flag.Bool("modal", false, "Also open the first comment dialog and analyze it (live pages only)")
		outFile    = flag.String("out", "", "Write the JSON report here instead of stdout")
	)
	flag.Parse()

	if (*htmlFile == "") == (*pageURL == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -file or -url is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := utils.NewLogger(cfg.Logging)
	a := analyzer.New(logger)

	var rep report
	if *htmlFile != "" {
		rep, err = analyzeFile(a, *htmlFile)
	} else {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		rep, err = analyzeLive(ctx, a, cfg, *pageURL, *modal, logger)
	}
	if err != nil {
		logger.Fatalf("Analysis failed: %v", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		logger.Fatalf("Failed to encode report: %v", err)
	}
	if *outFile == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*outFile, data, 0644); err != nil {
		logger.Fatalf("Failed to write report: %v", err)
	}
	logger.Infof("Selector report written to %s", *outFile)
}

func analyzeFile(a *analyzer.Analyzer, path string) (report, error) {
	f, err := os.Open(path)
	if err != nil {
		return report{}, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return report{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	rep := report{Source: path, Feed: a.AnalyzeFeed(doc)}
	if doc.Find(`div[role="dialog"], div[aria-modal="true"]`).Length() > 0 {
		ms := a.AnalyzeModal(doc)
		rep.Modal = &ms
	}
	return rep, nil
}

func analyzeLive(ctx context.Context, a *analyzer.Analyzer, cfg *config.Config, pageURL string, withModal bool, logger *logrus.Logger) (report, error) {
	if err := config.ValidateURL(pageURL); err != nil {
		return report{}, err
	}
	engine := cfg.Scraper.Engine
	if engine == "auto" {
		engine = ""
	}
	d, err := browser.New(ctx, browser.Options{
		Engine:          engine,
		Headless:        cfg.Scraper.Headless,
		UserAgent:       cfg.Facebook.Auth.UserAgent,
		PageLoadTimeout: cfg.Scraper.PageLoadTimeout,
		ExecPath:        cfg.Browser.ExecPath,
		SeleniumBrowser: cfg.Browser.SeleniumBrowser,
		SeleniumPort:    cfg.Browser.SeleniumPort,
		DriverPath:      cfg.Browser.DriverPath,
	}, logger)
	if err != nil {
		return report{}, fmt.Errorf("failed to start browser: %w", err)
	}
	defer d.Close()

	if cookies, err := auth.LoadCookies(cfg.Scraper.CookiesFile); err == nil {
		if err := d.Navigate(ctx, cfg.Facebook.BaseURL); err != nil {
			return report{}, err
		}
		if err := d.SetCookies(ctx, cookies); err != nil {
			return report{}, err
		}
	} else {
		logger.Warnf("Analyzing without a session: %v", err)
	}

	if err := d.Navigate(ctx, pageURL); err != nil {
		return report{}, err
	}
	if err := browser.Sleep(ctx, 3*time.Second); err != nil {
		return report{}, err
	}

	doc, err := snapshot(ctx, d)
	if err != nil {
		return report{}, err
	}
	rep := report{Source: pageURL, Feed: a.AnalyzeFeed(doc)}
	if !withModal {
		return rep, nil
	}

	profile := selectors.Desktop()
	buttons := append(append([]string{}, rep.Feed.CommentButtons...), profile.CommentButton...)
	clicked, err := browser.ClickByText(ctx, d, "", buttons, profile.CommentButtonWords)
	if err != nil || !clicked {
		logger.Warnf("No comment button could be opened (clicked=%v, err=%v)", clicked, err)
		return rep, nil
	}
	if err := browser.Sleep(ctx, 2*time.Second); err != nil {
		return report{}, err
	}
	doc, err = snapshot(ctx, d)
	if err != nil {
		return report{}, err
	}
	ms := a.AnalyzeModal(doc)
	rep.Modal = &ms
	return rep, nil
}

func snapshot(ctx context.Context, d browser.Driver) (*goquery.Document, error) {
	html, err := d.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
