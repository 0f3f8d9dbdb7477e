package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"fbscrape/pkg/types"
)

var ErrInvalidURL = errors.New("invalid facebook url")

var facebookURLRe = regexp.MustCompile(`^https?://(www\.|m\.|mbasic\.)?(facebook|fb)\.com/.*`)

type Config struct {
	Facebook   FacebookConfig   `yaml:"facebook"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Browser    BrowserConfig    `yaml:"browser"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
}

type FacebookConfig struct {
	BaseURL   string          `yaml:"base_url"`
	MobileURL string          `yaml:"mobile_url"`
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
}

type AuthConfig struct {
	CookiesFile string `yaml:"cookies_file"`
	UserAgent   string `yaml:"user_agent"`
}

type RateLimitConfig struct {
	RequestsPerMinute    int           `yaml:"requests_per_minute"`
	DelayBetweenRequests time.Duration `yaml:"delay_between_requests"`
}

// ScraperConfig controls one scraping run.
type ScraperConfig struct {
	GroupURL            string           `yaml:"group_url"`
	CookiesFile         string           `yaml:"cookies_file"`
	MaxPosts            int              `yaml:"max_posts"`
	BatchSize           int              `yaml:"batch_size"`
	MaxScrollAttempts   int              `yaml:"max_scroll_attempts"`
	EmptyScrollLimit    int              `yaml:"empty_scroll_limit"`
	ScrollDelay         time.Duration    `yaml:"scroll_delay"`
	PageLoadTimeout     time.Duration    `yaml:"page_load_timeout"`
	ImplicitWait        time.Duration    `yaml:"implicit_wait"`
	OutputDir           string           `yaml:"output_dir"`
	Headless            bool             `yaml:"headless"`
	Engine              string           `yaml:"engine"`
	Mode                string           `yaml:"mode"`
	ParallelWorkers     int              `yaml:"parallel_workers"`
	CacheSize           int              `yaml:"cache_size"`
	CacheTTL            time.Duration    `yaml:"cache_ttl"`
	RetryAttempts       int              `yaml:"retry_attempts"`
	RetryDelay          time.Duration    `yaml:"retry_delay"`
	CheckpointEvery     int              `yaml:"checkpoint_every"`
	CheckpointKeep      int              `yaml:"checkpoint_keep"`
	Resume              bool             `yaml:"resume"`
	ExtractComments     bool             `yaml:"extract_comments"`
	MaxReplies          int              `yaml:"max_replies"`
	CommentLoadRounds   int              `yaml:"comment_load_rounds"`
	MinTextLength       int              `yaml:"min_text_length"`
	AutoDetectSelectors bool             `yaml:"auto_detect_selectors"`
	WaitLogin           bool             `yaml:"wait_login"`
	Schedule            string           `yaml:"schedule"`
	MaxMemoryMB         int              `yaml:"max_memory_mb"`
	MetricsFile         string           `yaml:"metrics_file"`
	Filter              types.PostFilter `yaml:"filter"`
}

type BrowserConfig struct {
	ExecPath        string `yaml:"exec_path"`
	UserDataDir     string `yaml:"user_data_dir"`
	DisableGPU      bool   `yaml:"disable_gpu"`
	WindowWidth     int    `yaml:"window_width"`
	WindowHeight    int    `yaml:"window_height"`
	SeleniumBrowser string `yaml:"selenium_browser"`
	SeleniumPort    int    `yaml:"selenium_port"`
	DriverPath      string `yaml:"driver_path"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// Enabled reports whether results should be stored in a database.
func (d DatabaseConfig) Enabled() bool {
	return d.Driver != ""
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

type APIConfig struct {
	Port string `yaml:"port"`
}

type OpenRouterConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type Group struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Default returns the configuration used when a key is absent from the
// YAML file.
func Default() *Config {
	return &Config{
		Facebook: FacebookConfig{
			BaseURL:   "https://www.facebook.com",
			MobileURL: "https://m.facebook.com",
			Timeout:   30 * time.Second,
			RateLimit: RateLimitConfig{RequestsPerMinute: 30},
		},
		Scraper: ScraperConfig{
			MaxPosts:          10,
			BatchSize:         5,
			MaxScrollAttempts: 400,
			EmptyScrollLimit:  5,
			ScrollDelay:       2 * time.Second,
			PageLoadTimeout:   30 * time.Second,
			ImplicitWait:      5 * time.Second,
			OutputDir:         "output",
			Headless:          true,
			Engine:            "chromedp",
			Mode:              "feed",
			ParallelWorkers:   4,
			CacheSize:         1000,
			CacheTTL:          time.Hour,
			RetryAttempts:     3,
			RetryDelay:        time.Second,
			CheckpointEvery:   10,
			CheckpointKeep:    5,
			ExtractComments:   true,
			MaxReplies:        5,
			CommentLoadRounds: 3,
			MinTextLength:     100,
			MetricsFile:       "data/metrics.json",
		},
		Browser: BrowserConfig{
			WindowWidth:     1920,
			WindowHeight:    1080,
			SeleniumBrowser: "firefox",
			SeleniumPort:    4444,
		},
		Database: DatabaseConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
		},
		API: APIConfig{Port: "8080"},
		OpenRouter: OpenRouterConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-3.5-turbo",
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads configFile over the defaults and applies environment
// overrides. A missing file is not an error: defaults and environment are
// enough for a run.
func Load(configFile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config := Default()

	data, err := os.ReadFile(configFile)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if config.Scraper.CookiesFile == "" {
		config.Scraper.CookiesFile = config.Facebook.Auth.CookiesFile
	}
	if config.Scraper.CookiesFile == "" {
		config.Scraper.CookiesFile = "cookies.json"
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("FB_GROUP_URL", &c.Scraper.GroupURL)
	setString("FB_COOKIES_FILE", &c.Scraper.CookiesFile)
	setString("DB_DRIVER", &c.Database.Driver)
	setString("DB_DSN", &c.Database.DSN)
	setString("DB_HOST", &c.Database.Host)
	setString("DB_USER", &c.Database.User)
	setString("DB_PASSWORD", &c.Database.Password)
	setString("DB_NAME", &c.Database.Name)
	setString("DB_SSL_MODE", &c.Database.SSLMode)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("OPENROUTER_API_KEY", &c.OpenRouter.APIKey)

	if v := os.Getenv("FB_HEADLESS"); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("failed to parse FB_HEADLESS: %w", err)
		}
		c.Scraper.Headless = headless
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("failed to parse DB_PORT: %w", err)
		}
		c.Database.Port = port
	}
	return nil
}

// Validate checks the scraper settings. An empty group URL is accepted
// because the CLI asks for one interactively.
func (c *Config) Validate() error {
	s := c.Scraper
	if s.GroupURL != "" {
		if err := ValidateURL(s.GroupURL); err != nil {
			return err
		}
	}

	positive := []struct {
		name  string
		value int
	}{
		{"max_posts", s.MaxPosts},
		{"batch_size", s.BatchSize},
		{"max_scroll_attempts", s.MaxScrollAttempts},
		{"empty_scroll_limit", s.EmptyScrollLimit},
		{"parallel_workers", s.ParallelWorkers},
		{"cache_size", s.CacheSize},
		{"retry_attempts", s.RetryAttempts},
		{"checkpoint_every", s.CheckpointEvery},
		{"checkpoint_keep", s.CheckpointKeep},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("scraper.%s must be positive, got %d", p.name, p.value)
		}
	}
	if s.MaxReplies < 0 || s.CommentLoadRounds < 0 {
		return fmt.Errorf("scraper.max_replies and scraper.comment_load_rounds must not be negative")
	}
	if s.ScrollDelay < 0 || s.CacheTTL <= 0 {
		return fmt.Errorf("scraper.scroll_delay must not be negative and scraper.cache_ttl must be positive")
	}

	switch s.Engine {
	case "chromedp", "selenium", "auto":
	default:
		return fmt.Errorf("unknown scraper.engine %q", s.Engine)
	}
	switch s.Mode {
	case "feed", "permalink":
	default:
		return fmt.Errorf("unknown scraper.mode %q", s.Mode)
	}
	switch c.Database.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	return nil
}

// ValidateURL accepts facebook.com and fb.com URLs on the www, m and mbasic
// hosts.
func ValidateURL(u string) error {
	if !facebookURLRe.MatchString(u) {
		return fmt.Errorf("%w: %q", ErrInvalidURL, u)
	}
	return nil
}

func LoadGroups(groupsFile string) ([]Group, error) {
	if _, err := os.Stat(groupsFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("groups file not found: %s", groupsFile)
	}

	data, err := os.ReadFile(groupsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups file: %w", err)
	}

	var groups struct {
		Groups []Group `yaml:"groups"`
	}

	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse groups file: %w", err)
	}

	for i, g := range groups.Groups {
		if g.URL == "" && g.ID != "" {
			groups.Groups[i].URL = "https://www.facebook.com/groups/" + g.ID
		}
		if err := ValidateURL(groups.Groups[i].URL); err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
	}

	return groups.Groups, nil
}
