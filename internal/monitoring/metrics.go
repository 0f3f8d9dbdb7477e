package monitoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Metrics struct {
	ScrapingRuns    int                     `json:"scraping_runs"`
	TotalPosts      int                     `json:"total_posts"`
	TotalComments   int                     `json:"total_comments"`
	SuccessfulPosts int                     `json:"successful_posts"`
	FailedPosts     int                     `json:"failed_posts"`
	LastRun         time.Time               `json:"last_run"`
	AverageRunTime  time.Duration           `json:"average_run_time"`
	ErrorRate       float64                 `json:"error_rate"`
	TargetMetrics   map[string]TargetMetric `json:"target_metrics"`
}

type TargetMetric struct {
	Runs           int           `json:"runs"`
	PostsScraped   int           `json:"posts_scraped"`
	Comments       int           `json:"comments"`
	LastScraped    time.Time     `json:"last_scraped"`
	AverageRunTime time.Duration `json:"average_run_time"`
	ErrorCount     int           `json:"error_count"`
}

// Monitor keeps run totals across invocations in a JSON file.
type Monitor struct {
	mu          sync.Mutex
	metrics     *Metrics
	logger      *logrus.Logger
	metricsFile string
	now         func() time.Time
}

func NewMonitor(logger *logrus.Logger, metricsFile string) *Monitor {
	monitor := &Monitor{
		metrics: &Metrics{
			TargetMetrics: make(map[string]TargetMetric),
		},
		logger:      logger,
		metricsFile: metricsFile,
		now:         time.Now,
	}

	monitor.loadMetrics()
	return monitor
}

// RecordScrapingRun adds one finished run. errors counts posts that were
// found but could not be processed.
func (m *Monitor) RecordScrapingRun(target string, postsScraped, comments int, duration time.Duration, errors int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.metrics.ScrapingRuns++
	m.metrics.TotalPosts += postsScraped + errors
	m.metrics.TotalComments += comments
	m.metrics.SuccessfulPosts += postsScraped
	m.metrics.FailedPosts += errors
	m.metrics.LastRun = now
	m.metrics.AverageRunTime = runningMean(m.metrics.AverageRunTime, duration, m.metrics.ScrapingRuns)

	if m.metrics.TotalPosts > 0 {
		m.metrics.ErrorRate = float64(m.metrics.FailedPosts) / float64(m.metrics.TotalPosts) * 100
	}

	tm := m.metrics.TargetMetrics[target]
	tm.Runs++
	tm.PostsScraped += postsScraped
	tm.Comments += comments
	tm.LastScraped = now
	tm.ErrorCount += errors
	tm.AverageRunTime = runningMean(tm.AverageRunTime, duration, tm.Runs)
	m.metrics.TargetMetrics[target] = tm

	m.saveMetrics()

	m.logger.Infof("Recorded scraping run for %s: %d posts, %d comments, %v duration, %d errors",
		target, postsScraped, comments, duration, errors)
}

func runningMean(avg, d time.Duration, n int) time.Duration {
	if n <= 1 {
		return d
	}
	return avg + (d-avg)/time.Duration(n)
}

// GetMetrics returns a copy of the current totals.
func (m *Monitor) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *m.metrics
	cp.TargetMetrics = make(map[string]TargetMetric, len(m.metrics.TargetMetrics))
	for k, v := range m.metrics.TargetMetrics {
		cp.TargetMetrics[k] = v
	}
	return cp
}

func (m *Monitor) GetHealthStatus() map[string]interface{} {
	metrics := m.GetMetrics()
	status := map[string]interface{}{
		"status":          "healthy",
		"last_run":        metrics.LastRun.Format(time.RFC3339),
		"total_runs":      metrics.ScrapingRuns,
		"error_rate":      fmt.Sprintf("%.2f%%", metrics.ErrorRate),
		"average_runtime": metrics.AverageRunTime.String(),
	}

	if m.now().Sub(metrics.LastRun) > 24*time.Hour {
		status["status"] = "warning"
		status["warning"] = "No scraping runs in the last 24 hours"
	}

	if metrics.ErrorRate > 10 {
		status["status"] = "warning"
		status["warning"] = "High error rate detected"
	}

	return status
}

func (m *Monitor) GenerateReport() string {
	metrics := m.GetMetrics()
	report := fmt.Sprintf(`
Facebook Scraper Monitoring Report
==================================
Generated: %s

Overall Statistics:
- Total Scraping Runs: %d
- Total Posts Processed: %d
- Successful Posts: %d
- Failed Posts: %d
- Comments Extracted: %d
- Error Rate: %.2f%%
- Average Run Time: %s
- Last Run: %s

Target Performance:
`,
		m.now().Format("2006-01-02 15:04:05"),
		metrics.ScrapingRuns,
		metrics.TotalPosts,
		metrics.SuccessfulPosts,
		metrics.FailedPosts,
		metrics.TotalComments,
		metrics.ErrorRate,
		metrics.AverageRunTime,
		metrics.LastRun.Format("2006-01-02 15:04:05"),
	)

	targets := make([]string, 0, len(metrics.TargetMetrics))
	for target := range metrics.TargetMetrics {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	for _, target := range targets {
		metric := metrics.TargetMetrics[target]
		report += fmt.Sprintf(`
- %s:
  Runs: %d
  Posts Scraped: %d
  Comments: %d
  Last Scraped: %s
  Average Runtime: %s
  Errors: %d
`,
			target,
			metric.Runs,
			metric.PostsScraped,
			metric.Comments,
			metric.LastScraped.Format("2006-01-02 15:04:05"),
			metric.AverageRunTime,
			metric.ErrorCount,
		)
	}

	return report
}

func (m *Monitor) loadMetrics() {
	data, err := os.ReadFile(m.metricsFile)
	if os.IsNotExist(err) {
		m.logger.Info("No existing metrics file found, starting fresh")
		return
	}
	if err != nil {
		m.logger.Warnf("Failed to read metrics file: %v", err)
		return
	}

	if err := json.Unmarshal(data, m.metrics); err != nil {
		m.logger.Warnf("Failed to parse metrics file: %v", err)
		return
	}
	if m.metrics.TargetMetrics == nil {
		m.metrics.TargetMetrics = make(map[string]TargetMetric)
	}

	m.logger.Info("Loaded existing metrics from file")
}

func (m *Monitor) saveMetrics() {
	data, err := json.MarshalIndent(m.metrics, "", "  ")
	if err != nil {
		m.logger.Errorf("Failed to marshal metrics: %v", err)
		return
	}

	if dir := filepath.Dir(m.metricsFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			m.logger.Errorf("Failed to create metrics directory: %v", err)
			return
		}
	}

	if err := os.WriteFile(m.metricsFile, data, 0644); err != nil {
		m.logger.Errorf("Failed to save metrics: %v", err)
	}
}

// AlertManager handles alerting based on metrics
type AlertManager struct {
	monitor *Monitor
	logger  *logrus.Logger
}

func NewAlertManager(monitor *Monitor, logger *logrus.Logger) *AlertManager {
	return &AlertManager{
		monitor: monitor,
		logger:  logger,
	}
}

func (am *AlertManager) CheckAlerts() []string {
	var alerts []string
	metrics := am.monitor.GetMetrics()

	if am.monitor.now().Sub(metrics.LastRun) > 25*time.Hour {
		alerts = append(alerts, "ALERT: Scraper hasn't run in over 24 hours")
	}

	if metrics.ErrorRate > 15 {
		alerts = append(alerts, fmt.Sprintf("ALERT: High error rate: %.2f%%", metrics.ErrorRate))
	}

	if metrics.TotalPosts == 0 {
		alerts = append(alerts, "ALERT: No posts have been scraped")
	}

	return alerts
}

func (am *AlertManager) SendAlerts(alerts []string) {
	for _, alert := range alerts {
		am.logger.Warn(alert)
	}
}
