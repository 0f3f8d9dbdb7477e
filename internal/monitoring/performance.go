package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const maxSamples = 100

// PerformanceMonitor tracks one run. Every Record method is safe to call
// from the parsing workers.
type PerformanceMonitor struct {
	logger *logrus.Logger
	start  time.Time
	now    func() time.Time

	mu                sync.Mutex
	postsProcessed    int
	commentsExtracted int
	errorsCount       int
	cacheHits         int
	cacheMisses       int
	processingTimes   []time.Duration
	peakHeap          uint64

	registry       *prometheus.Registry
	postsTotal     prometheus.Counter
	commentsTotal  prometheus.Counter
	errorsTotal    prometheus.Counter
	cacheLookups   *prometheus.CounterVec
	processingTime prometheus.Histogram
	heapBytes      prometheus.Gauge
}

type Summary struct {
	Elapsed           time.Duration `json:"elapsed"`
	PostsProcessed    int           `json:"posts_processed"`
	CommentsExtracted int           `json:"comments_extracted"`
	Errors            int           `json:"errors"`
	PostsPerMinute    float64       `json:"posts_per_minute"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
	CacheHitRate      float64       `json:"cache_hit_rate"`
	PeakHeapBytes     uint64        `json:"peak_heap_bytes"`
}

func NewPerformanceMonitor(logger *logrus.Logger) *PerformanceMonitor {
	pm := &PerformanceMonitor{
		logger:   logger,
		now:      time.Now,
		registry: prometheus.NewRegistry(),
		postsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fbscrape_posts_processed_total",
			Help: "Posts parsed and kept in the result.",
		}),
		commentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fbscrape_comments_extracted_total",
			Help: "Comments and replies extracted.",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fbscrape_errors_total",
			Help: "Posts or pages that failed to process.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbscrape_cache_lookups_total",
			Help: "Post cache lookups by result.",
		}, []string{"result"}),
		processingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fbscrape_post_processing_seconds",
			Help:    "Time spent on one post, comments included.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		heapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbscrape_heap_bytes",
			Help: "Heap in use at the last sample.",
		}),
	}
	pm.registry.MustRegister(pm.postsTotal, pm.commentsTotal, pm.errorsTotal,
		pm.cacheLookups, pm.processingTime, pm.heapBytes)
	pm.start = pm.now()
	return pm
}

// Start samples heap usage every interval until ctx is done. A warning is
// logged when the heap grows past limitMB; zero disables the warning.
func (pm *PerformanceMonitor) Start(ctx context.Context, interval time.Duration, limitMB int) {
	pm.logger.Info("Performance monitoring started")
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				pm.logger.Debug("Performance monitoring stopped")
				return
			case <-ticker.C:
				heap := pm.SampleMemory()
				if limitMB > 0 && heap > uint64(limitMB)<<20 {
					pm.logger.Warnf("High memory usage: %d MB (threshold: %d MB)", heap>>20, limitMB)
					runtime.GC()
				}
			}
		}
	}()
}

// SampleMemory reads the current heap size and updates the peak.
func (pm *PerformanceMonitor) SampleMemory() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	pm.mu.Lock()
	if ms.HeapAlloc > pm.peakHeap {
		pm.peakHeap = ms.HeapAlloc
	}
	pm.mu.Unlock()

	pm.heapBytes.Set(float64(ms.HeapAlloc))
	return ms.HeapAlloc
}

func (pm *PerformanceMonitor) RecordPostProcessed(d time.Duration) {
	pm.mu.Lock()
	pm.postsProcessed++
	pm.processingTimes = append(pm.processingTimes, d)
	if len(pm.processingTimes) > maxSamples {
		pm.processingTimes = append(pm.processingTimes[:0], pm.processingTimes[len(pm.processingTimes)-maxSamples/2:]...)
	}
	pm.mu.Unlock()

	pm.postsTotal.Inc()
	pm.processingTime.Observe(d.Seconds())
}

func (pm *PerformanceMonitor) RecordComments(n int) {
	if n <= 0 {
		return
	}
	pm.mu.Lock()
	pm.commentsExtracted += n
	pm.mu.Unlock()
	pm.commentsTotal.Add(float64(n))
}

func (pm *PerformanceMonitor) RecordError() {
	pm.mu.Lock()
	pm.errorsCount++
	pm.mu.Unlock()
	pm.errorsTotal.Inc()
}

func (pm *PerformanceMonitor) RecordCacheHit() {
	pm.mu.Lock()
	pm.cacheHits++
	pm.mu.Unlock()
	pm.cacheLookups.WithLabelValues("hit").Inc()
}

func (pm *PerformanceMonitor) RecordCacheMiss() {
	pm.mu.Lock()
	pm.cacheMisses++
	pm.mu.Unlock()
	pm.cacheLookups.WithLabelValues("miss").Inc()
}

// Reset starts a new run window. Summary figures cover only what was
// recorded since; the Prometheus counters keep accumulating.
func (pm *PerformanceMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.start = pm.now()
	pm.postsProcessed = 0
	pm.commentsExtracted = 0
	pm.errorsCount = 0
	pm.cacheHits = 0
	pm.cacheMisses = 0
	pm.processingTimes = nil
	pm.peakHeap = 0
}

func (pm *PerformanceMonitor) Summary() Summary {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	elapsed := pm.now().Sub(pm.start)
	s := Summary{
		Elapsed:           elapsed,
		PostsProcessed:    pm.postsProcessed,
		CommentsExtracted: pm.commentsExtracted,
		Errors:            pm.errorsCount,
		PeakHeapBytes:     pm.peakHeap,
	}
	if minutes := elapsed.Minutes(); minutes > 0 {
		s.PostsPerMinute = float64(pm.postsProcessed) / minutes
	}
	if len(pm.processingTimes) > 0 {
		var total time.Duration
		for _, d := range pm.processingTimes {
			total += d
		}
		s.AvgProcessingTime = total / time.Duration(len(pm.processingTimes))
	}
	if lookups := pm.cacheHits + pm.cacheMisses; lookups > 0 {
		s.CacheHitRate = float64(pm.cacheHits) / float64(lookups)
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("runtime %s, posts %d, comments %d, errors %d, %.2f posts/min, avg %s per post, cache hit rate %.2f%%, peak heap %d MB",
		s.Elapsed.Round(time.Millisecond), s.PostsProcessed, s.CommentsExtracted, s.Errors,
		s.PostsPerMinute, s.AvgProcessingTime.Round(time.Millisecond), s.CacheHitRate*100, s.PeakHeapBytes>>20)
}

// Handler serves this run's metrics in the Prometheus text format.
func (pm *PerformanceMonitor) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// Registry exposes the run registry so other collectors can join it.
func (pm *PerformanceMonitor) Registry() *prometheus.Registry {
	return pm.registry
}
