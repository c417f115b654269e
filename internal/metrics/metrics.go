// Package metrics provides metrics collection for the resource crawler.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates crawl metrics.
type Collector struct {
	// Counters
	requestsTotal     atomic.Int64
	errorsTotal       atomic.Int64
	seedsProcessed    atomic.Int64
	childrenFetched   atomic.Int64
	referencesFound   atomic.Int64
	badLinksTotal     atomic.Int64
	externalsSkipped  atomic.Int64
	duplicatesSkipped atomic.Int64
	cacheHits         atomic.Int64
	recordsEmitted    atomic.Int64
	bytesTotal        atomic.Int64
	retriesTotal      atomic.Int64

	// Rate tracking
	requestsInWindow atomic.Int64
	errorsInWindow   atomic.Int64
	windowStart      atomic.Int64

	// Response time tracking
	responseTimesSum atomic.Int64
	responseTimesNum atomic.Int64

	// Gauges
	queueDepth    atomic.Int64
	activeWorkers atomic.Int64

	// Histograms (buckets for response times in ms)
	responseTimeBuckets [10]atomic.Int64 // <10, <50, <100, <250, <500, <1000, <2500, <5000, <10000, >=10000

	// Error breakdown
	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	// Status code breakdown
	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	// Start time
	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	now := time.Now()
	c := &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		statusCodes: make(map[int]*atomic.Int64),
		startTime:   now,
	}
	c.windowStart.Store(now.UnixNano())
	return c
}

// RecordRequest records an HTTP request.
func (c *Collector) RecordRequest() {
	c.requestsTotal.Add(1)
	c.requestsInWindow.Add(1)
}

// RecordError records a failed inspection, broken down by error kind.
func (c *Collector) RecordError(kind string) {
	c.errorsTotal.Add(1)
	c.errorsInWindow.Add(1)

	c.errorMu.Lock()
	if c.errorCounts[kind] == nil {
		c.errorCounts[kind] = &atomic.Int64{}
	}
	c.errorCounts[kind].Add(1)
	c.errorMu.Unlock()
}

// RecordResponseTime records a response time.
func (c *Collector) RecordResponseTime(d time.Duration) {
	ms := d.Milliseconds()
	c.responseTimesSum.Add(ms)
	c.responseTimesNum.Add(1)

	bucket := c.getBucket(ms)
	c.responseTimeBuckets[bucket].Add(1)
}

// getBucket returns the histogram bucket for a given response time.
func (c *Collector) getBucket(ms int64) int {
	switch {
	case ms < 10:
		return 0
	case ms < 50:
		return 1
	case ms < 100:
		return 2
	case ms < 250:
		return 3
	case ms < 500:
		return 4
	case ms < 1000:
		return 5
	case ms < 2500:
		return 6
	case ms < 5000:
		return 7
	case ms < 10000:
		return 8
	default:
		return 9
	}
}

// RecordStatusCode records an HTTP status code.
func (c *Collector) RecordStatusCode(code int) {
	c.statusMu.Lock()
	if c.statusCodes[code] == nil {
		c.statusCodes[code] = &atomic.Int64{}
	}
	c.statusCodes[code].Add(1)
	c.statusMu.Unlock()
}

// RecordSeedProcessed increments fully inspected seed pages.
func (c *Collector) RecordSeedProcessed() {
	c.seedsProcessed.Add(1)
}

// RecordChildFetched increments fetched child resources.
func (c *Collector) RecordChildFetched() {
	c.childrenFetched.Add(1)
}

// RecordReferences adds extracted reference candidates.
func (c *Collector) RecordReferences(n int) {
	c.referencesFound.Add(int64(n))
}

// RecordBadLink increments unresolvable references.
func (c *Collector) RecordBadLink() {
	c.badLinksTotal.Add(1)
}

// RecordExternalsSkipped adds references dropped for being off-origin.
func (c *Collector) RecordExternalsSkipped(n int) {
	c.externalsSkipped.Add(int64(n))
}

// RecordDuplicateSkipped increments references already claimed this run.
func (c *Collector) RecordDuplicateSkipped() {
	c.duplicatesSkipped.Add(1)
}

// RecordCacheHit increments inspections served from the result cache.
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Add(1)
}

// RecordRecordEmitted increments output rows produced.
func (c *Collector) RecordRecordEmitted() {
	c.recordsEmitted.Add(1)
}

// RecordBytes records transferred bytes.
func (c *Collector) RecordBytes(n int64) {
	c.bytesTotal.Add(n)
}

// RecordRetry records a retry attempt.
func (c *Collector) RecordRetry() {
	c.retriesTotal.Add(1)
}

// SetQueueDepth sets the current queue depth.
func (c *Collector) SetQueueDepth(depth int64) {
	c.queueDepth.Store(depth)
}

// SetActiveWorkers sets the number of active workers.
func (c *Collector) SetActiveWorkers(n int64) {
	c.activeWorkers.Store(n)
}

// GetRequestsPerSecond returns the current requests per second rate.
func (c *Collector) GetRequestsPerSecond() float64 {
	return c.getRatePerSecond(&c.requestsInWindow)
}

// GetErrorsPerSecond returns the current errors per second rate.
func (c *Collector) GetErrorsPerSecond() float64 {
	return c.getRatePerSecond(&c.errorsInWindow)
}

// getRatePerSecond calculates rate per second with window rotation.
func (c *Collector) getRatePerSecond(counter *atomic.Int64) float64 {
	windowDuration := time.Duration(10) * time.Second
	now := time.Now().UnixNano()
	windowStart := c.windowStart.Load()

	elapsed := time.Duration(now - windowStart)
	if elapsed >= windowDuration {
		// Rotate window
		if c.windowStart.CompareAndSwap(windowStart, now) {
			c.requestsInWindow.Store(0)
			c.errorsInWindow.Store(0)
		}
		return 0
	}

	count := counter.Load()
	if elapsed <= 0 {
		return 0
	}

	return float64(count) / elapsed.Seconds()
}

// GetAverageResponseTime returns the average response time.
func (c *Collector) GetAverageResponseTime() time.Duration {
	sum := c.responseTimesSum.Load()
	num := c.responseTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(c.startTime),
		RequestsTotal:       c.requestsTotal.Load(),
		ErrorsTotal:         c.errorsTotal.Load(),
		SeedsProcessed:      c.seedsProcessed.Load(),
		ChildrenFetched:     c.childrenFetched.Load(),
		ReferencesFound:     c.referencesFound.Load(),
		BadLinksTotal:       c.badLinksTotal.Load(),
		ExternalsSkipped:    c.externalsSkipped.Load(),
		DuplicatesSkipped:   c.duplicatesSkipped.Load(),
		CacheHits:           c.cacheHits.Load(),
		RecordsEmitted:      c.recordsEmitted.Load(),
		BytesTotal:          c.bytesTotal.Load(),
		RetriesTotal:        c.retriesTotal.Load(),
		QueueDepth:          c.queueDepth.Load(),
		ActiveWorkers:       c.activeWorkers.Load(),
		RequestsPerSecond:   c.GetRequestsPerSecond(),
		ErrorsPerSecond:     c.GetErrorsPerSecond(),
		AverageResponseTime: c.GetAverageResponseTime(),
		ErrorCounts:         make(map[string]int64),
		StatusCodes:         make(map[int]int64),
		ResponseTimeHist:    make([]int64, 10),
	}

	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	for i := 0; i < 10; i++ {
		s.ResponseTimeHist[i] = c.responseTimeBuckets[i].Load()
	}

	return s
}

// Reset resets all metrics.
func (c *Collector) Reset() {
	c.requestsTotal.Store(0)
	c.errorsTotal.Store(0)
	c.seedsProcessed.Store(0)
	c.childrenFetched.Store(0)
	c.referencesFound.Store(0)
	c.badLinksTotal.Store(0)
	c.externalsSkipped.Store(0)
	c.duplicatesSkipped.Store(0)
	c.cacheHits.Store(0)
	c.recordsEmitted.Store(0)
	c.bytesTotal.Store(0)
	c.retriesTotal.Store(0)
	c.requestsInWindow.Store(0)
	c.errorsInWindow.Store(0)
	c.responseTimesSum.Store(0)
	c.responseTimesNum.Store(0)
	c.queueDepth.Store(0)
	c.activeWorkers.Store(0)

	for i := 0; i < 10; i++ {
		c.responseTimeBuckets[i].Store(0)
	}

	c.errorMu.Lock()
	c.errorCounts = make(map[string]*atomic.Int64)
	c.errorMu.Unlock()

	c.statusMu.Lock()
	c.statusCodes = make(map[int]*atomic.Int64)
	c.statusMu.Unlock()

	c.windowStart.Store(time.Now().UnixNano())
	c.startTime = time.Now()
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp"`
	Uptime              time.Duration    `json:"uptime"`
	RequestsTotal       int64            `json:"requests_total"`
	ErrorsTotal         int64            `json:"errors_total"`
	SeedsProcessed      int64            `json:"seeds_processed"`
	ChildrenFetched     int64            `json:"children_fetched"`
	ReferencesFound     int64            `json:"references_found"`
	BadLinksTotal       int64            `json:"bad_links_total"`
	ExternalsSkipped    int64            `json:"externals_skipped"`
	DuplicatesSkipped   int64            `json:"duplicates_skipped"`
	CacheHits           int64            `json:"cache_hits"`
	RecordsEmitted      int64            `json:"records_emitted"`
	BytesTotal          int64            `json:"bytes_total"`
	RetriesTotal        int64            `json:"retries_total"`
	QueueDepth          int64            `json:"queue_depth"`
	ActiveWorkers       int64            `json:"active_workers"`
	RequestsPerSecond   float64          `json:"requests_per_second"`
	ErrorsPerSecond     float64          `json:"errors_per_second"`
	AverageResponseTime time.Duration    `json:"average_response_time"`
	ErrorCounts         map[string]int64 `json:"error_counts"`
	StatusCodes         map[int]int64    `json:"status_codes"`
	ResponseTimeHist    []int64          `json:"response_time_histogram"`
}

// ErrorRate returns the error rate (errors/requests).
func (s *Snapshot) ErrorRate() float64 {
	if s.RequestsTotal == 0 {
		return 0
	}
	return float64(s.ErrorsTotal) / float64(s.RequestsTotal)
}

// Summary returns a human-readable summary.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":               s.Uptime.String(),
		"requests_total":       s.RequestsTotal,
		"errors_total":         s.ErrorsTotal,
		"error_rate":           s.ErrorRate(),
		"seeds_processed":      s.SeedsProcessed,
		"children_fetched":     s.ChildrenFetched,
		"references_found":     s.ReferencesFound,
		"bad_links_total":      s.BadLinksTotal,
		"duplicates_skipped":   s.DuplicatesSkipped,
		"cache_hits":           s.CacheHits,
		"records_emitted":      s.RecordsEmitted,
		"requests_per_second":  s.RequestsPerSecond,
		"avg_response_time_ms": s.AverageResponseTime.Milliseconds(),
	}
}
