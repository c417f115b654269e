// Package progress provides progress display for the crawler.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Display renders a single-line progress bar while a run is active and
// a boxed summary once it finishes.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	// Stats
	seedsDone  atomic.Int64
	seedsTotal atomic.Int64
	fetched    atomic.Int64
	records    atomic.Int64
	errors     atomic.Int64
	queueSize  atomic.Int64

	// Timing
	startTime  time.Time
	lastUpdate time.Time
	target     string

	// Display
	lastLine string
}

// New creates a new progress display writing to stderr.
func New() *Display {
	return &Display{out: os.Stderr}
}

// Start begins the progress display.
func (d *Display) Start(target string, seedsTotal int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true
	d.startTime = time.Now()
	d.lastUpdate = time.Now()
	d.target = target
	d.seedsTotal.Store(int64(seedsTotal))
}

// Update updates the progress display with current stats.
func (d *Display) Update(seedsDone, fetched, records, errors, queueSize int) {
	d.seedsDone.Store(int64(seedsDone))
	d.fetched.Store(int64(fetched))
	d.records.Store(int64(records))
	d.errors.Store(int64(errors))
	d.queueSize.Store(int64(queueSize))

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}

	// Progress is fetches completed over fetches known about.
	total := fetched + queueSize
	progress := 0
	if queueSize == 0 && seedsDone == int(d.seedsTotal.Load()) && fetched > 0 {
		progress = 100
	} else if total > 0 {
		progress = int((float64(fetched) / float64(total)) * 100)
		if progress > 99 {
			progress = 99
		}
	}

	elapsed := time.Since(d.startTime)
	speed := float64(0)
	if elapsed.Seconds() > 0 {
		speed = float64(fetched) / elapsed.Seconds()
	}

	barWidth := 30
	filled := int(float64(progress) / 100 * float64(barWidth))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | Seeds: %d/%d | Fetched: %d | Queue: %d | Records: %d | %.1f r/s | %s",
		bar, progress, seedsDone, d.seedsTotal.Load(), fetched, queueSize, records, speed, formatDuration(elapsed))

	// Clear previous line and print new one
	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
	d.lastUpdate = time.Now()
}

// Stop stops the progress display.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}

	d.stopped = true

	// Move past the progress bar
	fmt.Fprintln(d.out)
}

// PrintSummary prints a final summary after the run.
func (d *Display) PrintSummary() {
	duration := time.Since(d.startTime)

	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(d.out, "║                        Crawl Complete                        ║")
	fmt.Fprintln(d.out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(d.out)
	fmt.Fprintf(d.out, "  Target:             %s\n", truncateURL(d.target, 50))
	fmt.Fprintf(d.out, "  Duration:           %s\n", formatDuration(duration))
	fmt.Fprintf(d.out, "  Seeds Processed:    %d/%d\n", d.seedsDone.Load(), d.seedsTotal.Load())
	fmt.Fprintf(d.out, "  Resources Fetched:  %d\n", d.fetched.Load())
	fmt.Fprintf(d.out, "  Records:            %d\n", d.records.Load())
	fmt.Fprintf(d.out, "  Errors:             %d\n", d.errors.Load())
	fmt.Fprintln(d.out)

	if duration.Seconds() > 0 {
		fmt.Fprintf(d.out, "  Average Speed:      %.1f req/sec\n", float64(d.fetched.Load())/duration.Seconds())
		fmt.Fprintln(d.out)
	}
}

// Stats returns current run statistics.
func (d *Display) Stats() (seedsDone, fetched, records, errors int64) {
	return d.seedsDone.Load(),
		d.fetched.Load(),
		d.records.Load(),
		d.errors.Load()
}

// truncateURL truncates a URL to maxLen characters.
func truncateURL(url string, maxLen int) string {
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen-3] + "..."
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
