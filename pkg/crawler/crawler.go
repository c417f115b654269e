// Package crawler coordinates one-level web crawls: every seed page is
// fetched and parsed for references, each referenced resource is fetched
// once, and the captured response headers become report records.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sriharshay/web-resource-processor/internal/classify"
	"github.com/sriharshay/web-resource-processor/internal/errors"
	"github.com/sriharshay/web-resource-processor/internal/fetch"
	"github.com/sriharshay/web-resource-processor/internal/inspect"
	"github.com/sriharshay/web-resource-processor/internal/logger"
	"github.com/sriharshay/web-resource-processor/internal/metrics"
	"github.com/sriharshay/web-resource-processor/internal/output"
	"github.com/sriharshay/web-resource-processor/internal/parser"
	"github.com/sriharshay/web-resource-processor/internal/progress"
	"github.com/sriharshay/web-resource-processor/internal/ratelimit"
	"github.com/sriharshay/web-resource-processor/internal/scope"
	"github.com/sriharshay/web-resource-processor/internal/shutdown"
	"github.com/sriharshay/web-resource-processor/internal/state"
)

const (
	// hostCooldown is how long a suspended host stays suspended before
	// the breaker lets a probe through.
	hostCooldown = 30 * time.Second

	// dedupEstimate sizes the seen-set for a typical run.
	dedupEstimate = 4096
)

// Crawler fetches seed pages, resolves their references, and collects one
// record per reference into a report.
type Crawler struct {
	config *Config

	client    *fetch.Client
	parser    *parser.Parser
	inspector *inspect.Inspector
	dedup     *state.Deduplicator
	cache     *state.ResultCache
	limiter   *ratelimit.Limiter
	breakers  *errors.HostBreakers
	archive   state.Archive

	logger   *logger.Logger
	metrics  *metrics.Collector
	progress *progress.Display

	outputWriter io.Writer // destination override, mainly for embedding and tests
	writer       output.Writer
	outputFile   string

	shutdownHandler *shutdown.Handler

	running   atomic.Bool
	startTime time.Time

	seedsDone     atomic.Int64
	fetchedCount  atomic.Int64
	recordsOut    atomic.Int64
	errorsCount   atomic.Int64
	queueDepth    atomic.Int64
	activeWorkers atomic.Int64
}

// recordSlot is one pre-assigned report position: the reference that fills
// it and, for unresolved references, the originating tag.
type recordSlot struct {
	link string
	tag  string
	dup  bool // link already claimed by an earlier slot this run
}

// New creates a crawler from options.
func New(opts ...Option) (*Crawler, error) {
	c := &Crawler{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.logger == nil {
		logLevel := logger.InfoLevel
		if c.config.Debug {
			logLevel = logger.DebugLevel
		} else if !c.config.Verbose {
			logLevel = logger.WarnLevel
		}
		c.logger = logger.New(logger.Config{
			Level:     logLevel,
			Pretty:    true,
			Component: "crawler",
		})
	}

	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	c.shutdownHandler = shutdown.New(shutdown.Config{
		Timeout: 10 * time.Second,
		OnShutdownStart: func() {
			c.logger.Warn("shutdown requested, keeping collected records")
		},
		OnShutdownDone: func(elapsed time.Duration, errs []error) {
			if len(errs) > 0 {
				c.logger.Warnf("shutdown finished in %s with %d errors", elapsed, len(errs))
				return
			}
			c.logger.Infof("shutdown finished in %s", elapsed)
		},
	})

	return c, nil
}

// Run crawls the seeds in caller order and writes the report. Each seed
// is fetched fresh and parsed for references; referenced resources are
// fetched concurrently, once per distinct URL across the whole run.
// Record order is stable regardless of fetch completion order: seeds in
// caller order, and per seed the resolved references first, then the
// unresolved ones, both in extraction order. A seed that yields no
// references at all is reported as a single record of its own.
func (c *Crawler) Run(ctx context.Context, seeds []string) (*output.RunResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("crawler is already running")
	}
	defer c.running.Store(false)

	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one seed URL is required")
	}

	if err := c.initialize(); err != nil {
		return nil, err
	}
	defer c.cleanup()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.shutdownHandler.Register("cancel-crawl", func(context.Context) error {
		cancel()
		return nil
	})
	go c.shutdownHandler.Wait()

	c.startTime = time.Now()
	c.logger.Infof("starting crawl of %d seeds with %d workers", len(seeds), c.config.Workers)

	if c.progress != nil {
		c.progress.Start(progressTarget(seeds), len(seeds))
	}
	go c.statusReporter(runCtx)

	var records []*output.Record
	for i, seed := range seeds {
		if runCtx.Err() != nil {
			c.logger.Warnf("crawl cancelled with %d of %d seeds processed", i, len(seeds))
			break
		}
		recs := c.processSeed(runCtx, seed)
		for _, rec := range recs {
			c.streamRecord(rec)
		}
		records = append(records, recs...)
		c.seedsDone.Add(1)
		c.recordsOut.Add(int64(len(recs)))
	}

	c.updateProgress()

	result := c.buildResult(seeds, records)
	if err := c.writeResult(result); err != nil {
		return result, err
	}
	c.archiveRun(result)

	c.logger.WithDuration(result.Stats.Duration).Infof("crawl finished with %d records", len(records))
	return result, nil
}

// initialize builds the per-run components from the configuration.
func (c *Crawler) initialize() error {
	p, err := parser.New(c.config.Tags, c.logger)
	if err != nil {
		return fmt.Errorf("initializing parser: %w", err)
	}
	c.parser = p

	fetchConfig := fetch.DefaultConfig()
	fetchConfig.Timeout = c.config.Timeout
	fetchConfig.SkipTLSVerify = c.config.SkipTLSVerify
	c.client = fetch.NewClient(fetchConfig)

	if c.config.Retries > 0 {
		retryConfig := errors.DefaultRetryConfig()
		retryConfig.MaxRetries = c.config.Retries
		c.client.SetRetryConfig(retryConfig)
	}

	c.inspector = inspect.New(c.client, c.parser, inspect.Policy{
		AllowedHeaders: c.config.AllowedHeaders,
		AllowExternal:  c.config.AllowExternal,
	}, c.logger)

	c.dedup = state.NewDeduplicator(dedupEstimate)
	c.cache = state.NewResultCache()
	c.limiter = ratelimit.New(c.config.RateLimit.RequestsPerSecond, c.config.RateLimit.Burst)
	if c.config.MaxHostFailures > 0 {
		c.breakers = errors.NewHostBreakers(c.config.MaxHostFailures, hostCooldown)
	}

	if c.archive == nil && c.config.Archive != "" {
		archive, err := state.NewBoltArchive(c.config.Archive)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		c.archive = archive
	}

	if err := c.initOutput(); err != nil {
		return err
	}

	if c.config.ShowProgress {
		c.progress = progress.New()
	}
	return nil
}

// initOutput opens the report destination. File output gets a timestamped
// name derived from the configured one, so reruns never overwrite each
// other.
func (c *Crawler) initOutput() error {
	w := c.outputWriter
	if w == nil {
		name, err := output.DeriveFilename(c.config.Output.FileName, c.config.Output.Format, time.Now())
		if err != nil {
			return err
		}
		path := name
		if c.config.Output.Dir != "" {
			path = filepath.Join(c.config.Output.Dir, name)
		}
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		c.outputFile = path
		c.logger.Debugf("writing output to %s", path)
		w = file
	}

	c.writer = output.NewWriter(w, output.Config{
		Format:        c.config.Output.Format,
		Pretty:        c.config.Output.Pretty,
		Stream:        c.config.Output.Stream && c.config.Output.Format == output.FormatJSON,
		HeaderColumns: c.config.AllowedHeaders,
	})
	return nil
}

// processSeed fetches one seed, then fetches everything it references and
// assembles the seed's records in their pre-assigned order.
func (c *Crawler) processSeed(ctx context.Context, seed string) []*output.Record {
	started := time.Now()
	log := c.logger.WithURL(seed)
	log.Info("processing seed")

	res := c.inspector.Inspect(ctx, seed, true)
	c.dedup.Claim(seed)
	c.cache.Store(res)

	c.metrics.RecordSeedProcessed()
	c.recordFetchMetrics(res)
	c.metrics.RecordReferences(len(res.Children) + len(res.ChildrenInvalid))
	c.metrics.RecordExternalsSkipped(res.ExternalsDropped)
	for range res.ChildrenInvalid {
		c.metrics.RecordBadLink()
	}

	slots := buildSlots(res)
	if len(slots) == 0 {
		log.WithDuration(time.Since(started)).Info("seed yielded no references")
		c.metrics.RecordRecordEmitted()
		return []*output.Record{c.recordFrom(res, "")}
	}

	tasks := c.claimTasks(slots)
	c.fetchAll(ctx, tasks)

	records := c.collectRecords(slots)
	log.WithDuration(time.Since(started)).Infof("seed produced %d records (%d fetched, %d reused)",
		len(records), len(tasks), len(slots)-len(tasks))
	return records
}

// buildSlots lays out the seed's report rows: resolved references first,
// unresolved after, both in extraction order.
func buildSlots(res *inspect.Resource) []recordSlot {
	slots := make([]recordSlot, 0, len(res.Children)+len(res.ChildrenInvalid))
	for _, child := range res.Children {
		slots = append(slots, recordSlot{link: child.Link})
	}
	for _, child := range res.ChildrenInvalid {
		slots = append(slots, recordSlot{link: child.Link, tag: child.Tag})
	}
	return slots
}

// claimTasks claims each slot's URL against the run-wide seen set and
// returns the URLs that still need a fetch. Slots whose URL was already
// claimed reuse the shared result.
func (c *Crawler) claimTasks(slots []recordSlot) []string {
	tasks := make([]string, 0, len(slots))
	for i := range slots {
		if c.dedup.Claim(slots[i].link) {
			tasks = append(tasks, slots[i].link)
			continue
		}
		slots[i].dup = true
		c.metrics.RecordDuplicateSkipped()
	}
	return tasks
}

// fetchAll drains the task list through the worker pool. Cancellation
// stops the feed; tasks already handed out finish or abort on their own
// context.
func (c *Crawler) fetchAll(ctx context.Context, urls []string) {
	if len(urls) == 0 {
		return
	}

	c.queueDepth.Add(int64(len(urls)))

	workers := c.config.Workers
	if workers > len(urls) {
		workers = len(urls)
	}

	taskCh := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log := c.logger.WithWorker(id)
			for u := range taskCh {
				c.fetchOne(ctx, u, log)
				c.queueDepth.Add(-1)
			}
		}(i)
	}

	sent := 0
feed:
	for _, u := range urls {
		select {
		case taskCh <- u:
			sent++
		case <-ctx.Done():
			break feed
		}
	}
	close(taskCh)
	wg.Wait()

	if skipped := len(urls) - sent; skipped > 0 {
		c.queueDepth.Add(int64(-skipped))
		c.logger.Debugf("%d queued fetches skipped by cancellation", skipped)
	}
}

// fetchOne rate limits, fetches, and caches a single referenced resource.
// A fetch abandoned mid-flight by cancellation stays out of the cache so
// its slots are dropped rather than reported half-done.
func (c *Crawler) fetchOne(ctx context.Context, rawURL string, log *logger.Logger) {
	c.activeWorkers.Add(1)
	defer c.activeWorkers.Add(-1)

	host := scope.Domain(rawURL)
	if host != "" {
		if c.breakers != nil && !c.breakers.Get(host).Allow() {
			resErr := errors.NewHostSuspended(rawURL, host)
			c.cache.Store(&inspect.Resource{
				URL:     rawURL,
				URLRoot: scope.URLRoot(rawURL),
				Domain:  host,
				Type:    classify.Find(rawURL),
				Err:     resErr,
			})
			c.metrics.RecordError(resErr.Kind.String())
			c.errorsCount.Add(1)
			log.WithURL(rawURL).Debug(resErr.Error())
			return
		}
		if err := c.limiter.WaitDomain(ctx, host); err != nil {
			return
		}
	}

	res := c.inspector.Inspect(ctx, rawURL, false)
	if ctx.Err() != nil && res.StatusCode == 0 {
		return
	}

	c.cache.Store(res)
	c.fetchedCount.Add(1)
	c.metrics.RecordChildFetched()
	c.recordFetchMetrics(res)

	if host != "" && c.breakers != nil {
		if res.Err != nil && res.Err.Kind == errors.KindTransport {
			c.breakers.Get(host).RecordFailure()
		} else {
			c.breakers.Get(host).RecordSuccess()
		}
	}

	log.RequestEvent(http.MethodGet, rawURL, res.StatusCode, res.Duration)
}

// recordFetchMetrics folds one inspected resource into the collector.
func (c *Crawler) recordFetchMetrics(res *inspect.Resource) {
	if res.StatusCode > 0 || res.Duration > 0 {
		c.metrics.RecordRequest()
		c.metrics.RecordResponseTime(res.Duration)
	}
	if res.StatusCode > 0 {
		c.metrics.RecordStatusCode(res.StatusCode)
	}
	if res.Bytes > 0 {
		c.metrics.RecordBytes(res.Bytes)
	}
	if res.Err != nil {
		c.metrics.RecordError(res.Err.Kind.String())
		c.errorsCount.Add(1)
	}
}

// collectRecords fills the slots from the cache, in slot order. Slots
// whose fetch never completed are dropped.
func (c *Crawler) collectRecords(slots []recordSlot) []*output.Record {
	records := make([]*output.Record, 0, len(slots))
	for _, slot := range slots {
		res, ok := c.cache.Load(slot.link)
		if !ok {
			c.logger.WithURL(slot.link).Debug("no result collected, dropping record")
			continue
		}
		if slot.dup {
			c.metrics.RecordCacheHit()
		}
		rec := c.recordFrom(res, slot.tag)
		c.logger.WithURL(rec.URL).Debug("updating output")
		records = append(records, rec)
		c.metrics.RecordRecordEmitted()
	}
	return records
}

// recordFrom reduces an inspected resource to a report record. tag is the
// originating markup for unresolved references, empty otherwise.
func (c *Crawler) recordFrom(res *inspect.Resource, tag string) *output.Record {
	rec := &output.Record{
		URL:     res.URL,
		Domain:  res.Domain,
		Type:    res.Type.String(),
		Headers: res.FilteredHeaders,
		Tag:     tag,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// streamRecord forwards a record to the writer in JSON stream mode.
func (c *Crawler) streamRecord(rec *output.Record) {
	if !c.config.Output.Stream || c.config.Output.Format != output.FormatJSON {
		return
	}
	if err := c.writer.WriteRecord(rec); err != nil {
		c.logger.WithError(err).Warn("streaming record")
	}
}

// buildResult assembles the run result and its statistics.
func (c *Crawler) buildResult(seeds []string, records []*output.Record) *output.RunResult {
	completed := time.Now()
	snap := c.metrics.Snapshot()

	failures := 0
	for _, rec := range records {
		if rec.Error != "" {
			failures++
		}
	}

	return &output.RunResult{
		Seeds:       seeds,
		StartedAt:   c.startTime,
		CompletedAt: completed,
		Stats: output.RunStats{
			SeedsProcessed:    int(snap.SeedsProcessed),
			ChildrenFetched:   int(snap.ChildrenFetched),
			UniqueFetches:     c.dedup.Count(),
			RecordCount:       len(records),
			BadLinks:          int(snap.BadLinksTotal),
			Errors:            failures,
			DuplicatesSkipped: int(snap.DuplicatesSkipped),
			ExternalsSkipped:  int(snap.ExternalsSkipped),
			CacheHits:         int(snap.CacheHits),
			BytesTransferred:  snap.BytesTotal,
			Duration:          completed.Sub(c.startTime),
		},
		Records: records,
	}
}

// writeResult writes the final report through the configured writer.
func (c *Crawler) writeResult(result *output.RunResult) error {
	if err := c.writer.WriteResult(result); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("flushing results: %w", err)
	}
	return nil
}

// archiveRun saves the run summary when an archive is configured.
func (c *Crawler) archiveRun(result *output.RunResult) {
	if c.archive == nil {
		return
	}

	run := &state.CrawlRun{
		StartedAt:     result.StartedAt,
		FinishedAt:    result.CompletedAt,
		Seeds:         result.Seeds,
		OutputFile:    c.outputFile,
		Records:       result.Stats.RecordCount,
		Failures:      result.Stats.Errors,
		UniqueFetches: result.Stats.UniqueFetches,
		AllowExternal: c.config.AllowExternal,
	}
	if err := c.archive.SaveRun(run); err != nil {
		c.logger.WithError(err).Warn("archiving run summary")
		return
	}
	c.logger.Debugf("run archived as %s", run.ID)
}

// statusReporter periodically refreshes gauges and the progress display.
func (c *Crawler) statusReporter(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.metrics.SetQueueDepth(c.queueDepth.Load())
			c.metrics.SetActiveWorkers(c.activeWorkers.Load())
			if c.progress != nil {
				c.updateProgress()
			} else {
				c.logger.StatsEvent(c.metrics.Snapshot().Summary())
			}
		}
	}
}

// updateProgress pushes the live counters into the progress display.
func (c *Crawler) updateProgress() {
	if c.progress == nil {
		return
	}
	c.progress.Update(
		int(c.seedsDone.Load()),
		int(c.fetchedCount.Load()),
		int(c.recordsOut.Load()),
		int(c.errorsCount.Load()),
		int(c.queueDepth.Load()),
	)
}

// cleanup releases run resources. The writer is closed here, after the
// final WriteResult, so interrupted runs still flush collected records.
func (c *Crawler) cleanup() {
	if c.progress != nil {
		c.progress.Stop()
		c.progress.PrintSummary()
	} else {
		c.logger.StatsEvent(c.metrics.Snapshot().Summary())
	}

	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			c.logger.WithError(err).Warn("closing output writer")
		}
	}
	if c.archive != nil {
		if err := c.archive.Close(); err != nil {
			c.logger.WithError(err).Warn("closing archive")
		}
	}
	if c.client != nil {
		c.client.Close()
	}
}

// Stop requests an orderly shutdown: unstarted fetches are skipped and
// the records collected so far are still written.
func (c *Crawler) Stop() error {
	if c.shutdownHandler != nil {
		c.shutdownHandler.Shutdown()
	}
	return nil
}

// IsRunning reports whether a crawl is in progress.
func (c *Crawler) IsRunning() bool {
	return c.running.Load()
}

// Metrics exposes the crawler's metrics collector.
func (c *Crawler) Metrics() *metrics.Collector {
	return c.metrics
}

// MetricsSnapshot returns a point-in-time metrics view, or nil when no
// collector is attached.
func (c *Crawler) MetricsSnapshot() *metrics.Snapshot {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Snapshot()
}

// OutputFile returns the path of the written report, or empty when the
// report went to a caller-supplied writer.
func (c *Crawler) OutputFile() string {
	return c.outputFile
}

func progressTarget(seeds []string) string {
	if len(seeds) == 1 {
		return seeds[0]
	}
	return fmt.Sprintf("%s (+%d more)", seeds[0], len(seeds)-1)
}
