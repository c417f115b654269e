package crawler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sriharshay/web-resource-processor/internal/logger"
	"github.com/sriharshay/web-resource-processor/internal/output"
	"github.com/sriharshay/web-resource-processor/internal/state"
)

// newRunCrawler builds a crawler wired for tests: buffered output, a few
// workers, and a logger that stays quiet unless something is fatal.
func newRunCrawler(t *testing.T, buf *bytes.Buffer, opts ...Option) *Crawler {
	t.Helper()

	base := []Option{
		WithOutput(buf),
		WithWorkers(4),
		WithTimeout(5 * time.Second),
		WithLogger(logger.New(logger.Config{Level: logger.FatalLevel})),
	}
	c, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func parseCSV(t *testing.T, data string) [][]string {
	t.Helper()

	rows, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parsing csv output: %v", err)
	}
	return rows
}

func hostOf(t *testing.T, rawURL string) string {
	t.Helper()

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parsing server url: %v", err)
	}
	return u.Host
}

// =============================================================================
// End-to-End Crawl Tests
// =============================================================================

func TestCrawler_Run_CollectsReferenceRecords(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="/alpha.html">Alpha</a>
<img src="/logo.png">
<script src="/app.js"></script>
<a href="mailto:team@example.com">Contact</a>
</body></html>`)
	})
	mux.HandleFunc("/alpha.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=3600")
		fmt.Fprint(w, "<html><body>alpha</body></html>")
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var buf bytes.Buffer
	c := newRunCrawler(t, &buf)

	result, err := c.Run(context.Background(), []string{srv.URL})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Records) != 4 {
		t.Fatalf("Records = %d, want 4", len(result.Records))
	}

	host := hostOf(t, srv.URL)

	// The seed itself gets no record when it yields references; its
	// references report in extraction order, resolved before unresolved.
	alpha := result.Records[0]
	if alpha.URL != srv.URL+"/alpha.html" {
		t.Errorf("Records[0].URL = %s, want %s/alpha.html", alpha.URL, srv.URL)
	}
	if alpha.Type != "Page" {
		t.Errorf("Records[0].Type = %s, want Page", alpha.Type)
	}
	if alpha.Domain != host {
		t.Errorf("Records[0].Domain = %s, want %s", alpha.Domain, host)
	}
	if alpha.Headers["Cache-Control"] != "max-age=3600" {
		t.Errorf("Records[0].Headers = %v, want Cache-Control captured", alpha.Headers)
	}
	if alpha.Tag != "" || alpha.Error != "" {
		t.Errorf("Records[0] Tag=%q Error=%q, want both empty", alpha.Tag, alpha.Error)
	}

	logo := result.Records[1]
	if logo.URL != srv.URL+"/logo.png" || logo.Type != "Image" {
		t.Errorf("Records[1] = %s (%s), want logo.png (Image)", logo.URL, logo.Type)
	}

	app := result.Records[2]
	if app.Type != "JavaScript" {
		t.Errorf("Records[2].Type = %s, want JavaScript", app.Type)
	}
	if app.Error != "HTTP status code is [404]" {
		t.Errorf("Records[2].Error = %q, want HTTP status code is [404]", app.Error)
	}
	if len(app.Headers) != 0 {
		t.Errorf("Records[2].Headers = %v, want none for a failed fetch", app.Headers)
	}

	mail := result.Records[3]
	if mail.URL != "mailto:team@example.com" {
		t.Errorf("Records[3].URL = %s, want mailto:team@example.com", mail.URL)
	}
	if mail.Domain != "" {
		t.Errorf("Records[3].Domain = %s, want empty", mail.Domain)
	}
	if mail.Type != "Generic" {
		t.Errorf("Records[3].Type = %s, want Generic", mail.Type)
	}
	if !strings.Contains(mail.Tag, "mailto:team@example.com") {
		t.Errorf("Records[3].Tag = %q, want originating tag markup", mail.Tag)
	}
	if mail.Error != "Non-parsable URL" {
		t.Errorf("Records[3].Error = %q, want Non-parsable URL", mail.Error)
	}

	stats := result.Stats
	if stats.SeedsProcessed != 1 {
		t.Errorf("SeedsProcessed = %d, want 1", stats.SeedsProcessed)
	}
	if stats.ChildrenFetched != 4 {
		t.Errorf("ChildrenFetched = %d, want 4", stats.ChildrenFetched)
	}
	if stats.UniqueFetches != 5 {
		t.Errorf("UniqueFetches = %d, want 5 (seed plus four references)", stats.UniqueFetches)
	}
	if stats.RecordCount != 4 {
		t.Errorf("RecordCount = %d, want 4", stats.RecordCount)
	}
	if stats.BadLinks != 1 {
		t.Errorf("BadLinks = %d, want 1", stats.BadLinks)
	}
	if stats.Errors != 2 {
		t.Errorf("Errors = %d, want 2", stats.Errors)
	}

	// The CSV report carries the same rows under the configured columns.
	rows := parseCSV(t, buf.String())
	if len(rows) != 5 {
		t.Fatalf("csv rows = %d, want header plus 4 records", len(rows))
	}
	wantHeader := []string{"URL", "Domain", "Type", "Cache-Control", "Pragma", "Tag", "Error"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("csv header[%d] = %s, want %s", i, rows[0][i], col)
		}
	}
	if rows[1][3] != "max-age=3600" {
		t.Errorf("csv alpha Cache-Control = %q, want max-age=3600", rows[1][3])
	}
	if rows[3][6] != "HTTP status code is [404]" {
		t.Errorf("csv app.js error = %q", rows[3][6])
	}
	if !strings.Contains(rows[4][5], "mailto:team@example.com") {
		t.Errorf("csv mailto tag = %q, want originating markup", rows[4][5])
	}
}

func TestCrawler_Run_SeedWithoutReferences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		fmt.Fprint(w, "<html><body><p>nothing to follow</p></body></html>")
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := newRunCrawler(t, &buf)

	result, err := c.Run(context.Background(), []string{srv.URL})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Records) != 1 {
		t.Fatalf("Records = %d, want the seed itself", len(result.Records))
	}
	rec := result.Records[0]
	if rec.URL != srv.URL {
		t.Errorf("URL = %s, want %s", rec.URL, srv.URL)
	}
	if rec.Headers["Cache-Control"] != "no-store" {
		t.Errorf("Headers = %v, want Cache-Control captured", rec.Headers)
	}
	if rec.Tag != "" || rec.Error != "" {
		t.Errorf("Tag=%q Error=%q, want both empty", rec.Tag, rec.Error)
	}
}

func TestCrawler_Run_SeedFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := newRunCrawler(t, &buf)

	result, err := c.Run(context.Background(), []string{srv.URL})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Records) != 1 {
		t.Fatalf("Records = %d, want 1", len(result.Records))
	}
	if result.Records[0].Error != "HTTP status code is [500]" {
		t.Errorf("Error = %q, want HTTP status code is [500]", result.Records[0].Error)
	}
	if result.Stats.Errors != 1 {
		t.Errorf("Stats.Errors = %d, want 1", result.Stats.Errors)
	}
}

func TestCrawler_Run_InvalidSeed(t *testing.T) {
	var buf bytes.Buffer
	c := newRunCrawler(t, &buf)

	result, err := c.Run(context.Background(), []string{"not a url"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Records) != 1 {
		t.Fatalf("Records = %d, want 1", len(result.Records))
	}
	if result.Records[0].Error != "Non-parsable URL" {
		t.Errorf("Error = %q, want Non-parsable URL", result.Records[0].Error)
	}
}

func TestCrawler_Run_DuplicateReferencesFetchedOnce(t *testing.T) {
	var hits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="/dup.html">one</a>
<a href="/dup.html">two</a>
<a href="/dup.html">three</a>
</body></html>`)
	})
	mux.HandleFunc("/dup.html", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "<html><body>dup</body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var buf bytes.Buffer
	c := newRunCrawler(t, &buf)

	result, err := c.Run(context.Background(), []string{srv.URL})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
	if len(result.Records) != 3 {
		t.Fatalf("Records = %d, want one per occurrence", len(result.Records))
	}
	for i, rec := range result.Records {
		if rec.URL != srv.URL+"/dup.html" {
			t.Errorf("Records[%d].URL = %s", i, rec.URL)
		}
	}
	if result.Stats.DuplicatesSkipped != 2 {
		t.Errorf("DuplicatesSkipped = %d, want 2", result.Stats.DuplicatesSkipped)
	}
	if result.Stats.CacheHits != 2 {
		t.Errorf("CacheHits = %d, want 2", result.Stats.CacheHits)
	}
	if result.Stats.ChildrenFetched != 1 {
		t.Errorf("ChildrenFetched = %d, want 1", result.Stats.ChildrenFetched)
	}
}

func TestCrawler_Run_ExternalReferences(t *testing.T) {
	var extHits atomic.Int32
	ext := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		extHits.Add(1)
		w.Header().Set("Cache-Control", "public")
		fmt.Fprint(w, "body{}")
	}))
	defer ext.Close()

	newSeedServer := func() *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<html><head><link rel="stylesheet" href="%s/style.css"></head></html>`, ext.URL)
		}))
	}

	t.Run("excluded by default", func(t *testing.T) {
		srv := newSeedServer()
		defer srv.Close()
		extHits.Store(0)

		var buf bytes.Buffer
		c := newRunCrawler(t, &buf)

		result, err := c.Run(context.Background(), []string{srv.URL})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if got := extHits.Load(); got != 0 {
			t.Errorf("external server hits = %d, want 0", got)
		}
		// Dropping the only reference leaves the seed reporting itself.
		if len(result.Records) != 1 || result.Records[0].URL != srv.URL {
			t.Fatalf("Records = %+v, want just the seed", result.Records)
		}
		if result.Stats.ExternalsSkipped != 1 {
			t.Errorf("ExternalsSkipped = %d, want 1", result.Stats.ExternalsSkipped)
		}
	})

	t.Run("followed when allowed", func(t *testing.T) {
		srv := newSeedServer()
		defer srv.Close()
		extHits.Store(0)

		var buf bytes.Buffer
		c := newRunCrawler(t, &buf, WithAllowExternal(true))

		result, err := c.Run(context.Background(), []string{srv.URL})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if got := extHits.Load(); got != 1 {
			t.Errorf("external server hits = %d, want 1", got)
		}
		if len(result.Records) != 1 {
			t.Fatalf("Records = %d, want 1", len(result.Records))
		}
		rec := result.Records[0]
		if rec.URL != ext.URL+"/style.css" {
			t.Errorf("URL = %s, want %s/style.css", rec.URL, ext.URL)
		}
		if rec.Type != "Stylesheet" {
			t.Errorf("Type = %s, want Stylesheet", rec.Type)
		}
		if rec.Tag != "" {
			t.Errorf("Tag = %q, want empty for a resolved reference", rec.Tag)
		}
		if result.Stats.ExternalsSkipped != 0 {
			t.Errorf("ExternalsSkipped = %d, want 0", result.Stats.ExternalsSkipped)
		}
	})
}

func TestCrawler_Run_MultipleSeedsKeepOrderAndShareFetches(t *testing.T) {
	var sharedHits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/seed-a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/shared.html">s</a><a href="/a-only.html">a</a></body></html>`)
	})
	mux.HandleFunc("/seed-b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/b-only.html">b</a><a href="/shared.html">s</a></body></html>`)
	})
	mux.HandleFunc("/shared.html", func(w http.ResponseWriter, r *http.Request) {
		sharedHits.Add(1)
		fmt.Fprint(w, "<html>shared</html>")
	})
	mux.HandleFunc("/a-only.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>a</html>")
	})
	mux.HandleFunc("/b-only.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>b</html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var buf bytes.Buffer
	c := newRunCrawler(t, &buf)

	result, err := c.Run(context.Background(), []string{srv.URL + "/seed-a", srv.URL + "/seed-b"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantOrder := []string{
		srv.URL + "/shared.html",
		srv.URL + "/a-only.html",
		srv.URL + "/b-only.html",
		srv.URL + "/shared.html",
	}
	if len(result.Records) != len(wantOrder) {
		t.Fatalf("Records = %d, want %d", len(result.Records), len(wantOrder))
	}
	for i, want := range wantOrder {
		if result.Records[i].URL != want {
			t.Errorf("Records[%d].URL = %s, want %s", i, result.Records[i].URL, want)
		}
	}

	if got := sharedHits.Load(); got != 1 {
		t.Errorf("shared.html hits = %d, want 1", got)
	}
	if result.Stats.SeedsProcessed != 2 {
		t.Errorf("SeedsProcessed = %d, want 2", result.Stats.SeedsProcessed)
	}
	if result.Stats.ChildrenFetched != 3 {
		t.Errorf("ChildrenFetched = %d, want 3", result.Stats.ChildrenFetched)
	}
	if result.Stats.DuplicatesSkipped != 1 {
		t.Errorf("DuplicatesSkipped = %d, want 1", result.Stats.DuplicatesSkipped)
	}
}

func TestCrawler_Run_RecordOrderIndependentOfWorkers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="/one.html">1</a>
<a href="/two.html">2</a>
<img src="/three.png">
<a href="mailto:x@y">m</a>
<script src="/four.js"></script>
</body></html>`)
	})
	for _, path := range []string{"/one.html", "/two.html", "/three.png", "/four.js"} {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(5 * time.Millisecond)
			fmt.Fprint(w, "ok")
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sequence := func(workers int) []string {
		var buf bytes.Buffer
		c := newRunCrawler(t, &buf, WithWorkers(workers))
		result, err := c.Run(context.Background(), []string{srv.URL + "/"})
		if err != nil {
			t.Fatalf("Run() with %d workers error = %v", workers, err)
		}
		urls := make([]string, 0, len(result.Records))
		for _, rec := range result.Records {
			urls = append(urls, rec.URL)
		}
		return urls
	}

	single := sequence(1)
	pooled := sequence(8)

	if len(single) != 5 {
		t.Fatalf("records with 1 worker = %d, want 5", len(single))
	}
	if len(pooled) != len(single) {
		t.Fatalf("records with 8 workers = %d, want %d", len(pooled), len(single))
	}
	for i := range single {
		if single[i] != pooled[i] {
			t.Errorf("record %d differs: 1 worker got %s, 8 workers got %s", i, single[i], pooled[i])
		}
	}
}

func TestCrawler_Run_SuspendsFailingHost(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
<a href="%[1]s/one.html">1</a>
<a href="%[1]s/two.html">2</a>
<a href="%[1]s/three.html">3</a>
</body></html>`, deadURL)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := newRunCrawler(t, &buf,
		WithAllowExternal(true),
		WithWorkers(1),
		WithMaxHostFailures(1),
	)

	result, err := c.Run(context.Background(), []string{srv.URL})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Records) != 3 {
		t.Fatalf("Records = %d, want 3", len(result.Records))
	}
	if result.Records[0].Error == "" {
		t.Error("first fetch should carry a transport error")
	}
	for i := 1; i < 3; i++ {
		if !strings.Contains(result.Records[i].Error, "suspended") {
			t.Errorf("Records[%d].Error = %q, want host suspension", i, result.Records[i].Error)
		}
	}
	if result.Stats.Errors != 3 {
		t.Errorf("Stats.Errors = %d, want 3", result.Stats.Errors)
	}
}

// =============================================================================
// Output Mode Tests
// =============================================================================

func TestCrawler_Run_JSONResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>plain</body></html>")
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := newRunCrawler(t, &buf, WithOutputFormat(output.FormatJSON))

	if _, err := c.Run(context.Background(), []string{srv.URL}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var decoded output.RunResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshaling json output: %v", err)
	}
	if len(decoded.Seeds) != 1 || decoded.Seeds[0] != srv.URL {
		t.Errorf("Seeds = %v, want [%s]", decoded.Seeds, srv.URL)
	}
	if decoded.Stats.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want 1", decoded.Stats.RecordCount)
	}
	if len(decoded.Records) != 1 || decoded.Records[0].URL != srv.URL {
		t.Errorf("Records = %+v", decoded.Records)
	}
}

func TestCrawler_Run_JSONStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/x.html">x</a><a href="/y.html">y</a></body></html>`)
	})
	mux.HandleFunc("/x.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>x</html>")
	})
	mux.HandleFunc("/y.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>y</html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var buf bytes.Buffer
	c := newRunCrawler(t, &buf,
		WithOutputFormat(output.FormatJSON),
		WithStreamMode(true),
	)

	if _, err := c.Run(context.Background(), []string{srv.URL}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output lines = %d, want 2 record events plus the result", len(lines))
	}

	for _, line := range lines[:2] {
		var evt output.StreamEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			t.Fatalf("unmarshaling stream event: %v", err)
		}
		if evt.Type != "record" {
			t.Errorf("event type = %s, want record", evt.Type)
		}
	}

	var final output.RunResult
	if err := json.Unmarshal([]byte(lines[2]), &final); err != nil {
		t.Fatalf("unmarshaling final result: %v", err)
	}
	if final.Stats.RecordCount != 2 {
		t.Errorf("final RecordCount = %d, want 2", final.Stats.RecordCount)
	}
}

func TestCrawler_Run_WritesTimestampedFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>file output</body></html>")
	}))
	defer srv.Close()

	tmpDir := t.TempDir()
	c, err := New(
		WithWorkers(2),
		WithTimeout(5*time.Second),
		WithOutputDir(tmpDir),
		WithLogger(logger.New(logger.Config{Level: logger.FatalLevel})),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.Run(context.Background(), []string{srv.URL}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	path := c.OutputFile()
	if path == "" {
		t.Fatal("OutputFile() is empty for file output")
	}
	if !regexp.MustCompile(`^headers-\d{14}\.csv$`).MatchString(filepath.Base(path)) {
		t.Errorf("output file name = %s, want headers-<timestamp>.csv", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	rows := parseCSV(t, string(data))
	if len(rows) != 2 {
		t.Fatalf("csv rows = %d, want header plus the seed record", len(rows))
	}
	if rows[1][0] != srv.URL {
		t.Errorf("record URL = %s, want %s", rows[1][0], srv.URL)
	}
}

func TestCrawler_Run_InvalidFileName(t *testing.T) {
	c, err := New(
		WithFileName("waytoolongbasename.csv"),
		WithOutputDir(t.TempDir()),
		WithLogger(logger.New(logger.Config{Level: logger.FatalLevel})),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.Run(context.Background(), []string{"http://127.0.0.1:1/"})
	if err == nil || !strings.Contains(err.Error(), "file name") {
		t.Errorf("Run() error = %v, want file name rejection", err)
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestCrawler_Run_NoSeeds(t *testing.T) {
	c := newRunCrawler(t, &bytes.Buffer{})

	_, err := c.Run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "seed URL") {
		t.Errorf("Run() error = %v, want seed requirement", err)
	}
}

func TestCrawler_Run_AlreadyRunning(t *testing.T) {
	c := newRunCrawler(t, &bytes.Buffer{})
	c.running.Store(true)

	_, err := c.Run(context.Background(), []string{"http://example.com"})
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("Run() error = %v, want already-running rejection", err)
	}
}

func TestCrawler_Run_InvalidTag(t *testing.T) {
	c := newRunCrawler(t, &bytes.Buffer{}, WithTags("1bad"))

	_, err := c.Run(context.Background(), []string{"http://example.com"})
	if err == nil || !strings.Contains(err.Error(), "initializing parser") {
		t.Errorf("Run() error = %v, want parser rejection", err)
	}
}

func TestCrawler_Run_PreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newRunCrawler(t, &bytes.Buffer{})

	result, err := c.Run(ctx, []string{"http://127.0.0.1:1/"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Records) != 0 {
		t.Errorf("Records = %d, want 0 for a cancelled run", len(result.Records))
	}
}

func TestCrawler_Stop_CancelsRun(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="/s1.html">1</a><a href="/s2.html">2</a><a href="/s3.html">3</a>
<a href="/s4.html">4</a><a href="/s5.html">5</a><a href="/s6.html">6</a>
</body></html>`)
	})
	for _, p := range []string{"/s1.html", "/s2.html", "/s3.html", "/s4.html", "/s5.html", "/s6.html"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(release)

	c := newRunCrawler(t, &bytes.Buffer{}, WithWorkers(2))

	go func() {
		time.Sleep(100 * time.Millisecond)
		if err := c.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	}()

	start := time.Now()
	result, err := c.Run(context.Background(), []string{srv.URL})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed > 3*time.Second {
		t.Errorf("Run() took %v after Stop(), want a prompt return", elapsed)
	}
	// Abandoned fetches are dropped rather than reported half-done.
	if len(result.Records) >= 6 {
		t.Errorf("Records = %d, want fewer than the 6 references", len(result.Records))
	}
	if c.IsRunning() {
		t.Error("IsRunning() should be false after Run returns")
	}
}

func TestCrawler_Stop_NotRunning(t *testing.T) {
	c := newRunCrawler(t, &bytes.Buffer{})
	if err := c.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestCrawler_Run_ArchivesRunSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>archived</body></html>")
	}))
	defer srv.Close()

	archive := state.NewMemoryArchive()
	c := newRunCrawler(t, &bytes.Buffer{}, WithArchiveStore(archive))

	if _, err := c.Run(context.Background(), []string{srv.URL}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	runs, err := archive.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("archived runs = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.ID == "" {
		t.Error("archived run should carry an ID")
	}
	if len(run.Seeds) != 1 || run.Seeds[0] != srv.URL {
		t.Errorf("Seeds = %v, want [%s]", run.Seeds, srv.URL)
	}
	if run.Records != 1 {
		t.Errorf("Records = %d, want 1", run.Records)
	}
	if run.UniqueFetches != 1 {
		t.Errorf("UniqueFetches = %d, want 1", run.UniqueFetches)
	}
}

// =============================================================================
// Accessor Tests
// =============================================================================

func TestCrawler_MetricsSnapshot(t *testing.T) {
	bare := &Crawler{}
	if bare.MetricsSnapshot() != nil {
		t.Error("MetricsSnapshot() on a bare crawler should be nil")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>metrics</body></html>")
	}))
	defer srv.Close()

	c := newRunCrawler(t, &bytes.Buffer{})
	if _, err := c.Run(context.Background(), []string{srv.URL}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := c.MetricsSnapshot()
	if snap == nil {
		t.Fatal("MetricsSnapshot() is nil after a run")
	}
	if snap.SeedsProcessed != 1 {
		t.Errorf("SeedsProcessed = %d, want 1", snap.SeedsProcessed)
	}
	if snap.RequestsTotal < 1 {
		t.Errorf("RequestsTotal = %d, want at least 1", snap.RequestsTotal)
	}
}

func TestProgressTarget(t *testing.T) {
	tests := []struct {
		name  string
		seeds []string
		want  string
	}{
		{"single seed", []string{"http://a.test"}, "http://a.test"},
		{"several seeds", []string{"http://a.test", "http://b.test", "http://c.test"}, "http://a.test (+2 more)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progressTarget(tt.seeds); got != tt.want {
				t.Errorf("progressTarget() = %s, want %s", got, tt.want)
			}
		})
	}
}
