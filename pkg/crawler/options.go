package crawler

import (
	"io"
	"time"

	"github.com/sriharshay/web-resource-processor/internal/logger"
	"github.com/sriharshay/web-resource-processor/internal/metrics"
	"github.com/sriharshay/web-resource-processor/internal/state"
)

// Option configures a Crawler during construction.
type Option func(*Crawler) error

// WithConfig replaces the entire configuration.
func WithConfig(config *Config) Option {
	return func(c *Crawler) error {
		if config != nil {
			c.config = config
		}
		return nil
	}
}

// WithWorkers sets the concurrent fetch worker count.
func WithWorkers(n int) Option {
	return func(c *Crawler) error {
		if n < 1 {
			n = 1
		}
		c.config.Workers = n
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Crawler) error {
		c.config.Timeout = timeout
		return nil
	}
}

// WithResponseHeaders sets the response headers captured into records.
// The caller's spelling is preserved in the output.
func WithResponseHeaders(names ...string) Option {
	return func(c *Crawler) error {
		if len(names) > 0 {
			c.config.AllowedHeaders = names
		}
		return nil
	}
}

// WithTags sets the markup tags whose references are extracted.
func WithTags(tags ...string) Option {
	return func(c *Crawler) error {
		if len(tags) > 0 {
			c.config.Tags = tags
		}
		return nil
	}
}

// WithAllowExternal keeps references to foreign origins.
func WithAllowExternal(allow bool) Option {
	return func(c *Crawler) error {
		c.config.AllowExternal = allow
		return nil
	}
}

// WithRateLimit paces outbound requests. Zero requests per second
// disables pacing.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Crawler) error {
		if requestsPerSecond < 0 {
			requestsPerSecond = 0
		}
		if burst < 1 {
			burst = 1
		}
		c.config.RateLimit.RequestsPerSecond = requestsPerSecond
		c.config.RateLimit.Burst = burst
		return nil
	}
}

// WithRetries sets how many times a transport failure is retried.
func WithRetries(n int) Option {
	return func(c *Crawler) error {
		if n < 0 {
			n = 0
		}
		c.config.Retries = n
		return nil
	}
}

// WithMaxHostFailures sets the consecutive failure count that suspends a
// host. Zero disables host suspension.
func WithMaxHostFailures(n int) Option {
	return func(c *Crawler) error {
		if n < 0 {
			n = 0
		}
		c.config.MaxHostFailures = n
		return nil
	}
}

// WithSkipTLSVerify disables TLS certificate verification.
func WithSkipTLSVerify(skip bool) Option {
	return func(c *Crawler) error {
		c.config.SkipTLSVerify = skip
		return nil
	}
}

// WithOutputFormat sets the report encoding, csv or json.
func WithOutputFormat(format string) Option {
	return func(c *Crawler) error {
		c.config.Output.Format = format
		return nil
	}
}

// WithFileName sets the requested output file name. The written file gets
// a timestamp spliced in before the extension.
func WithFileName(name string) Option {
	return func(c *Crawler) error {
		c.config.Output.FileName = name
		return nil
	}
}

// WithOutputDir sets the directory the report is written into.
func WithOutputDir(dir string) Option {
	return func(c *Crawler) error {
		c.config.Output.Dir = dir
		return nil
	}
}

// WithPrettyOutput indents JSON output.
func WithPrettyOutput(pretty bool) Option {
	return func(c *Crawler) error {
		c.config.Output.Pretty = pretty
		return nil
	}
}

// WithStreamMode emits JSON records as they are produced in addition to
// the final result. Ignored for CSV output.
func WithStreamMode(stream bool) Option {
	return func(c *Crawler) error {
		c.config.Output.Stream = stream
		return nil
	}
}

// WithOutput redirects the report to w instead of a file.
func WithOutput(w io.Writer) Option {
	return func(c *Crawler) error {
		c.outputWriter = w
		return nil
	}
}

// WithArchive persists run summaries to the database at path.
func WithArchive(path string) Option {
	return func(c *Crawler) error {
		c.config.Archive = path
		return nil
	}
}

// WithArchiveStore uses an already constructed archive instead of opening
// one from the configured path.
func WithArchiveStore(archive state.Archive) Option {
	return func(c *Crawler) error {
		c.archive = archive
		return nil
	}
}

// WithProgress shows a live progress display on stderr.
func WithProgress(show bool) Option {
	return func(c *Crawler) error {
		c.config.ShowProgress = show
		return nil
	}
}

// WithVerbose enables informational logging.
func WithVerbose(verbose bool) Option {
	return func(c *Crawler) error {
		c.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables debug logging.
func WithDebug(debug bool) Option {
	return func(c *Crawler) error {
		c.config.Debug = debug
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Crawler) error {
		c.logger = l
		return nil
	}
}

// WithLogLevel sets the log level on the crawler's logger.
func WithLogLevel(level logger.Level) Option {
	return func(c *Crawler) error {
		if c.logger != nil {
			c.logger.SetLevel(level)
		}
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) error {
		c.metrics = m
		return nil
	}
}
