package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sriharshay/web-resource-processor/internal/output"
)

// Config holds all crawl settings. The zero value is not usable; start
// from DefaultConfig and override.
type Config struct {
	// Worker pool and per-request limits.
	Workers int           `json:"workers" yaml:"workers"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Response headers to capture into records, in the caller's spelling.
	AllowedHeaders []string `json:"response_headers" yaml:"response_headers"`

	// Markup tags whose references are extracted from pages.
	Tags []string `json:"tags" yaml:"tags"`

	// AllowExternal keeps references to foreign origins instead of
	// dropping them.
	AllowExternal bool `json:"allow_external" yaml:"allow_external"`

	// Retries after the first attempt for transport failures. HTTP error
	// statuses are results and are never retried.
	Retries int `json:"retries" yaml:"retries"`

	// MaxHostFailures is the consecutive transport failure count after
	// which a host is suspended for the breaker cooldown. Zero disables
	// host suspension.
	MaxHostFailures int `json:"max_host_failures" yaml:"max_host_failures"`

	SkipTLSVerify bool `json:"skip_tls_verify" yaml:"skip_tls_verify"`

	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Output    OutputConfig    `json:"output" yaml:"output"`

	// Archive is the path of the run archive database. Empty disables
	// archiving.
	Archive string `json:"archive,omitempty" yaml:"archive,omitempty"`

	ShowProgress bool `json:"show_progress" yaml:"show_progress"`
	Verbose      bool `json:"verbose" yaml:"verbose"`
	Debug        bool `json:"debug" yaml:"debug"`
}

// RateLimitConfig paces outbound requests. A zero RequestsPerSecond
// disables pacing.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// OutputConfig shapes the report file.
type OutputConfig struct {
	Format   string `json:"format" yaml:"format"`
	FileName string `json:"file_name" yaml:"file_name"`
	Dir      string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Pretty   bool   `json:"pretty" yaml:"pretty"`
	Stream   bool   `json:"stream" yaml:"stream"`
}

// DefaultConfig returns the stock configuration: eight workers, a 15
// second request timeout, cache headers captured, and the common
// reference-bearing tags inspected.
func DefaultConfig() *Config {
	return &Config{
		Workers:         8,
		Timeout:         15 * time.Second,
		AllowedHeaders:  []string{"Cache-Control", "Pragma"},
		Tags:            []string{"a", "link", "script", "source", "img"},
		AllowExternal:   false,
		Retries:         0,
		MaxHostFailures: 0,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0,
			Burst:             1,
		},
		Output: OutputConfig{
			Format:   output.FormatCSV,
			FileName: "headers.csv",
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file. Values not
// present in the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()

	if yamlErr := yaml.Unmarshal(data, config); yamlErr != nil {
		config = DefaultConfig()
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, yamlErr)
		}
	}

	return config, nil
}

// SaveToFile writes the configuration to a file. The extension picks the
// encoding: .yaml/.yml for YAML, anything else JSON.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if len(c.Tags) == 0 {
		return fmt.Errorf("at least one tag is required")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries cannot be negative, got %d", c.Retries)
	}
	if c.MaxHostFailures < 0 {
		return fmt.Errorf("max host failures cannot be negative, got %d", c.MaxHostFailures)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %v", c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1, got %d", c.RateLimit.Burst)
	}
	if c.Output.Format != output.FormatCSV && c.Output.Format != output.FormatJSON {
		return fmt.Errorf("unsupported output format %q", c.Output.Format)
	}
	if c.Output.FileName == "" {
		return fmt.Errorf("output file name is required")
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		clone := *c
		return &clone
	}

	clone := &Config{}
	if err := json.Unmarshal(data, clone); err != nil {
		shallow := *c
		return &shallow
	}
	return clone
}
