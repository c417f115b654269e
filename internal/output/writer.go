// Package output provides output formatting for the crawler.
package output

import (
	"fmt"
	"io"
	"regexp"
	"time"
)

// Supported output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Writer defines the interface for output writers.
type Writer interface {
	// WriteRecord writes a single record (for streaming)
	WriteRecord(rec *Record) error

	// WriteResult writes the complete run result
	WriteResult(res *RunResult) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format string
	Pretty bool
	Stream bool

	// HeaderColumns are the captured header names, in the order the
	// caller asked for them. Only the CSV writer uses them.
	HeaderColumns []string
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, config Config) Writer {
	switch config.Format {
	case FormatJSON:
		return NewJSONWriter(w, config.Pretty, config.Stream)
	default:
		return NewCSVWriter(w, config.HeaderColumns)
	}
}

// Output names must start with a short word-character base followed by
// the format extension. The timestamped name keeps reruns from
// overwriting each other.
var (
	csvNamePattern  = regexp.MustCompile(`^([\w-]{1,12})(.csv)`)
	jsonNamePattern = regexp.MustCompile(`^([\w-]{1,12})(.json)`)
)

// DeriveFilename validates the requested output name and returns the
// timestamped file name a run should write to, such as
// headers-20260101120000.csv.
func DeriveFilename(name, format string, now time.Time) (string, error) {
	pattern, ext := csvNamePattern, "csv"
	if format == FormatJSON {
		pattern, ext = jsonNamePattern, "json"
	}

	m := pattern.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("file name %q should be in the format <base>.%s with a base of at most 12 word characters", name, ext)
	}
	return fmt.Sprintf("%s-%s.%s", m[1], now.Format("20060102150405"), ext), nil
}
