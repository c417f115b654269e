package output

import (
	"encoding/csv"
	"io"
	"sync"
)

// CSVWriter writes records as CSV rows. The column layout is the three
// fixed identity columns, then one column per captured header in the
// caller's order, then the provenance tag and error columns.
type CSVWriter struct {
	mu          sync.Mutex
	writer      io.Writer
	csv         *csv.Writer
	columns     []string
	wroteHeader bool
	closed      bool
}

// NewCSVWriter creates a new CSV writer with the given header columns.
func NewCSVWriter(w io.Writer, headerColumns []string) *CSVWriter {
	columns := make([]string, len(headerColumns))
	copy(columns, headerColumns)

	return &CSVWriter{
		writer:  w,
		csv:     csv.NewWriter(w),
		columns: columns,
	}
}

// WriteRecord writes a single record row, emitting the header row first
// if it has not been written yet.
func (c *CSVWriter) WriteRecord(rec *Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	if err := c.ensureHeader(); err != nil {
		return err
	}
	return c.writeRow(rec)
}

// WriteResult writes the header row and every record in the result.
func (c *CSVWriter) WriteResult(res *RunResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	if err := c.ensureHeader(); err != nil {
		return err
	}
	for _, rec := range res.Records {
		if err := c.writeRow(rec); err != nil {
			return err
		}
	}
	return nil
}

func (c *CSVWriter) ensureHeader() error {
	if c.wroteHeader {
		return nil
	}

	row := make([]string, 0, len(c.columns)+5)
	row = append(row, "URL", "Domain", "Type")
	row = append(row, c.columns...)
	row = append(row, "Tag", "Error")

	if err := c.csv.Write(row); err != nil {
		return err
	}
	c.wroteHeader = true
	return nil
}

func (c *CSVWriter) writeRow(rec *Record) error {
	row := make([]string, 0, len(c.columns)+5)
	row = append(row, rec.URL, rec.Domain, rec.Type)
	for _, col := range c.columns {
		row = append(row, rec.Headers[col])
	}
	row = append(row, rec.Tag, rec.Error)

	return c.csv.Write(row)
}

// Flush flushes buffered rows to the underlying writer.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.csv.Flush()
	if err := c.csv.Error(); err != nil {
		return err
	}
	if flusher, ok := c.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close flushes and closes the writer.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.csv.Flush()
	if err := c.csv.Error(); err != nil {
		return err
	}
	if closer, ok := c.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
