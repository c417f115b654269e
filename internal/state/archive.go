// Package state tracks per-run fetch state and archives finished runs.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// CrawlRun is the archived summary of one finished crawl.
type CrawlRun struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Seeds         []string  `json:"seeds"`
	OutputFile    string    `json:"output_file"`
	Records       int       `json:"records"`
	Failures      int       `json:"failures"`
	UniqueFetches int       `json:"unique_fetches"`
	AllowExternal bool      `json:"allow_external"`
}

// Archive persists run summaries across invocations.
type Archive interface {
	SaveRun(run *CrawlRun) error
	ListRuns() ([]*CrawlRun, error)
	Close() error
}

// BoltArchive implements Archive using BoltDB.
type BoltArchive struct {
	db   *bolt.DB
	path string
}

// NewBoltArchive opens (creating if needed) the archive at path.
func NewBoltArchive(path string) (*BoltArchive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltArchive{db: db, path: path}, nil
}

// SaveRun stores a run summary. Runs keyed by start time list back in
// chronological order.
func (a *BoltArchive) SaveRun(run *CrawlRun) error {
	if run.ID == "" {
		run.ID = run.StartedAt.UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	return a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(run.ID), data)
	})
}

// ListRuns returns every archived run in key order.
func (a *BoltArchive) ListRuns() ([]*CrawlRun, error) {
	var runs []*CrawlRun

	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.ForEach(func(_, v []byte) error {
			var run CrawlRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, &run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return runs, nil
}

// Close closes the database.
func (a *BoltArchive) Close() error {
	return a.db.Close()
}

// MemoryArchive implements Archive in memory.
type MemoryArchive struct {
	mu   sync.Mutex
	runs []*CrawlRun
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

// SaveRun appends a run summary.
func (a *MemoryArchive) SaveRun(run *CrawlRun) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if run.ID == "" {
		run.ID = run.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	a.runs = append(a.runs, run)
	return nil
}

// ListRuns returns the stored runs in insertion order.
func (a *MemoryArchive) ListRuns() ([]*CrawlRun, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*CrawlRun, len(a.runs))
	copy(out, a.runs)
	return out, nil
}

// Close is a no-op for MemoryArchive.
func (a *MemoryArchive) Close() error {
	return nil
}
