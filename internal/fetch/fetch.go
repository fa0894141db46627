// Package fetch downloads hourly snapshot files for one day partition from
// the remote sample source into a blob store.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"adsb_pipeline/internal/blobstore"
)

// Outcome classifies the retrieval attempt for a single candidate file.
type Outcome string

const (
	// OutcomeAvailable means the remote source returned the file (HTTP 200)
	// and it was written to the blob store.
	OutcomeAvailable Outcome = "available"
	// OutcomeUnavailable covers everything else: non-200 status, transport
	// error, timeout, or a blob store write failure. Unavailable files are
	// skipped, never retried.
	OutcomeUnavailable Outcome = "unavailable"
)

// FileResult records the outcome of one candidate file.
type FileResult struct {
	Name    string
	Outcome Outcome
	Reason  string
}

// Config holds fetcher settings.
type Config struct {
	BaseURL string        // remote source root, e.g. https://samples.adsbexchange.com/readsb-hist
	Day     time.Time     // which day partition to fetch
	Timeout time.Duration // per-file request timeout
}

// Fetcher retrieves hourly snapshot files and writes them to a blob store.
type Fetcher struct {
	blobs     blobstore.Store
	client    *http.Client
	baseURL   string
	datePath  string
	partition string
}

// New creates a Fetcher writing into blobs under the day's partition prefix.
func New(blobs blobstore.Store, cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		blobs:     blobs,
		client:    &http.Client{Timeout: timeout},
		baseURL:   cfg.BaseURL,
		datePath:  cfg.Day.Format("2006/01/02"),
		partition: Partition(cfg.Day),
	}
}

// Partition returns the blob store prefix for a day, e.g. "day=20231101".
func Partition(day time.Time) string {
	return "day=" + day.Format("20060102")
}

// candidateNames returns the canonical hourly file names in ascending order.
func candidateNames() []string {
	names := make([]string, 0, 24)
	for hour := 0; hour < 24; hour++ {
		names = append(names, fmt.Sprintf("%02d0000Z.json.gz", hour))
	}
	return names
}

// Fetch clears the partition and downloads candidate files in ascending hour
// order until limit files have been written or candidates are exhausted.
// Per-file failures are recorded as unavailable outcomes, never returned as
// errors; only a failure to clear the partition aborts the run, since stale
// files from a prior run must not linger.
func (f *Fetcher) Fetch(ctx context.Context, limit int) (int, []FileResult, error) {
	if err := f.blobs.DeleteAll(ctx, f.partition); err != nil {
		return 0, nil, fmt.Errorf("clear partition %s: %w", f.partition, err)
	}

	written := 0
	var results []FileResult
	for _, name := range candidateNames() {
		if written >= limit {
			break
		}
		results = append(results, f.fetchOne(ctx, name, &written))
	}

	log.Printf("fetch: partition=%s written=%d attempted=%d", f.partition, written, len(results))
	return written, results, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, name string, written *int) FileResult {
	url := fmt.Sprintf("%s/%s/%s", f.baseURL, f.datePath, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FileResult{Name: name, Outcome: OutcomeUnavailable, Reason: err.Error()}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return FileResult{Name: name, Outcome: OutcomeUnavailable, Reason: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return FileResult{Name: name, Outcome: OutcomeUnavailable, Reason: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return FileResult{Name: name, Outcome: OutcomeUnavailable, Reason: err.Error()}
	}

	if err := f.blobs.Put(ctx, f.partition+"/"+name, data); err != nil {
		return FileResult{Name: name, Outcome: OutcomeUnavailable, Reason: err.Error()}
	}

	*written++
	return FileResult{Name: name, Outcome: OutcomeAvailable}
}
