package prefetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/asset-agent/pkg/cache"
)

var (
	prefetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_prefetch_duration_seconds",
		Help:    "Duration of manifest prefetch batches",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	prefetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_prefetch_failures_total",
		Help: "Total number of failed manifest prefetch batches",
	})
)

// ErrFetchFailed wraps every manifest fetch failure.
var ErrFetchFailed = errors.New("manifest fetch failed")

// FetchError describes the manifest URL that failed a batch.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: fetch %s: %v", ErrFetchFailed, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: fetch %s: status %d", ErrFetchFailed, e.URL, e.StatusCode)
}

// Unwrap lets errors.Is match both ErrFetchFailed and the transport error.
func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFetchFailed, e.Err}
	}
	return []error{ErrFetchFailed}
}

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests
	MaxConcurrency int
	// Timeout per URL fetch
	Timeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 6,
		Timeout:        15 * time.Second,
	}
}

// BatchFetcher fetches a manifest in parallel
type BatchFetcher struct {
	client *http.Client
	config Config
	logger zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(client *http.Client, config Config, logger zerolog.Logger) *BatchFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 6
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		client: client,
		config: config,
		logger: logger,
	}
}

// Resolve turns manifest entries into absolute URLs, keeping their order.
func Resolve(base *url.URL, manifest []string) ([]*url.URL, error) {
	out := make([]*url.URL, 0, len(manifest))
	for _, raw := range manifest {
		ref, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse manifest entry %q: %w", raw, err)
		}
		if !ref.IsAbs() {
			if base == nil {
				return nil, fmt.Errorf("relative manifest entry %q needs a base URL", raw)
			}
			ref = base.ResolveReference(ref)
		}
		out = append(out, ref)
	}
	return out, nil
}

// FetchAll fetches every manifest URL and returns one record per entry in
// manifest order. Any failure cancels the outstanding fetches and returns
// no records.
func (bf *BatchFetcher) FetchAll(ctx context.Context, base *url.URL, manifest []string) ([]cache.Record, error) {
	start := time.Now()
	defer func() {
		prefetchDuration.Observe(time.Since(start).Seconds())
	}()

	urls, err := Resolve(base, manifest)
	if err != nil {
		prefetchFailures.Inc()
		return nil, err
	}

	bf.logger.Info().
		Int("urls", len(urls)).
		Int("concurrency", bf.config.MaxConcurrency).
		Msg("Starting manifest prefetch")

	records := make([]cache.Record, len(urls))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for i, u := range urls {
		g.Go(func() error {
			rec, err := bf.fetchOne(gCtx, u)
			if err != nil {
				bf.logger.Warn().Err(err).Str("url", u.String()).Msg("Manifest fetch failed")
				return err
			}
			records[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		prefetchFailures.Inc()
		return nil, err
	}

	bf.logger.Info().
		Int("urls", len(urls)).
		Dur("duration", time.Since(start)).
		Msg("Manifest prefetch complete")

	return records, nil
}

// AddAll fetches the manifest and stores it in c with a single PutAll.
func (bf *BatchFetcher) AddAll(ctx context.Context, c cache.Cache, base *url.URL, manifest []string) error {
	records, err := bf.FetchAll(ctx, base, manifest)
	if err != nil {
		return err
	}
	if err := c.PutAll(ctx, records); err != nil {
		return fmt.Errorf("store manifest in %q: %w", c.Name(), err)
	}
	return nil
}

func (bf *BatchFetcher) fetchOne(ctx context.Context, u *url.URL) (cache.Record, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return cache.Record{}, &FetchError{URL: u.String(), Err: err}
	}

	resp, err := bf.client.Do(req)
	if err != nil {
		return cache.Record{}, &FetchError{URL: u.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return cache.Record{}, &FetchError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return cache.Record{}, &FetchError{URL: u.String(), Err: err}
	}
	entry.URL = u.String()

	return cache.Record{Key: cache.KeyFor(http.MethodGet, u), Entry: entry}, nil
}
