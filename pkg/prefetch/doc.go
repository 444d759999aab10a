// Package prefetch implements the add-all primitive used during install:
// fetch every manifest URL, then store all responses in one write.
//
// Example usage:
//
//	fetcher := prefetch.NewBatchFetcher(http.DefaultClient, prefetch.DefaultConfig(), logger)
//	if err := fetcher.AddAll(ctx, generation, baseURL, registry.Manifest()); err != nil {
//		// nothing was written to generation
//	}
//
// The batch fetcher:
//   - Resolves relative manifest entries against the application base URL
//   - Fetches with a bounded worker pool (default 6 workers)
//   - Fails the whole batch on the first transport error or non-2xx status
//   - Writes nothing unless every URL was fetched
package prefetch
