package stats

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// RawRecord is one upstream record of unknown shape, as decoded from JSON.
type RawRecord map[string]any

// Source produces one named collection of raw records.
type Source func(ctx context.Context) ([]RawRecord, error)

// FetchResult is the outcome of fetching one named source. Either Records
// or Err is set, never both.
type FetchResult struct {
	Records []RawRecord
	Err     error
}

// OK reports whether the source produced a collection.
func (r FetchResult) OK() bool {
	return r.Err == nil
}

// Fetcher issues a set of named source requests concurrently and collects
// every outcome. One source failing never prevents the others from
// returning data; failures are logged and reported per name, not raised.
type Fetcher struct {
	log *zap.Logger
}

// NewFetcher constructs a Fetcher logging with the provided logger.
func NewFetcher(log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{log: log}
}

// FetchAll runs every source concurrently and waits until all have settled.
// Sources mapped to nil are reported as absent (ok with no records), so
// optional collections can be left unwired.
func (f *Fetcher) FetchAll(ctx context.Context, sources map[string]Source) map[string]FetchResult {
	results := make(map[string]FetchResult, len(sources))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, source := range sources {
		if source == nil {
			results[name] = FetchResult{}
			continue
		}
		wg.Add(1)
		go func(name string, source Source) {
			defer wg.Done()
			records, err := source(ctx)
			if err != nil {
				f.log.Warn("collection fetch failed",
					zap.String("source", name),
					zap.Error(err))
			}
			mu.Lock()
			if err != nil {
				results[name] = FetchResult{Err: err}
			} else {
				results[name] = FetchResult{Records: records}
			}
			mu.Unlock()
		}(name, source)
	}
	wg.Wait()

	return results
}
