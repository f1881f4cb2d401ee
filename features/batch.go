package features

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/setforge/liveset/logging"
)

// BatchResult pairs one project path with its extraction outcome.
// Exactly one of Features and Err is set.
type BatchResult struct {
	ProjectPath string
	Features    *ProjectFeatureVector
	Err         error
}

// ExtractBatchFeatures extracts feature vectors for many projects with
// bounded parallelism. Results are index-aligned with paths; a failed
// project carries its error in the result instead of aborting the
// batch. The context cancels in-flight work.
func (e *Extractor) ExtractBatchFeatures(ctx context.Context, paths []string, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	logger := e.logger.WithFields(logging.Fields{
		"function":    "ExtractBatchFeatures",
		"projects":    len(paths),
		"concurrency": concurrency,
	})
	logger.Debug("Starting batch feature extraction")

	results := make([]BatchResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			select {
			case <-ctx.Done():
				results[i] = BatchResult{ProjectPath: path, Err: ctx.Err()}
				return ctx.Err()
			default:
			}

			features, err := e.ExtractProjectFeatures(path, nil, nil, nil)
			results[i] = BatchResult{ProjectPath: path, Features: features, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("batch extraction canceled: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Debug("Batch feature extraction completed", logging.Fields{
		"succeeded": len(results) - failed,
		"failed":    failed,
	})

	return results, nil
}
