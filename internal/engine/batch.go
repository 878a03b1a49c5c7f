package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one independent run in a batch.
type Job struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url"  yaml:"url"`
	Goal string `mapstructure:"goal" yaml:"goal"`

	Options RunOptions `mapstructure:"-" yaml:"-"`
}

// BatchResult pairs a job with its outcome. Err holds only configuration
// errors; crawl failures live in Result.Summary.
type BatchResult struct {
	Job    Job
	Result *Result
	Err    error
}

// RunBatch runs jobs with at most concurrency in flight and returns results
// in job order. Jobs share nothing but the engine's collaborators, so a job
// that fails to start does not affect the others.
func (e *Engine) RunBatch(ctx context.Context, jobs []Job, concurrency int) []BatchResult {
	results := make([]BatchResult, len(jobs))
	if concurrency < 1 {
		concurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			res, err := e.Run(ctx, job.URL, job.Goal, job.Options)
			results[i] = BatchResult{Job: job, Result: res, Err: err}
			if err != nil {
				e.logger.Warn("batch job rejected", "job", job.Name, "url", job.URL, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
