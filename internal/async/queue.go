// Package async runs pipeline jobs on a bounded worker pool and hands results
// back through per-job channels.
package async

import (
	"context"
	"time"

	"github.com/joseph-ayodele/pdftables/internal/pipeline"
)

// Runner executes one job. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
}

// Outcome is delivered exactly once on the channel returned by Submit.
type Outcome struct {
	Result   pipeline.Result
	Err      error
	Queued   time.Duration // time spent waiting for a worker
	Duration time.Duration // time spent running
}

type Queue interface {
	Submit(ctx context.Context, job pipeline.Job) (<-chan Outcome, error)
	Shutdown(ctx context.Context)
}
