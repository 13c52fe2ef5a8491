package worker

import (
	"context"
	"time"

	"github.com/antonkozlov/imgmatch/internal/common"
)

// retryPolicy drives in-process retries of transient failures: exponential
// backoff from the initial delay, capped at the maximum, for at most Limit
// retries after the first attempt. Exhausting the budget dead-letters the
// job.
type retryPolicy struct {
	Limit          int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func retryPolicyFromConfig(cfg common.WorkerConfig) retryPolicy {
	p := retryPolicy{
		Limit:          cfg.RetryLimit,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = time.Second
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// Backoff returns the delay before retry number attempt (zero-based).
func (p retryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
