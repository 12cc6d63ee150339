package retry

import (
	"sync/atomic"
	"time"
)

type retryStats struct {
	totalAttempts           atomic.Int64
	successfulRetries       atomic.Int64
	failedRetries           atomic.Int64
	successfulFirstAttempts atomic.Int64
	maxBackoff              atomic.Int64 // nanoseconds
}

// Stats is a snapshot of retry activity.
type Stats struct {
	TotalAttempts     int64         `json:"total_attempts"`
	SuccessfulRetries int64         `json:"successful_retries"`
	FailedRetries     int64         `json:"failed_retries"`
	AverageAttempts   float64       `json:"average_attempts"`
	MaxBackoff        time.Duration `json:"max_backoff"`
}

func (r *Retrier) recordBackoff(backoff time.Duration) {
	n := backoff.Nanoseconds()
	for {
		current := r.stats.maxBackoff.Load()
		if n <= current || r.stats.maxBackoff.CompareAndSwap(current, n) {
			return
		}
	}
}

// Stats returns the current counters.
func (r *Retrier) Stats() Stats {
	totalAttempts := r.stats.totalAttempts.Load()
	successfulRetries := r.stats.successfulRetries.Load()
	failedRetries := r.stats.failedRetries.Load()
	firstAttempts := r.stats.successfulFirstAttempts.Load()

	averageAttempts := 1.0
	if total := firstAttempts + successfulRetries + failedRetries; total > 0 {
		averageAttempts = float64(totalAttempts) / float64(total)
	}

	return Stats{
		TotalAttempts:     totalAttempts,
		SuccessfulRetries: successfulRetries,
		FailedRetries:     failedRetries,
		AverageAttempts:   averageAttempts,
		MaxBackoff:        time.Duration(r.stats.maxBackoff.Load()),
	}
}
