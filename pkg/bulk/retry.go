// SPDX-License-Identifier: MPL-2.0

package bulk

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// retryWithBackoff runs op up to maxRetries+1 times with exponential backoff
// plus random jitter (base * 2^(attempt-1) + rand(0, jitterMax) before each
// retry). It checks ctx.Err() between retries to respect cancellation
// immediately, preventing wasted work when the caller has already abandoned
// the operation.
//
// op returns (shouldRetry bool, err error). If shouldRetry is false, err is
// returned immediately (nil on success, non-nil on permanent failure). The
// returned count is the number of retries performed (zero when the first
// attempt settles the outcome).
func retryWithBackoff(
	ctx context.Context,
	maxRetries int,
	base time.Duration,
	jitterMax time.Duration,
	op func(attempt int) (retry bool, err error),
) (retries int, err error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return attempt - 1, fmt.Errorf("retry aborted: %w", err)
			}
			delay := base * time.Duration(1<<(attempt-1))
			if jitterMax > 0 {
				delay += time.Duration(rand.Int63n(int64(jitterMax)))
			}
			time.Sleep(delay)
		}

		retry, err := op(attempt)
		if err == nil {
			return attempt, nil
		}
		if !retry {
			return attempt, err
		}
		lastErr = err
	}
	return maxRetries, lastErr
}
