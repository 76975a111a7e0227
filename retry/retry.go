// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package retry runs calls to external services with a per-attempt timeout
// and exponential backoff between attempts.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when a policy allows no attempts.
var ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

// Policy controls how an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int

	// BaseDelay is the wait before the second attempt; it doubles after each retry.
	BaseDelay time.Duration

	// Timeout bounds each attempt. Zero means attempts inherit the caller's deadline only.
	Timeout time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error except cancellation of the caller's context.
	Retryable func(error) bool
}

// Once is the external-call policy: one retry after a short backoff.
func Once(timeout time.Duration) Policy {
	return Policy{Attempts: 2, BaseDelay: 250 * time.Millisecond, Timeout: timeout}
}

// Do runs op under the policy. Each attempt receives a context bounded by
// Timeout. The error of the last attempt is returned if all attempts fail.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.Attempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = runAttempt(ctx, p.Timeout, op)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		// The caller gave up; per-attempt deadlines are still retryable.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", p.Attempts, "error", lastErr)

		if attempt == p.Attempts {
			break
		}

		// Exponential backoff: baseDelay * 2^(attempt-1)
		delay := p.BaseDelay << (attempt - 1)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// WithBackoff retries operation with exponential backoff and no per-attempt timeout.
// maxAttempts: maximum number of attempts (must be > 0)
// baseDelay: base delay between retries (doubles on each retry)
func WithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	return Do(ctx, Policy{Attempts: maxAttempts, BaseDelay: baseDelay}, func(context.Context) error {
		return operation()
	})
}

func runAttempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
