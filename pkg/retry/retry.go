package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/alisonjoe/unsplash-downloader/pkg/errors"
	"github.com/alisonjoe/unsplash-downloader/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// ExhaustedError reports that the attempt budget was spent without success
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Retries reports how many retries preceded err. Errors that failed on the
// first attempt, or were never retried, report zero.
func Retries(err error) int {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) && exhausted.Attempts > 0 {
		return exhausted.Attempts - 1
	}
	return 0
}

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func() (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Context for cancellation
	Context context.Context
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		OnRetry:     nil,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf is the default retry predicate
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *apperrors.Error
	if errors.As(err, &apiErr) {
		return apperrors.IsRetryable(apiErr.Type)
	}

	// Context errors are never retried
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Default to retrying unknown errors
	return true
}

// Do executes an operation with retry logic
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	attempt := 0

	for {
		attempt++

		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   attempt - 1,
					"last_error": lastErr.Error(),
				})
			}
			return &ExhaustedError{Attempts: attempt - 1, Err: lastErr}
		}

		err := op()
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		lastErr = err

		if !cfg.RetryIf(err) {
			if cfg.Logger != nil {
				cfg.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return err
		}

		delay := cfg.Backoff.NextDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": cfg.MaxAttempts,
			})
		}

		if err := Wait(cfg.Context, delay); err != nil {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("retry cancelled", map[string]interface{}{
					"attempt": attempt,
					"reason":  err.Error(),
				})
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, cfg)

	return result, err
}

// APIRetrier retries API operations with a backoff chosen per error type.
// Rate limit errors back off far longer than transient network errors.
type APIRetrier struct {
	maxAttempts int
	backoffs    *ErrorTypeBackoff
	logger      logger.Logger
	// OnRetry is invoked before each retry with the computed delay
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NewAPIRetrier creates a retrier for API calls. The attempt budget is
// always bounded; a non-positive value falls back to the default.
func NewAPIRetrier(maxAttempts int, log logger.Logger) *APIRetrier {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &APIRetrier{
		maxAttempts: maxAttempts,
		backoffs:    NewErrorTypeBackoff(),
		logger:      log,
	}
}

// WithBackoffs replaces the per-error-type backoff table
func (r *APIRetrier) WithBackoffs(backoffs *ErrorTypeBackoff) *APIRetrier {
	r.backoffs = backoffs
	return r
}

// errorAwareBackoff delegates to the strategy matching the last seen error
// type. The Do loop computes the delay after the operation returned, so the
// recorded type is always current.
type errorAwareBackoff struct {
	backoffs *ErrorTypeBackoff
	lastType apperrors.ErrorType
}

func (b *errorAwareBackoff) NextDelay(attempt int) time.Duration {
	return b.backoffs.GetBackoffForError(string(b.lastType)).NextDelay(attempt)
}

func (b *errorAwareBackoff) Reset() {}

// Do executes an operation, picking a backoff strategy from the type of
// the last error before each wait.
func (r *APIRetrier) Do(ctx context.Context, op Operation) error {
	b := &errorAwareBackoff{backoffs: r.backoffs}

	wrapped := func() error {
		err := op()
		if err != nil {
			var apiErr *apperrors.Error
			if errors.As(err, &apiErr) {
				b.lastType = apiErr.Type
			} else {
				b.lastType = apperrors.ErrorTypeUnknown
			}
		}
		return err
	}

	return Do(wrapped, &Config{
		MaxAttempts: r.maxAttempts,
		Backoff:     b,
		RetryIf:     DefaultRetryIf,
		Context:     ctx,
		Logger:      r.logger,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			if r.OnRetry != nil {
				r.OnRetry(attempt, err, delay)
			}
		},
	})
}
