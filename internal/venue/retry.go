package venue

import (
	"context"

	"spreadwatch/internal/errs"
	"spreadwatch/logger"
)

// restRetries is the hard cap on request-level retries. Retries are
// immediate, not backed off.
const restRetries = 5

// DoWithRetry runs fn until it succeeds, returns a fatal error, or exhausts
// the retry cap. fn is expected to return classified errors: transient ones
// are retried in place, fatal ones abort, anything else (and an exhausted
// budget) degrades to SourceUnavailable.
func DoWithRetry[T any](ctx context.Context, log *logger.Entry, source string, fn func() (T, error)) (T, error) {
	var zero T
	var last error
	for attempt := 1; attempt <= restRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if errs.IsFatal(err) {
			return zero, err
		}
		if !errs.IsTransient(err) {
			return zero, &errs.SourceUnavailable{Source: source, Err: err}
		}
		last = err
		log.WithError(err).WithFields(logger.Fields{
			"source":  source,
			"attempt": attempt,
		}).Warn("transient upstream error, retrying")
	}
	return zero, &errs.SourceUnavailable{Source: source, Err: last}
}
