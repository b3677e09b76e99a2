package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/metrics"
	"github.com/ferreirogomes/nftmarket/storage"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 20 * time.Millisecond
)

// retryPolicy reruns a transaction that lost a serialization race.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func newRetryPolicy(attempts int) retryPolicy {
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	return retryPolicy{attempts: attempts, backoff: defaultRetryBackoff}
}

func (p retryPolicy) run(ctx context.Context, log logrus.FieldLogger, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = fn()
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		if attempt == p.attempts {
			break
		}
		metrics.RecordConflictRetry()
		log.WithError(err).WithField("attempt", attempt).Warn("transaction conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
