package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/timoknapp/gulfer/pkg/logger"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 50 * time.Millisecond
)

// RetryPolicy bounds the read-back verification loop.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy is used when a store is built without one.
var DefaultRetryPolicy = RetryPolicy{Attempts: defaultRetryAttempts, Delay: defaultRetryDelay}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	delay := p.Delay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
}

// DeleteVerified deletes a key and reads it back. The delete counts as done as
// soon as the key is confirmed absent, even if the delete call itself
// reported an error.
func DeleteVerified(ctx context.Context, b Backend, bucket, key string, p RetryPolicy) error {
	op := func() error {
		delErr := b.Delete(bucket, key)
		_, found, getErr := b.Get(bucket, key)
		if getErr == nil && !found {
			return nil
		}
		if delErr != nil {
			return delErr
		}
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%s/%s still present after delete", bucket, key)
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("Delete of %s/%s not confirmed, retrying in %s: %v", bucket, key, wait, err)
	}
	if err := backoff.RetryNotify(op, p.backOff(ctx), notify); err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", ErrStorage, bucket, key, err)
	}
	return nil
}

// PutVerified writes a value and reads it back until the stored bytes match.
func PutVerified(ctx context.Context, b Backend, bucket, key string, value []byte, p RetryPolicy) error {
	op := func() error {
		putErr := b.Put(bucket, key, value)
		got, found, getErr := b.Get(bucket, key)
		if getErr == nil && found && bytes.Equal(got, value) {
			return nil
		}
		if putErr != nil {
			return putErr
		}
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%s/%s not readable after write", bucket, key)
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("Write of %s/%s not confirmed, retrying in %s: %v", bucket, key, wait, err)
	}
	if err := backoff.RetryNotify(op, p.backOff(ctx), notify); err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", ErrStorage, bucket, key, err)
	}
	return nil
}
