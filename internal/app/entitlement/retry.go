// internal/app/entitlement/retry.go
package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/commonward/communitygate/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// defaultBackoff is the pause before the single retry of a transient
// store failure.
const defaultBackoff = 250 * time.Millisecond

// callStore runs one single-document read with the short timeout,
// retrying once after a short backoff when the failure looks transient.
// Domain errors (sentinels from the store packages) pass through
// untouched; anything else is wrapped as ErrStoreUnavailable.
func callStore[T any](ctx context.Context, log *zap.Logger, backoff time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	return callStoreBudget(ctx, log, backoff, op, timeouts.Short, fn)
}

// callStoreWrite is callStore with the medium timeout, for writes and
// multi-step operations (create membership, resolve-or-create household).
func callStoreWrite[T any](ctx context.Context, log *zap.Logger, backoff time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	return callStoreBudget(ctx, log, backoff, op, timeouts.Medium, fn)
}

func callStoreBudget[T any](ctx context.Context, log *zap.Logger, backoff time.Duration, op string, budget func() time.Duration, fn func(context.Context) (T, error)) (T, error) {
	run := func() (T, error) {
		opCtx, cancel := context.WithTimeout(ctx, budget())
		defer cancel()
		return fn(opCtx)
	}

	out, err := run()
	if err == nil || domainErr(err) {
		return out, err
	}

	log.Warn("store call failed, retrying once",
		zap.String("op", op),
		zap.Error(err))

	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, ctx.Err())
	}

	out, err = run()
	if err == nil || domainErr(err) {
		return out, err
	}
	var zero T
	return zero, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
