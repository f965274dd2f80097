package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// retryStage runs one external decision call under the stage timeout and
// retries it with exponential backoff. Only upstream failures are retried;
// anything else stops immediately. A cancelled caller gets ctx.Err() back
// as is, not as an upstream failure.
func retryStage[T any](ctx context.Context, e *Engine, stage string, call func(context.Context) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		attempt++
		if attempt > 1 {
			e.metrics.RecordRetry(stage)
		}

		sctx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
		defer cancel()
		v, err := call(sctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = state.Upstream(fmt.Errorf("%s timed out after %s: %w", stage, e.cfg.StageTimeout, err))
		}
		if !errors.Is(err, state.ErrUpstream) {
			return v, backoff.Permanent(err)
		}
		e.logger.Warn("Upstream call failed",
			"stage", stage,
			"attempt", attempt,
			"error", err)
		return v, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.Backoff
	b.MaxInterval = 8 * e.cfg.Backoff
	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(e.cfg.MaxRetries+1),
	)
	if err != nil && ctx.Err() != nil {
		return v, ctx.Err()
	}
	return v, err
}
