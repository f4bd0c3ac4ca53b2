package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Snapshot runs a one-shot connector call with the failure-interception
// contract: cancellation and upstream failures both degrade to the zero
// payload, never to an error or a panic in the caller.
func Snapshot[T any](ctx context.Context, logger *slog.Logger, op string, call func(context.Context) (T, error)) T {
	var zero T

	v, err := protect(ctx, op, func(ctx context.Context) (T, error) { return call(ctx) })
	if err != nil {
		if !canceled(ctx, err) {
			logger.Warn("connector call failed", "op", op, "error", err)
		}
		return zero
	}
	return v
}

// Stream runs a continuous connector call. Cancellation ends it with nil;
// any other failure is returned for publication on the error subject.
func Stream(ctx context.Context, op string, call func(context.Context) error) error {
	_, err := protect(ctx, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	})
	if canceled(ctx, err) {
		return nil
	}
	return err
}

// Poll implements a streaming method by periodic snapshots: fetch every
// interval, emit each result. Fetch or emit failure terminates the poll.
func Poll[T any](ctx context.Context, interval time.Duration, fetch func(context.Context) (T, error), emit func(T) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		v, err := fetch(ctx)
		if err != nil {
			return err
		}
		if err := emit(v); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// protect converts panics inside connector code into ordinary errors so a
// malformed exchange response cannot take down the calling component.
func protect[T any](ctx context.Context, op string, call func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
	}()
	return call(ctx)
}

func canceled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil
}
