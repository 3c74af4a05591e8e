package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hamed0406/hostsweep/internal/domain"
)

// Checker performs a single reachability check against a host.
//
// Implementations never return an error: every failure path (resolution error,
// refused connection, expired deadline, even a panic) is folded into the
// returned ProbeOutcome.
type Checker interface {
	Check(ctx context.Context, host domain.Host) domain.ProbeOutcome
}

// CheckerFunc adapts a plain function to the Checker interface.
type CheckerFunc func(ctx context.Context, host domain.Host) domain.ProbeOutcome

func (f CheckerFunc) Check(ctx context.Context, host domain.Host) domain.ProbeOutcome {
	return f(ctx, host)
}

// bound runs fn under timeout and converts its result into an outcome.
//
// The caller stops waiting as soon as the deadline passes, even if fn ignores
// its context; fn is left to finish in the background and its late result is
// dropped. A nil error from fn is Success, with the returned string as reason.
func bound(ctx context.Context, timeout time.Duration, fn func(context.Context) (string, error)) domain.ProbeOutcome {
	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		reason string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("probe panic: %v", p)}
			}
		}()
		reason, err := fn(ctx)
		done <- result{reason: reason, err: err}
	}()

	select {
	case r := <-done:
		latency := time.Since(start)
		if r.err == nil {
			return domain.Success(latency, r.reason)
		}
		if isTimeout(r.err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Timeout(latency)
		}
		return domain.Failure(latency, r.err.Error())
	case <-ctx.Done():
		return fromContext(ctx, time.Since(start))
	}
}

func fromContext(ctx context.Context, latency time.Duration) domain.ProbeOutcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.Timeout(latency)
	}
	return domain.Failure(latency, "cancelled")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
