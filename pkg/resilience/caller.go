package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
)

// RetryPolicy is an explicit retry configuration, invoked imperatively by
// the caller rather than hidden behind decorators.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      bool
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries transient failures up to three attempts with
// exponential backoff: 1s base, doubling, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
		Retryable:   IsTransient,
	}
}

// IsTransient reports whether err is a timeout or connection failure, the
// only error kinds worth retrying. Validation and schema errors propagate
// immediately.
func IsTransient(err error) bool {
	return errors.Is(err, contractx.ErrTimeout) || errors.Is(err, contractx.ErrConnection)
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.Jitter && d > 0 {
		d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
	}
	return d
}

// Caller executes operations against external dependencies with a
// concurrency slot, a wall-clock timeout, and retries per policy.
type Caller struct {
	limiters *LimiterSet
	policy   RetryPolicy
	timeout  time.Duration
}

func NewCaller(limiters *LimiterSet, policy RetryPolicy, timeout time.Duration) *Caller {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	return &Caller{limiters: limiters, policy: policy, timeout: timeout}
}

// Do runs op under the caller's resilience envelope. The concurrency slot is
// released on every exit path. On timeout the caller detaches from op; the
// underlying call may keep running in the background when the transport has
// no cancel primitive, which is an accepted limitation since no local state
// is mutated before confirmation.
func Do[T any](ctx context.Context, c *Caller, class Class, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return fn(ctx)
	}

	var lastErr error
	for n := 1; n <= c.policy.MaxAttempts; n++ {
		out, err := attempt(ctx, c, class, op, n, fn)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !c.policy.Retryable(err) || n == c.policy.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			break
		}

		wait := c.policy.delay(n)
		log.Warn().
			Str("class", string(class)).
			Str("op", op).
			Int("attempt", n).
			Dur("backoff", wait).
			Err(err).
			Msg("retrying after transient failure")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

// DoErr is Do for operations with no result.
func DoErr(ctx context.Context, c *Caller, class Class, op string, fn func(context.Context) error) error {
	_, err := Do(ctx, c, class, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func attempt[T any](ctx context.Context, c *Caller, class Class, op string, n int, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	limiter := c.limiters.For(class)
	if err := limiter.Acquire(ctx); err != nil {
		return zero, err
	}
	defer limiter.Release()

	callCtx := ctx
	cancel := func() {}
	if c.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	defer cancel()

	log.Debug().
		Str("class", string(class)).
		Str("op", op).
		Int("attempt", n).
		Msg("call started")

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		v, err := fn(callCtx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			err := classify(out.err, op, c.timeout)
			log.Warn().
				Str("class", string(class)).
				Str("op", op).
				Int("attempt", n).
				Dur("elapsed", time.Since(start)).
				Err(err).
				Msg("call failed")
			return zero, err
		}
		log.Debug().
			Str("class", string(class)).
			Str("op", op).
			Int("attempt", n).
			Dur("elapsed", time.Since(start)).
			Msg("call completed")
		return out.val, nil

	case <-callCtx.Done():
		// Abandon the in-flight goroutine; it drains into the buffered
		// channel when the underlying call eventually returns.
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err := fmt.Errorf("%w: %s exceeded %s", contractx.ErrTimeout, op, c.timeout)
			log.Warn().
				Str("class", string(class)).
				Str("op", op).
				Int("attempt", n).
				Dur("timeout", c.timeout).
				Msg("call timed out")
			return zero, err
		}
		return zero, ctx.Err()
	}
}

// classify maps transport-level failures onto the shared sentinels so the
// retry predicate can recognize them.
func classify(err error, op string, timeout time.Duration) error {
	if errors.Is(err, contractx.ErrTimeout) || errors.Is(err, contractx.ErrConnection) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s exceeded %s", contractx.ErrTimeout, op, timeout)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %s: %v", contractx.ErrTimeout, op, err)
		}
		return fmt.Errorf("%w: %s: %v", contractx.ErrConnection, op, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %s: %v", contractx.ErrConnection, op, err)
	}
	return err
}
