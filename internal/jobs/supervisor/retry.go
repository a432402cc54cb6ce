package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/yungbote/exampaper-backend/internal/observability"
	"github.com/yungbote/exampaper-backend/internal/pkg/httpx"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
)

type transient interface {
	Transient() bool
}

// Retryable reports whether a failed collaborator call may be attempted
// again. Validation failures never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || apierr.Is(err, apierr.KindInvalidInput) {
		return false
	}
	var pe *panicError
	if errors.As(err, &pe) {
		return false
	}
	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	if st, ok := grpcstatus.FromError(err); ok && st.Code() != codes.OK {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
			return true
		default:
			return false
		}
	}
	return httpx.IsRetryableError(err)
}

// backoff doubles base per attempt up to max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	return d
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }

type outcome string

const (
	outcomeCompleted outcome = "completed"
	outcomeFailed    outcome = "failed"
	outcomeTimeout   outcome = "timeout"
	outcomeCancelled outcome = "cancelled"
)

type stageResult struct {
	Outcome  outcome
	Reason   string
	Err      error
	Attempts int
	Duration time.Duration
}

// runStage runs fn under one deadline covering every attempt. Each attempt
// runs on its own goroutine so a collaborator that ignores ctx cannot hold
// the stage past its deadline.
func runStage[T any](s *Supervisor, ctx context.Context, stage string, timeout time.Duration, fn func(context.Context) (T, error)) (T, stageResult) {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		zero T
		res  stageResult
	)
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		out, err := runAttempt(stageCtx, fn)
		if err == nil {
			res.Outcome = outcomeCompleted
			res.Duration = time.Since(start)
			return out, res
		}
		res.Err = err
		if stageCtx.Err() != nil || attempt >= s.cfg.MaxAttempts || !Retryable(err) {
			break
		}
		delay := httpx.JitterSleep(backoff(s.cfg.RetryBaseDelay, s.cfg.RetryMaxDelay, attempt))
		s.log.Warn("Stage attempt failed, retrying",
			"stage", stage,
			"attempt", attempt,
			"max_attempts", s.cfg.MaxAttempts,
			"delay", delay.String(),
			"error", err,
		)
		observability.Current().IncStageRetry(stage)
		if sleepErr := httpx.SleepContext(stageCtx, delay); sleepErr != nil {
			break
		}
	}

	res.Duration = time.Since(start)
	switch {
	case ctx.Err() != nil:
		res.Outcome = outcomeCancelled
		res.Reason = "cancelled: " + ctx.Err().Error()
	case errors.Is(stageCtx.Err(), context.DeadlineExceeded):
		res.Outcome = outcomeTimeout
		res.Reason = fmt.Sprintf("Timeout: %s exceeded %s", stage, timeout)
	default:
		res.Outcome = outcomeFailed
		res.Reason = res.Err.Error()
	}
	return zero, res
}

type attemptResult[T any] struct {
	out T
	err error
}

// runAttempt runs fn once, converting a panic into an error. If ctx ends
// first the attempt is abandoned and its result discarded.
func runAttempt[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	done := make(chan attemptResult[T], 1)
	go func() {
		var r attemptResult[T]
		defer func() {
			if v := recover(); v != nil {
				r.err = &panicError{Val: v}
			}
			done <- r
		}()
		r.out, r.err = fn(ctx)
	}()
	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
