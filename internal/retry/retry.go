package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrBudgetExhausted is matched (via errors.Is) by errors returned when an
// operation kept failing after MaxRetries backoff retries.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// BudgetError carries the last failure of an operation that ran out of retries.
type BudgetError struct {
	Retries int
	Err     error
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("retry budget exhausted after %d retries: %v", e.Retries, e.Err)
}

func (e *BudgetError) Unwrap() []error {
	return []error{ErrBudgetExhausted, e.Err}
}

// Policy configures exponential backoff for transient failures.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns the policy used when configuration leaves it unset.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Minute,
	}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxDelay
	if p.MaxDelay <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	} else if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Kind tells the runner how to react to a failed attempt.
type Kind int

const (
	// Backoff retries after the next exponential delay and consumes budget.
	Backoff Kind = iota
	// Wait sleeps for a server-imposed delay and retries without consuming budget.
	Wait
	// Stop returns the error as is.
	Stop
)

// Action is the classification of a single failure.
type Action struct {
	Kind  Kind
	Delay time.Duration
}

// Classifier maps an operation error to an Action.
type Classifier func(error) Action

// Stats describes what happened across all attempts of one Do call.
type Stats struct {
	Attempts int
	Retries  int
	Waits    int
	Slept    time.Duration
}

// Runner executes operations under a Policy.
type Runner struct {
	Policy   Policy
	Classify Classifier
	// Sleep blocks for d or until ctx is done. Defaults to a timer select.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter is added to server-imposed waits. Defaults to [0, 1s).
	Jitter func() time.Duration
	// OnWait is called before sleeping on a Wait action.
	OnWait func(d time.Duration)
	Logger *zap.Logger
}

// NewRunner creates a runner with default sleep and jitter behavior.
func NewRunner(p Policy, classify Classifier, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Policy:   p,
		Classify: classify,
		Sleep:    sleepContext,
		Jitter:   defaultJitter,
		Logger:   logger,
	}
}

// Do runs op until it succeeds, the classifier says stop, ctx is cancelled,
// or the backoff budget is exhausted.
func (r *Runner) Do(ctx context.Context, op func(ctx context.Context) error) (Stats, error) {
	var stats Stats
	b := r.Policy.backOff()
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for {
		stats.Attempts++
		err := op(ctx)
		if err == nil {
			return stats, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, ctxErr
		}

		action := Action{Kind: Backoff}
		if r.Classify != nil {
			action = r.Classify(err)
		}

		switch action.Kind {
		case Stop:
			return stats, err
		case Wait:
			d := action.Delay
			if r.Jitter != nil {
				d += r.Jitter()
			}
			stats.Waits++
			r.logger().Info("rate limited, waiting",
				zap.Duration("wait", d), zap.Int("attempt", stats.Attempts))
			if r.OnWait != nil {
				r.OnWait(d)
			}
			if err := sleep(ctx, d); err != nil {
				return stats, err
			}
			stats.Slept += d
			continue
		}

		if stats.Retries >= r.Policy.MaxRetries {
			r.logger().Warn("giving up", zap.Int("retries", stats.Retries), zap.Error(err))
			return stats, &BudgetError{Retries: stats.Retries, Err: err}
		}
		stats.Retries++
		d := b.NextBackOff()
		r.logger().Warn("transient failure, backing off",
			zap.Error(err), zap.Duration("delay", d),
			zap.Int("retry", stats.Retries), zap.Int("max_retries", r.Policy.MaxRetries))
		if err := sleep(ctx, d); err != nil {
			return stats, err
		}
		stats.Slept += d
	}
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func defaultJitter() time.Duration {
	return time.Duration(rand.Int64N(int64(time.Second)))
}
