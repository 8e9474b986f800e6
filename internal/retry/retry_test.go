package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

type fakeSleeper struct {
	slept []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	return ctx.Err()
}

func testRunner(p Policy, classify Classifier) (*Runner, *fakeSleeper) {
	s := &fakeSleeper{}
	r := NewRunner(p, classify, nil)
	r.Sleep = s.sleep
	r.Jitter = func() time.Duration { return 0 }
	return r, s
}

func TestDoSucceedsFirstTry(t *testing.T) {
	r, s := testRunner(DefaultPolicy(), nil)
	stats, err := r.Do(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if stats.Attempts != 1 || stats.Retries != 0 {
		t.Errorf("stats = %+v, want 1 attempt 0 retries", stats)
	}
	if len(s.slept) != 0 {
		t.Errorf("slept %v, want nothing", s.slept)
	}
}

func TestDoDoublesDelay(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: time.Second}
	r, s := testRunner(p, nil)

	calls := 0
	_, err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 4 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(s.slept) != len(want) {
		t.Fatalf("slept %v, want %v", s.slept, want)
	}
	for i := range want {
		if s.slept[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, s.slept[i], want[i])
		}
	}
}

func TestDoCapsDelay(t *testing.T) {
	p := Policy{MaxRetries: 4, BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	r, s := testRunner(p, nil)

	_, _ = r.Do(context.Background(), func(context.Context) error { return errFlaky })
	for _, d := range s.slept {
		if d > 3*time.Second {
			t.Errorf("delay %v exceeds cap", d)
		}
	}
}

func TestDoBudgetExhausted(t *testing.T) {
	p := Policy{MaxRetries: 2, BaseDelay: time.Millisecond}
	r, _ := testRunner(p, nil)

	stats, err := r.Do(context.Background(), func(context.Context) error { return errFlaky })
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
	if !errors.Is(err, errFlaky) {
		t.Errorf("err = %v, should wrap the last failure", err)
	}
	var be *BudgetError
	if !errors.As(err, &be) || be.Retries != 2 {
		t.Errorf("BudgetError = %+v, want Retries 2", be)
	}
	if stats.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", stats.Attempts)
	}
}

func TestDoWaitDoesNotConsumeBudget(t *testing.T) {
	classify := func(err error) Action {
		return Action{Kind: Wait, Delay: 3 * time.Second}
	}
	p := Policy{MaxRetries: 0, BaseDelay: time.Second}
	r, s := testRunner(p, classify)

	var waited []time.Duration
	r.OnWait = func(d time.Duration) { waited = append(waited, d) }

	calls := 0
	stats, err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if stats.Retries != 0 || stats.Waits != 1 {
		t.Errorf("stats = %+v, want 0 retries 1 wait", stats)
	}
	if len(s.slept) != 1 || s.slept[0] != 3*time.Second {
		t.Errorf("slept %v, want [3s]", s.slept)
	}
	if len(waited) != 1 {
		t.Errorf("OnWait called %d times, want 1", len(waited))
	}
}

func TestDoStopReturnsImmediately(t *testing.T) {
	perm := errors.New("forbidden")
	classify := func(err error) Action { return Action{Kind: Stop} }
	r, s := testRunner(DefaultPolicy(), classify)

	stats, err := r.Do(context.Background(), func(context.Context) error { return perm })
	if !errors.Is(err, perm) {
		t.Fatalf("err = %v, want %v", err, perm)
	}
	if errors.Is(err, ErrBudgetExhausted) {
		t.Error("stop should not report budget exhaustion")
	}
	if stats.Attempts != 1 || len(s.slept) != 0 {
		t.Errorf("stats = %+v slept = %v, want single attempt", stats, s.slept)
	}
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, _ := testRunner(DefaultPolicy(), nil)

	_, err := r.Do(ctx, func(context.Context) error {
		cancel()
		return errFlaky
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("sleepContext(0) = %v", err)
	}
}
