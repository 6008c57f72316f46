package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "transient", CategoryTransient.String())
	assert.Equal(t, "permanent", CategoryPermanent.String())
	assert.Equal(t, "revisable", CategoryRevisable.String())
	assert.Equal(t, "contract", CategoryContract.String())
	assert.Equal(t, "unknown", Category(99).String())
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryPermanent},
		{"plain", errors.New("x"), CategoryPermanent},
		{"spawn", &ProcessError{Op: "spawn", ExitCode: -1}, CategoryTransient},
		{"exit", fmt.Errorf("wrapped: %w", &ProcessError{Op: "exit", ExitCode: 2}), CategoryTransient},
		{"timeout", &TimeoutError{Operation: "invoke", Duration: "2m"}, CategoryTransient},
		{"deadline", context.DeadlineExceeded, CategoryTransient},
		{"canceled", context.Canceled, CategoryPermanent},
		{"rate limited", &HTTPError{StatusCode: 429}, CategoryTransient},
		{"server", &HTTPError{StatusCode: 502}, CategoryTransient},
		{"auth", &HTTPError{StatusCode: 401}, CategoryPermanent},
		{"structural", &StructuralError{Phase: "outline"}, CategoryRevisable},
		{"schema", &SchemaViolationError{Schema: "arcs"}, CategoryContract},
		{"explicit", Permanent(&ProcessError{Op: "exit"}, "forced"), CategoryPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsRetryable(&TimeoutError{}))
	assert.True(t, IsRevisable(&StructuralError{}))
	assert.True(t, IsContract(&SchemaViolationError{}))
	assert.False(t, IsRetryable(&SchemaViolationError{}))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "worker exit failed (exit 2): bad flag",
		(&ProcessError{Op: "exit", ExitCode: 2, Stderr: "  bad flag\n"}).Error())
	assert.Equal(t, "worker spawn failed (exit -1): not found",
		(&ProcessError{Op: "spawn", ExitCode: -1, Err: errors.New("not found")}).Error())
	assert.Equal(t, "arcs failed structural checks: no arcs; unknown character",
		(&StructuralError{Phase: "arcs", Issues: []string{"no arcs", "unknown character"}}).Error())
	assert.Equal(t, "output does not match schema outline: /title: required",
		(&SchemaViolationError{Schema: "outline", Issues: []string{"/title: required"}}).Error())
	assert.Equal(t, "HTTP 429 at /v1/chat: slow down",
		(&HTTPError{StatusCode: 429, Endpoint: "/v1/chat", Message: "slow down"}).Error())

	cat := Transient(errors.New("boom"), "invoke")
	cat.Retries = 3
	assert.Equal(t, "invoke: boom (category: transient, attempts: 3)", cat.Error())
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var waits []time.Duration
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		waits = append(waits, wait)
	}

	v, n, err := Retry(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ProcessError{Op: "exit", ExitCode: 1}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, n)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	_, n, err := Retry(context.Background(), fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("bad config")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, n)
	assert.Equal(t, CategoryPermanent, Categorize(err))
}

func TestRetry_Exhausted(t *testing.T) {
	procErr := &ProcessError{Op: "exit", ExitCode: 7, Stderr: "model overloaded"}
	_, n, err := Retry(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		return 0, procErr
	})

	require.Error(t, err)
	assert.Equal(t, 3, n)

	var got *ProcessError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 7, got.ExitCode)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, _, err := Retry(context.Background(), RetryConfig{}, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CustomRetryable(t *testing.T) {
	cfg := fastRetry(2)
	cfg.Retryable = func(error) bool { return true }
	calls := 0
	_, n, err := Retry(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, n)
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour}

	_, n, err := Retry(ctx, cfg, func(context.Context) (int, error) {
		cancel()
		return 0, &TimeoutError{Operation: "invoke", Duration: "1s"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryConfig_Delay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, cfg.Delay(1))
	assert.Equal(t, 2*time.Second, cfg.Delay(2))
	assert.Equal(t, 4*time.Second, cfg.Delay(3))
	assert.Equal(t, 5*time.Second, cfg.Delay(4))
	assert.Equal(t, 5*time.Second, cfg.Delay(40))

	uncapped := RetryConfig{BaseDelay: time.Millisecond}
	assert.Equal(t, 8*time.Millisecond, uncapped.Delay(4))
}

func TestJittered_OnlyLengthens(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := jittered(base, 0.5)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+50*time.Millisecond)
	}
	assert.Equal(t, base, jittered(base, 0))
}
