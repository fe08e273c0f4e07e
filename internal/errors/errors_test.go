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

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
	}{
		{"config code", ErrCodeConfigInvalid, CategoryConfig},
		{"io code", ErrCodeCorruptIndex, CategoryIO},
		{"provider code", ErrCodeProviderTransient, CategoryProvider},
		{"validation code", ErrCodeInvalidInput, CategoryValidation},
		{"internal code", ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestNew_TransientProviderIsRetryable(t *testing.T) {
	err := New(ErrCodeProviderTransient, "rate limited", nil)
	assert.True(t, err.Retryable)
	assert.True(t, IsRetryable(err))
}

func TestNew_PermanentProviderIsNotRetryable(t *testing.T) {
	err := New(ErrCodeProviderPermanent, "invalid model", nil)
	assert.False(t, err.Retryable)
	assert.False(t, IsRetryable(err))
}

func TestCredentialsError_IsFatal(t *testing.T) {
	err := CredentialsError("OPENAI_API_KEY is not set")
	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestUnwrap_PreservesCause(t *testing.T) {
	cause := errors.New("disk exploded")
	err := Wrap(ErrCodeCorruptIndex, cause)
	assert.ErrorIs(t, err, cause)
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeCorruptIndex, "one", nil)
	b := New(ErrCodeCorruptIndex, "two", nil)
	assert.True(t, errors.Is(a, b))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeDocumentRead, "unreadable", nil).
		WithDetail("document_id", "ABC-123").
		WithSuggestion("check database access")
	assert.Equal(t, "ABC-123", err.Details["document_id"])
	assert.Equal(t, "check database access", err.Suggestion)
}

func TestIsTransientStatus(t *testing.T) {
	assert.True(t, IsTransientStatus(429))
	assert.True(t, IsTransientStatus(500))
	assert.True(t, IsTransientStatus(503))
	assert.False(t, IsTransientStatus(400))
	assert.False(t, IsTransientStatus(401))
	assert.False(t, IsTransientStatus(200))
}

func TestIsTransient_MessageHeuristics(t *testing.T) {
	assert.True(t, IsTransient(errors.New("model is overloaded, try later")))
	assert.True(t, IsTransient(errors.New("429 Too Many Requests")))
	assert.True(t, IsTransient(errors.New("quota exceeded for project")))
	assert.False(t, IsTransient(errors.New("invalid API key")))
	assert.False(t, IsTransient(nil))
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("rate limit exceeded")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("still broken")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetryIf_PermanentErrorSkipsBackoff(t *testing.T) {
	cfg := DefaultRetryConfig()

	permanent := PermanentProvider("bad request", nil)
	attempts := 0
	start := time.Now()
	err := RetryIf(context.Background(), cfg, func() error {
		attempts++
		return permanent
	}, IsRetryable)

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, permanent)
	// Would have slept >=1s if the permanent error had been retried.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetry_BackoffDelaysAccumulate(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	start := time.Now()
	_ = Retry(context.Background(), cfg, func() error {
		return errors.New("overloaded")
	})

	// 20ms + 40ms of backoff at minimum.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRetry_ContextCancellation(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Retry(ctx, cfg, func() error {
		return errors.New("timeout waiting for provider")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithResult_ReturnsSuccessfulValue(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     8 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	got, err := RetryWithResult(context.Background(), cfg, func() ([]float32, error) {
		attempts++
		if attempts < 2 {
			return nil, fmt.Errorf("resource exhausted")
		}
		return []float32{0.1, 0.2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, got)
	assert.Equal(t, 2, attempts)
}
