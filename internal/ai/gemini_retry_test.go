package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bosocmputer/invoice_labeler/internal/common"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

var fastRetry = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    time.Millisecond,
	MaxDelay:        5 * time.Millisecond,
	BackoffMultiple: 2,
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  string
		retryable bool
		status    int
	}{
		{name: "rate limit", err: &googleapi.Error{Code: 429}, category: CategoryRateLimit, retryable: true, status: http.StatusTooManyRequests},
		{name: "server error", err: &googleapi.Error{Code: 503}, category: CategoryServerError, retryable: true, status: http.StatusBadGateway},
		{name: "wrapped unauthorized", err: fmt.Errorf("call: %w", &googleapi.Error{Code: 401}), category: CategoryUnauthorized, status: http.StatusBadGateway},
		{name: "too large", err: &googleapi.Error{Code: 413}, category: CategoryPayloadTooLarge, status: http.StatusRequestEntityTooLarge},
		{name: "deadline", err: context.DeadlineExceeded, category: CategoryTimeout, retryable: true, status: http.StatusGatewayTimeout},
		{name: "canceled", err: fmt.Errorf("x: %w", context.Canceled), category: CategoryCanceled, status: http.StatusBadGateway},
		{name: "quota text", err: errors.New("daily quota reached"), category: CategoryQuotaExceeded, status: http.StatusTooManyRequests},
		{name: "connection text", err: errors.New("connection reset by peer"), category: CategoryNetwork, retryable: true, status: http.StatusBadGateway},
		{name: "unknown", err: errors.New("boom"), category: CategoryUnknown, status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := categorizeError(providerGemini, tt.err)
			require.NotNil(t, pe)
			assert.Equal(t, tt.category, pe.Category)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.Equal(t, tt.status, pe.HTTPStatus())
			assert.NotEmpty(t, pe.Suggestion())
		})
	}

	assert.Nil(t, categorizeError(providerGemini, nil))
}

func TestCallWithRetry_RecoversFromServerError(t *testing.T) {
	reqCtx := common.NewRequestContext("test")
	calls := 0
	want := &genai.GenerateContentResponse{}

	resp, err := callWithRetry(context.Background(), providerGemini, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		calls++
		if calls < 3 {
			return nil, &googleapi.Error{Code: 503}
		}
		return want, nil
	}, nil, reqCtx, fastRetry)

	require.NoError(t, err)
	assert.Same(t, want, resp)
	assert.Equal(t, 3, calls)
}

func TestCallWithRetry_StopsOnNonRetryable(t *testing.T) {
	reqCtx := common.NewRequestContext("test")
	calls := 0

	_, err := callWithRetry(context.Background(), providerGemini, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		calls++
		return nil, &googleapi.Error{Code: 400}
	}, nil, reqCtx, fastRetry)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CategoryBadRequest, pe.Category)
	assert.Equal(t, 1, calls)
}

func TestCallWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	reqCtx := common.NewRequestContext("test")
	calls := 0

	_, err := callWithRetry(context.Background(), providerGemini, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		calls++
		return nil, &googleapi.Error{Code: 500}
	}, nil, reqCtx, fastRetry)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CategoryServerError, pe.Category)
	assert.Equal(t, 3, calls)
}

type countingLimiter struct {
	waits int
	err   error
}

func (c *countingLimiter) Wait(ctx context.Context) error {
	c.waits++
	return c.err
}

func TestCallWithRetry_WaitsOnLimiter(t *testing.T) {
	reqCtx := common.NewRequestContext("test")
	limiter := &countingLimiter{}

	_, err := callWithRetry(context.Background(), providerGemini, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{}, nil
	}, limiter, reqCtx, fastRetry)
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.waits)

	limiter.err = context.Canceled
	_, err = callWithRetry(context.Background(), providerGemini, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		t.Fatal("call must not run when the limiter refuses")
		return nil, nil
	}, limiter, reqCtx, fastRetry)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CategoryCanceled, pe.Category)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffMultiple: 2}

	assert.Equal(t, time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(3, cfg))
	assert.Equal(t, 5*time.Second, calculateBackoff(4, cfg))
}
