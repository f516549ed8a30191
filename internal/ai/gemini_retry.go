// gemini_retry.go - Retry logic and error handling for provider API calls

package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_labeler/internal/common"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
)

// RetryConfig defines retry behavior for Gemini API calls
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides the default retry behavior
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// Error categories shared by all providers.
const (
	CategoryBadRequest      = "bad_request"
	CategoryUnauthorized    = "unauthorized"
	CategoryForbidden       = "forbidden"
	CategoryNotFound        = "not_found"
	CategoryPayloadTooLarge = "payload_too_large"
	CategoryRateLimit       = "rate_limit"
	CategoryServerError     = "server_error"
	CategoryTimeout         = "timeout"
	CategoryCanceled        = "canceled"
	CategoryQuotaExceeded   = "quota_exceeded"
	CategoryNetwork         = "network_error"
	CategoryEmptyResponse   = "empty_response"
	CategoryUnknown         = "unknown"
)

// ProviderError represents a categorized OCR/LLM provider error
type ProviderError struct {
	Provider   string
	Category   string
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s [%s] %s (status: %d, retryable: %v)", e.Provider, e.Category, e.Message, e.StatusCode, e.Retryable)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the category to the status the API answers with.
func (e *ProviderError) HTTPStatus() int {
	switch e.Category {
	case CategoryRateLimit, CategoryQuotaExceeded:
		return http.StatusTooManyRequests
	case CategoryPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CategoryBadRequest:
		return http.StatusUnprocessableEntity
	case CategoryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Suggestion is a short user-facing hint for the category.
func (e *ProviderError) Suggestion() string {
	switch e.Category {
	case CategoryRateLimit:
		return "Too many requests. Please wait a moment and try again."
	case CategoryQuotaExceeded:
		return "The OCR quota is used up. Try again later."
	case CategoryUnauthorized, CategoryForbidden:
		return "OCR provider authentication failed. Please contact the administrator."
	case CategoryPayloadTooLarge:
		return "The image is too large. Please upload a smaller photo."
	case CategoryTimeout:
		return "Reading the image took too long. Please try again with a clearer photo."
	case CategoryServerError, CategoryNetwork:
		return "The OCR service is temporarily unavailable. Please try again in a few minutes."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// categorizeStatus fills category fields for an HTTP status code.
func categorizeStatus(pe *ProviderError, code int, apiMessage string) {
	pe.StatusCode = code

	switch code {
	case 400:
		pe.Category, pe.Message, pe.Retryable = CategoryBadRequest, "Invalid request format or parameters", false
	case 401:
		pe.Category, pe.Message, pe.Retryable = CategoryUnauthorized, "Invalid API key or authentication failed", false
	case 403:
		pe.Category, pe.Message, pe.Retryable = CategoryForbidden, "API key lacks required permissions", false
	case 404:
		pe.Category, pe.Message, pe.Retryable = CategoryNotFound, "Model not found or invalid endpoint", false
	case 413:
		pe.Category, pe.Message, pe.Retryable = CategoryPayloadTooLarge, "Request size exceeds limit (reduce image size)", false
	case 429:
		pe.Category, pe.Message, pe.Retryable = CategoryRateLimit, "Rate limit exceeded - too many requests", true
	case 500, 502, 503, 504:
		pe.Category, pe.Message, pe.Retryable = CategoryServerError, fmt.Sprintf("provider server error (%d)", code), true
	default:
		pe.Category = "unknown_api_error"
		pe.Message = fmt.Sprintf("API error: %s", apiMessage)
		pe.Retryable = code >= 500
	}
}

// categorizeError analyzes err and determines the retry strategy
func categorizeError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}

	var existing *ProviderError
	if errors.As(err, &existing) {
		return existing
	}

	pe := &ProviderError{
		Provider: provider,
		Category: CategoryUnknown,
		Message:  err.Error(),
		Err:      err,
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		categorizeStatus(pe, apiErr.Code, apiErr.Message)
		return pe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		pe.Category, pe.Message, pe.Retryable = CategoryTimeout, "Request timeout - processing took too long", true
		return pe
	}
	if errors.Is(err, context.Canceled) {
		pe.Category, pe.Message, pe.Retryable = CategoryCanceled, "Request was canceled", false
		return pe
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted"):
		pe.Category, pe.Message, pe.Retryable = CategoryRateLimit, "Rate limit exceeded - too many requests", true
	case strings.Contains(errMsg, "quota"):
		pe.Category, pe.Message, pe.Retryable = CategoryQuotaExceeded, "API quota exceeded", false
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		pe.Category, pe.Message, pe.Retryable = CategoryTimeout, "Request timeout", true
	case strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network"):
		pe.Category, pe.Message, pe.Retryable = CategoryNetwork, "Network connection error", true
	}
	return pe
}

// waiter is satisfied by *ratelimit.RateLimiter.
type waiter interface {
	Wait(ctx context.Context) error
}

type generateFunc func(ctx context.Context) (*genai.GenerateContentResponse, error)

// callWithRetry runs call with rate limiting and exponential backoff.
// limiter may be nil.
func callWithRetry(
	ctx context.Context,
	provider string,
	call generateFunc,
	limiter waiter,
	reqCtx *common.RequestContext,
	config RetryConfig,
) (*genai.GenerateContentResponse, error) {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr *ProviderError

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if attempt > 1 {
			reqCtx.LogInfo("Retry attempt %d/%d", attempt, config.MaxAttempts)
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, categorizeError(provider, err)
			}
		}

		resp, err := call(ctx)
		if err == nil {
			if attempt > 1 {
				reqCtx.LogInfo("Retry succeeded on attempt %d", attempt)
			}
			return resp, nil
		}

		lastErr = categorizeError(provider, err)
		reqCtx.LogError("API call failed (attempt %d/%d): %s", attempt, config.MaxAttempts, lastErr.Error())

		if !lastErr.Retryable {
			return nil, lastErr
		}
		if attempt >= config.MaxAttempts {
			break
		}

		delay := calculateBackoff(attempt, config)
		if lastErr.Category == CategoryRateLimit {
			delay *= 2
			reqCtx.LogWarning("Rate limit hit, waiting %v before retry", delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, categorizeError(provider, ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%s API call failed after %d attempts: %w", provider, config.MaxAttempts, lastErr)
}

// calculateBackoff computes exponential backoff delay
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
