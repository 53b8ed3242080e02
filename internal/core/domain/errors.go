package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrIntegrationInactive indicates the integration is missing, disabled,
	// or not in active status; the job was never queued
	ErrIntegrationInactive = errors.New("integration inactive")

	// ErrInvalidWebhookEvent indicates the webhook event failed validation
	ErrInvalidWebhookEvent = errors.New("invalid webhook event")

	// ErrProviderNotFound indicates no capable provider is registered
	// for the integration
	ErrProviderNotFound = errors.New("provider not found")

	// ErrJobNotFound indicates the sync job does not exist in the queue
	ErrJobNotFound = errors.New("sync job not found")
)

// RateLimitError indicates an integration has exhausted its sync admission
// budget for the current window. NextAvailable is when the next window opens.
type RateLimitError struct {
	IntegrationID string
	Window        string // "minute" or "hour"
	Limit         int
	NextAvailable time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for integration %s: %d requests per %s, next available at %s",
		e.IntegrationID, e.Limit, e.Window, e.NextAvailable.Format(time.RFC3339))
}

// IsRateLimited reports whether err is a RateLimitError.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
