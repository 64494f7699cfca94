package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// WebhookError classifies a failed webhook delivery.
type WebhookError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *WebhookError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := []string{"webhook error"}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *WebhookError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a delivery failure may succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var webhookErr *WebhookError
	if errors.As(err, &webhookErr) {
		return webhookErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
