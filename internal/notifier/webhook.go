// Package notifier tells an external endpoint when a batch job finishes.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/nikverify/internal/domain"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	defaultRetryCount     = 2
	retryWaitTime         = 500 * time.Millisecond
	retryMaxWaitTime      = 5 * time.Second

	eventJobFinished = "job.finished"
)

type webhookPayload struct {
	Event          string    `json:"event"`
	JobID          string    `json:"jobId"`
	Status         string    `json:"status"`
	Total          int       `json:"total"`
	Processed      int       `json:"processed"`
	SuccessCount   int       `json:"successCount"`
	FailureCount   int       `json:"failureCount"`
	SuccessLimit   int       `json:"successLimit"`
	FailureMessage string    `json:"failureMessage,omitempty"`
	ReportReady    bool      `json:"reportReady"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// WebhookNotifier posts a JSON summary of each finished job. Transient
// failures (429, 5xx, network) are retried by resty.
type WebhookNotifier struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookNotifier(endpoint string) (*WebhookNotifier, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(defaultRetryCount)

	return NewWebhookNotifierWithClient(endpoint, client)
}

func NewWebhookNotifierWithClient(endpoint string, client *resty.Client) (*WebhookNotifier, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.
		SetRetryWaitTime(retryWaitTime).
		SetRetryMaxWaitTime(retryMaxWaitTime).
		AddRetryCondition(func(response *resty.Response, err error) bool {
			if err != nil {
				return IsTransient(err)
			}
			return response != nil && isTransientHTTPStatus(response.StatusCode())
		})

	return &WebhookNotifier{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (n *WebhookNotifier) RecordJob(ctx context.Context, summary domain.JobSummary) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("webhook notifier is not initialized")
	}

	payload := webhookPayload{
		Event:          eventJobFinished,
		JobID:          summary.JobID,
		Status:         summary.Status.String(),
		Total:          summary.Total,
		Processed:      summary.Processed,
		SuccessCount:   summary.SuccessCount,
		FailureCount:   summary.FailureCount(),
		SuccessLimit:   summary.SuccessLimit,
		FailureMessage: summary.FailureMessage,
		ReportReady:    summary.Status == domain.JobStatusCompleted && summary.ReportFilename != "",
		StartedAt:      summary.StartedAt,
		FinishedAt:     summary.FinishedAt,
	}

	response, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Job-ID", summary.JobID).
		SetBody(payload).
		Post(n.endpoint)
	if err != nil {
		return &WebhookError{
			Message:   "webhook request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &WebhookError{
		StatusCode: statusCode,
		Message:    webhookErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func webhookErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("endpoint returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
