package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/nikverify/internal/domain"
	"github.com/kursadbilgin/nikverify/internal/service"
)

type JobService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
	Status(ctx context.Context, jobID string) (*service.JobSnapshot, error)
	Report(ctx context.Context, jobID string) (*service.ReportArtifact, error)
	Reset(ctx context.Context, jobID string) error
}

type JobHandler struct {
	service JobService
}

func NewJobHandler(service JobService) (*JobHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("job service is required")
	}
	return &JobHandler{service: service}, nil
}

func RegisterJobRoutes(router fiber.Router, service JobService) error {
	h, err := NewJobHandler(service)
	if err != nil {
		return err
	}

	router.Post("/jobs", h.SubmitJob)
	router.Get("/jobs/:id", h.GetJobStatus)
	router.Get("/jobs/:id/report", h.DownloadReport)
	router.Post("/jobs/:id/reset", h.ResetJob)

	return nil
}

// identifierInput accepts the batch either as one free-text string or as a
// JSON array of strings.
type identifierInput string

func (in *identifierInput) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*in = identifierInput(text)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("identifiers must be a string or an array of strings")
	}
	*in = identifierInput(strings.Join(list, "\n"))
	return nil
}

type submitJobRequest struct {
	Identifiers  identifierInput `json:"identifiers"`
	SuccessLimit int             `json:"successLimit"`
	Username     string          `json:"username"`
	Password     string          `json:"password"`
}

type submitJobResponse struct {
	JobID            string   `json:"jobId"`
	Count            int      `json:"count"`
	Preview          []string `json:"preview"`
	EstimatedMinutes int      `json:"estimatedMinutes"`
	SuccessLimit     int      `json:"successLimit"`
}

type jobStatusResponse struct {
	Status         string  `json:"status"`
	Processed      int     `json:"processed"`
	Total          int     `json:"total"`
	SuccessCount   int     `json:"successCount"`
	SuccessLimit   int     `json:"successLimit"`
	Current        string  `json:"current,omitempty"`
	Elapsed        string  `json:"elapsed"`
	Remaining      *string `json:"remaining,omitempty"`
	HasReport      bool    `json:"hasReport"`
	FailureMessage string  `json:"failureMessage,omitempty"`
}

func (h *JobHandler) SubmitJob(c *fiber.Ctx) error {
	var req submitJobRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.SuccessLimit < 0 {
		return toHTTPError(fmt.Errorf("%w: successLimit must not be negative", domain.ErrValidation))
	}

	result, err := h.service.Submit(c.UserContext(), service.SubmitRequest{
		Raw:          string(req.Identifiers),
		SuccessLimit: req.SuccessLimit,
		Credentials: domain.Credentials{
			Username: strings.TrimSpace(req.Username),
			Password: req.Password,
		},
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(submitJobResponse{
		JobID:            result.JobID,
		Count:            result.Count,
		Preview:          result.Preview,
		EstimatedMinutes: result.EstimatedMinutes,
		SuccessLimit:     result.SuccessLimit,
	})
}

func (h *JobHandler) GetJobStatus(c *fiber.Ctx) error {
	snapshot, err := h.service.Status(c.UserContext(), c.Params("id"))
	if errors.Is(err, domain.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"status": "not_found"})
	}
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toJobStatusResponse(snapshot))
}

// DownloadReport serves the report once; afterwards the job reports 404.
func (h *JobHandler) DownloadReport(c *fiber.Ctx) error {
	artifact, err := h.service.Report(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	c.Set(fiber.HeaderContentType, artifact.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	return c.Status(fiber.StatusOK).Send(artifact.Data)
}

func (h *JobHandler) ResetJob(c *fiber.Ctx) error {
	if err := h.service.Reset(c.UserContext(), c.Params("id")); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

func toJobStatusResponse(s *service.JobSnapshot) jobStatusResponse {
	resp := jobStatusResponse{
		Status:         s.Status.String(),
		Processed:      s.Processed,
		Total:          s.Total,
		SuccessCount:   s.SuccessCount,
		SuccessLimit:   s.SuccessLimit,
		Current:        s.Current,
		Elapsed:        formatClock(s.Elapsed),
		HasReport:      s.HasReport,
		FailureMessage: s.FailureMessage,
	}
	if s.Status == domain.JobStatusProcessing {
		remaining := formatClock(s.Remaining)
		resp.Remaining = &remaining
	}
	return resp
}

// formatClock renders a duration as M:SS, e.g. 1:05 or 12:00.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrReportNotReady):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
