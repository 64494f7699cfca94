package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/nikverify/internal/domain"
	"github.com/kursadbilgin/nikverify/internal/report"
	"github.com/kursadbilgin/nikverify/internal/service"
	"github.com/kursadbilgin/nikverify/internal/transport"
	"go.uber.org/zap"
)

func TestJobHandler_SubmitJob(t *testing.T) {
	t.Parallel()

	var got service.SubmitRequest
	svc := &stubJobService{
		submitFn: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
			got = req
			if len(domain.ParseIdentifiers(req.Raw)) == 0 {
				return nil, fmt.Errorf("%w: no valid 16-digit identifiers found", domain.ErrValidation)
			}
			if err := req.Credentials.Validate(); err != nil {
				return nil, err
			}
			return &service.SubmitResult{
				JobID:            "job-1",
				Count:            2,
				Preview:          []string{"1234567890123456", "6543210987654321"},
				EstimatedMinutes: 1,
				SuccessLimit:     2,
			}, nil
		},
	}
	app := newJobTestApp(t, svc)

	body := `{"identifiers":"1234567890123456, 6543210987654321","username":" agen@example.com ","password":"secret"}`
	resp, raw := performRequest(t, app, http.MethodPost, "/jobs", body)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, raw)
	}

	var accepted map[string]any
	if err := json.Unmarshal(raw, &accepted); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if accepted["jobId"] != "job-1" || accepted["count"] != float64(2) || accepted["estimatedMinutes"] != float64(1) {
		t.Fatalf("response = %v", accepted)
	}
	if got.Credentials.Username != "agen@example.com" {
		t.Fatalf("username = %q, want trimmed", got.Credentials.Username)
	}

	arrayBody := `{"identifiers":["1234567890123456","6543210987654321"],"successLimit":1,"username":"agen","password":"secret"}`
	resp, raw = performRequest(t, app, http.MethodPost, "/jobs", arrayBody)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202 for array input, body=%s", resp.StatusCode, raw)
	}
	if got.Raw != "1234567890123456\n6543210987654321" || got.SuccessLimit != 1 {
		t.Fatalf("forwarded request = %+v", got)
	}
}

func TestJobHandler_SubmitJobRejections(t *testing.T) {
	t.Parallel()

	svc := &stubJobService{
		submitFn: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
			if len(domain.ParseIdentifiers(req.Raw)) == 0 {
				return nil, fmt.Errorf("%w: no valid 16-digit identifiers found", domain.ErrValidation)
			}
			return nil, req.Credentials.Validate()
		},
	}
	app := newJobTestApp(t, svc)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"identifiers":`},
		{name: "no valid identifiers", body: `{"identifiers":"123, abc","username":"a","password":"b"}`},
		{name: "missing password", body: `{"identifiers":"1234567890123456","username":"a"}`},
		{name: "negative limit", body: `{"identifiers":"1234567890123456","successLimit":-1,"username":"a","password":"b"}`},
		{name: "identifiers of wrong type", body: `{"identifiers":42,"username":"a","password":"b"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, raw := performRequest(t, app, http.MethodPost, "/jobs", tt.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, raw)
			}
			var body map[string]string
			if err := json.Unmarshal(raw, &body); err != nil || body["error"] == "" {
				t.Fatalf("error body = %s", raw)
			}
		})
	}
}

func TestJobHandler_GetJobStatus(t *testing.T) {
	t.Parallel()

	svc := &stubJobService{
		statusFn: func(ctx context.Context, jobID string) (*service.JobSnapshot, error) {
			switch jobID {
			case "running":
				return &service.JobSnapshot{
					JobID:        jobID,
					Status:       domain.JobStatusProcessing,
					Processed:    3,
					Total:        10,
					SuccessCount: 2,
					SuccessLimit: 5,
					Current:      "1234567890123456",
					Elapsed:      65 * time.Second,
					Remaining:    15 * time.Second,
				}, nil
			case "done":
				return &service.JobSnapshot{
					JobID:     jobID,
					Status:    domain.JobStatusCompleted,
					Processed: 10,
					Total:     10,
					Elapsed:   12 * time.Minute,
					HasReport: true,
				}, nil
			default:
				return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
			}
		},
	}
	app := newJobTestApp(t, svc)

	resp, raw := performRequest(t, app, http.MethodGet, "/jobs/running", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, raw)
	}
	var running map[string]any
	_ = json.Unmarshal(raw, &running)
	if running["status"] != "processing" || running["elapsed"] != "1:05" || running["remaining"] != "0:15" {
		t.Fatalf("running = %v", running)
	}
	if running["current"] != "1234567890123456" || running["hasReport"] != false {
		t.Fatalf("running = %v", running)
	}

	resp, raw = performRequest(t, app, http.MethodGet, "/jobs/done", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, raw)
	}
	var done map[string]any
	_ = json.Unmarshal(raw, &done)
	if done["elapsed"] != "12:00" || done["hasReport"] != true {
		t.Fatalf("done = %v", done)
	}
	if _, ok := done["remaining"]; ok {
		t.Fatal("remaining must be omitted once the job stopped processing")
	}

	resp, raw = performRequest(t, app, http.MethodGet, "/jobs/unknown", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var missing map[string]any
	_ = json.Unmarshal(raw, &missing)
	if missing["status"] != "not_found" {
		t.Fatalf("missing = %v", missing)
	}
}

func TestJobHandler_DownloadReport(t *testing.T) {
	t.Parallel()

	downloaded := false
	svc := &stubJobService{
		reportFn: func(ctx context.Context, jobID string) (*service.ReportArtifact, error) {
			switch {
			case jobID == "running":
				return nil, fmt.Errorf("%w: job running is processing", domain.ErrReportNotReady)
			case jobID == "done" && !downloaded:
				downloaded = true
				return &service.ReportArtifact{
					Filename:    "subsidi-tepat-lpg-report-2025-06-01T08-00-00.xlsx",
					ContentType: report.ContentType,
					Data:        []byte("PK\x03\x04"),
				}, nil
			default:
				return nil, fmt.Errorf("%w: report for job %s", domain.ErrNotFound, jobID)
			}
		},
	}
	app := newJobTestApp(t, svc)

	resp, raw := performRequest(t, app, http.MethodGet, "/jobs/done/report", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, raw)
	}
	if got := resp.Header.Get(fiber.HeaderContentType); got != report.ContentType {
		t.Fatalf("content type = %q", got)
	}
	wantDisposition := `attachment; filename="subsidi-tepat-lpg-report-2025-06-01T08-00-00.xlsx"`
	if got := resp.Header.Get(fiber.HeaderContentDisposition); got != wantDisposition {
		t.Fatalf("content disposition = %q, want %q", got, wantDisposition)
	}
	if !bytes.Equal(raw, []byte("PK\x03\x04")) {
		t.Fatalf("body = %q", raw)
	}

	for _, path := range []string{"/jobs/done/report", "/jobs/running/report", "/jobs/unknown/report"} {
		resp, _ = performRequest(t, app, http.MethodGet, path, "")
		if resp.StatusCode != fiber.StatusNotFound {
			t.Fatalf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestJobHandler_ResetJob(t *testing.T) {
	t.Parallel()

	var resetIDs []string
	svc := &stubJobService{
		resetFn: func(ctx context.Context, jobID string) error {
			resetIDs = append(resetIDs, jobID)
			if jobID == "broken" {
				return errors.New("redis: connection refused")
			}
			return nil
		},
	}
	app := newJobTestApp(t, svc)

	for i := 0; i < 2; i++ {
		resp, raw := performRequest(t, app, http.MethodPost, "/jobs/job-1/reset", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, raw)
		}
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		if body["success"] != true {
			t.Fatalf("body = %v", body)
		}
	}

	resp, raw := performRequest(t, app, http.MethodPost, "/jobs/broken/reset", "")
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if bytes.Contains(raw, []byte("connection refused")) {
		t.Fatalf("internal error leaked to client: %s", raw)
	}
	if len(resetIDs) != 3 {
		t.Fatalf("reset calls = %v", resetIDs)
	}
}

func TestFormatClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "0:00"},
		{in: 5 * time.Second, want: "0:05"},
		{in: 65*time.Second + 900*time.Millisecond, want: "1:05"},
		{in: 12 * time.Minute, want: "12:00"},
		{in: 75 * time.Minute, want: "75:00"},
		{in: -time.Second, want: "0:00"},
	}

	for _, tt := range tests {
		if got := formatClock(tt.in); got != tt.want {
			t.Fatalf("formatClock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type stubJobService struct {
	submitFn func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
	statusFn func(ctx context.Context, jobID string) (*service.JobSnapshot, error)
	reportFn func(ctx context.Context, jobID string) (*service.ReportArtifact, error)
	resetFn  func(ctx context.Context, jobID string) error
}

func (s *stubJobService) Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (s *stubJobService) Status(ctx context.Context, jobID string) (*service.JobSnapshot, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, jobID)
	}
	return nil, domain.ErrNotFound
}

func (s *stubJobService) Report(ctx context.Context, jobID string) (*service.ReportArtifact, error) {
	if s.reportFn != nil {
		return s.reportFn(ctx, jobID)
	}
	return nil, domain.ErrNotFound
}

func (s *stubJobService) Reset(ctx context.Context, jobID string) error {
	if s.resetFn != nil {
		return s.resetFn(ctx, jobID)
	}
	return nil
}

func newJobTestApp(t *testing.T, svc JobService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterJobRoutes(app, svc); err != nil {
		t.Fatalf("RegisterJobRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}
