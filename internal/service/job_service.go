package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/nikverify/internal/artifact"
	"github.com/kursadbilgin/nikverify/internal/domain"
	"github.com/kursadbilgin/nikverify/internal/observability"
	"github.com/kursadbilgin/nikverify/internal/portal"
	"github.com/kursadbilgin/nikverify/internal/report"
	"github.com/kursadbilgin/nikverify/internal/session"
	"go.uber.org/zap"
)

const (
	defaultPerItemEstimate = 5 * time.Second
	defaultRetention       = time.Hour
	previewSize            = 5
	recorderTimeout        = 10 * time.Second
)

type Authenticator interface {
	Login(ctx context.Context, driver session.Driver, creds domain.Credentials, loginURL string) bool
}

type BatchEngine interface {
	Run(
		ctx context.Context,
		driver session.Driver,
		identifiers []domain.Identifier,
		successLimit int,
		progress portal.ProgressFunc,
	) (*portal.RunResult, error)
}

// EngineFactory returns the engine a job runs with, scoped to the merchant
// account it is logged in as.
type EngineFactory func(account string, logger *zap.Logger) BatchEngine

type ReportWriter interface {
	Write(rows []report.Row) ([]byte, error)
}

// JobRecorder receives a summary of every finished job.
type JobRecorder interface {
	RecordJob(ctx context.Context, summary domain.JobSummary) error
}

type JobServiceConfig struct {
	LoginURL        string
	Retention       time.Duration
	PerItemEstimate time.Duration
}

type SubmitRequest struct {
	Raw          string
	SuccessLimit int
	Credentials  domain.Credentials
}

type SubmitResult struct {
	JobID            string
	Count            int
	Preview          []string
	EstimatedMinutes int
	SuccessLimit     int
}

type JobSnapshot struct {
	JobID          string
	Status         domain.JobStatus
	Processed      int
	Total          int
	SuccessCount   int
	SuccessLimit   int
	Current        string
	Elapsed        time.Duration
	Remaining      time.Duration
	HasReport      bool
	FailureMessage string
}

type ReportArtifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

type namedRecorder struct {
	name     string
	recorder JobRecorder
}

type jobEntry struct {
	job    *domain.BatchJob
	cancel context.CancelFunc
}

// JobService owns every BatchJob. Run goroutines report through progress
// callbacks and never touch job state directly.
type JobService struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry

	sessions  session.Factory
	auth      Authenticator
	engines   EngineFactory
	reports   ReportWriter
	artifacts artifact.Store
	recorders []namedRecorder
	cfg       JobServiceConfig

	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
	newID   func() string
	running sync.WaitGroup
}

func NewJobService(
	sessions session.Factory,
	auth Authenticator,
	engines EngineFactory,
	reports ReportWriter,
	artifacts artifact.Store,
	cfg JobServiceConfig,
	logger *zap.Logger,
) (*JobService, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if engines == nil {
		return nil, fmt.Errorf("engine factory is required")
	}
	if reports == nil {
		return nil, fmt.Errorf("report writer is required")
	}
	if artifacts == nil {
		artifacts = artifact.NewMemoryStore()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.PerItemEstimate <= 0 {
		cfg.PerItemEstimate = defaultPerItemEstimate
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobService{
		jobs:      make(map[string]*jobEntry),
		sessions:  sessions,
		auth:      auth,
		engines:   engines,
		reports:   reports,
		artifacts: artifacts,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func (s *JobService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// AddRecorder registers a completion recorder. Call before the first Submit.
func (s *JobService) AddRecorder(name string, recorder JobRecorder) {
	if recorder == nil {
		return
	}
	s.recorders = append(s.recorders, namedRecorder{name: name, recorder: recorder})
}

func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	identifiers := domain.ParseIdentifiers(req.Raw)
	if len(identifiers) == 0 {
		return nil, fmt.Errorf("%w: no valid 16-digit identifiers found", domain.ErrValidation)
	}
	if err := req.Credentials.Validate(); err != nil {
		return nil, err
	}

	total := len(identifiers)
	limit := domain.NormalizeSuccessLimit(req.SuccessLimit, total)
	expected := minInt(limit, total)
	startedAt := s.now().UTC()

	job := &domain.BatchJob{
		ID:                    s.newID(),
		Identifiers:           identifiers,
		SuccessLimit:          limit,
		Status:                domain.JobStatusStarting,
		StartedAt:             startedAt,
		EstimatedCompletionAt: startedAt.Add(time.Duration(expected) * s.cfg.PerItemEstimate),
	}

	runCtx, cancel := context.WithCancel(observability.WithJobID(context.Background(), job.ID))

	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: job %s already exists", domain.ErrConflict, job.ID)
	}
	s.jobs[job.ID] = &jobEntry{job: job, cancel: cancel}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncJobStarted()
	}
	s.logger.Info("batch job submitted",
		zap.String("jobId", job.ID),
		zap.Int("identifiers", total),
		zap.Int("successLimit", limit),
	)

	s.running.Add(1)
	go s.run(runCtx, job.ID, identifiers, limit, req.Credentials)

	preview := make([]string, 0, previewSize)
	for i := 0; i < total && i < previewSize; i++ {
		preview = append(preview, identifiers[i].String())
	}

	return &SubmitResult{
		JobID:            job.ID,
		Count:            total,
		Preview:          preview,
		EstimatedMinutes: int(math.Ceil(float64(expected) * s.cfg.PerItemEstimate.Seconds() / 60)),
		SuccessLimit:     limit,
	}, nil
}

func (s *JobService) Status(_ context.Context, jobID string) (*JobSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	job := entry.job

	end := s.now().UTC()
	if job.FinishedAt != nil {
		end = *job.FinishedAt
	}

	var remaining time.Duration
	if job.Status == domain.JobStatusProcessing {
		left := job.SuccessLimit - job.SuccessCount
		if left < 0 {
			left = 0
		}
		remaining = time.Duration(left) * s.cfg.PerItemEstimate
	}

	return &JobSnapshot{
		JobID:          job.ID,
		Status:         job.Status,
		Processed:      job.ProcessedCount,
		Total:          job.Total(),
		SuccessCount:   job.SuccessCount,
		SuccessLimit:   job.SuccessLimit,
		Current:        job.CurrentIdentifier.String(),
		Elapsed:        end.Sub(job.StartedAt),
		Remaining:      remaining,
		HasReport:      job.HasReport,
		FailureMessage: job.FailureMessage,
	}, nil
}

// Report hands out the job's report once; the stored artifact is deleted on retrieval.
func (s *JobService) Report(ctx context.Context, jobID string) (*ReportArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	job := entry.job
	if job.Status != domain.JobStatusCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrReportNotReady, jobID, job.Status)
	}
	if !job.HasReport {
		return nil, fmt.Errorf("%w: report for job %s", domain.ErrNotFound, jobID)
	}

	stored, err := s.artifacts.Take(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			job.HasReport = false
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	job.HasReport = false

	return &ReportArtifact{
		Filename:    stored.Filename,
		ContentType: stored.ContentType,
		Data:        stored.Data,
	}, nil
}

// Reset cancels a running job and forgets it. Unknown jobs are not an error.
func (s *JobService) Reset(ctx context.Context, jobID string) error {
	s.mu.Lock()
	entry, ok := s.jobs[jobID]
	delete(s.jobs, jobID)
	s.mu.Unlock()

	if ok {
		entry.cancel()
		s.logger.Info("batch job reset", zap.String("jobId", jobID))
	}

	if err := s.artifacts.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

// PurgeExpired forgets finished jobs older than the retention window.
func (s *JobService) PurgeExpired(ctx context.Context) int {
	cutoff := s.now().UTC().Add(-s.cfg.Retention)

	s.mu.Lock()
	expired := make([]string, 0)
	for id, entry := range s.jobs {
		finishedAt := entry.job.FinishedAt
		if finishedAt != nil && finishedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		if err := s.artifacts.Delete(ctx, id); err != nil {
			s.logger.Warn("failed to delete expired report", zap.String("jobId", id), zap.Error(err))
		}
	}
	return len(expired)
}

// Close cancels every running job and waits for their sessions to close.
func (s *JobService) Close() {
	s.mu.RLock()
	for _, entry := range s.jobs {
		entry.cancel()
	}
	s.mu.RUnlock()

	s.running.Wait()
}

func (s *JobService) run(
	ctx context.Context,
	jobID string,
	identifiers []domain.Identifier,
	limit int,
	creds domain.Credentials,
) {
	defer s.running.Done()
	logger := observability.WithContextLogger(s.logger, ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("batch job panicked", zap.Any("panic", r))
			if !s.finished(jobID) {
				s.fail(ctx, jobID, "batch job crashed")
			}
		}
	}()

	if s.metrics != nil {
		s.metrics.IncJobsRunning()
		defer s.metrics.DecJobsRunning()
	}

	s.update(jobID, func(job *domain.BatchJob) {
		job.Status = domain.JobStatusProcessing
	})

	driver, err := s.sessions.Open(ctx)
	if err != nil {
		logger.Error("failed to open browser session", zap.Error(err))
		s.fail(ctx, jobID, "browser session could not be started")
		return
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("failed to close browser session", zap.Error(err))
		}
	}()

	if !s.auth.Login(ctx, driver, creds, s.cfg.LoginURL) {
		s.fail(ctx, jobID, "login failed")
		return
	}

	engine := s.engines(creds.Username, logger)
	result, runErr := engine.Run(ctx, driver, identifiers, limit, func(p portal.Progress) {
		s.applyProgress(jobID, p)
	})
	if runErr != nil {
		logger.Error("batch run aborted", zap.Error(runErr))
	}

	var records []domain.OutcomeRecord
	if result != nil {
		records = result.Records
	}
	if runErr != nil && len(records) == 0 {
		s.fail(ctx, jobID, "batch aborted before any identifier was verified")
		return
	}

	finishedAt := s.now().UTC()
	filename := report.Filename(finishedAt)
	data, err := s.reports.Write(report.ToRows(records))
	if err != nil {
		logger.Error("failed to build report", zap.Error(err))
		s.fail(ctx, jobID, "report could not be generated")
		return
	}

	saveCtx := context.WithoutCancel(ctx)
	stored := artifact.Artifact{Filename: filename, ContentType: report.ContentType, Data: data}
	if err := s.artifacts.Save(saveCtx, jobID, stored, s.cfg.Retention); err != nil {
		logger.Error("failed to store report", zap.Error(err))
		s.fail(ctx, jobID, "report could not be stored")
		return
	}

	successCount := 0
	for _, record := range records {
		if record.IsSuccess() {
			successCount++
		}
	}

	summary, ok := s.finish(jobID, func(job *domain.BatchJob) {
		job.Status = domain.JobStatusCompleted
		job.Records = records
		job.SuccessCount = successCount
		job.ProcessedCount = len(records)
		job.CurrentIdentifier = ""
		job.ReportFilename = filename
		job.HasReport = true
		if runErr != nil {
			job.FailureMessage = "batch stopped early; report contains partial results"
		}
	})
	if !ok {
		// Reset while running: nobody can download this artifact anymore.
		_ = s.artifacts.Delete(saveCtx, jobID)
		logger.Info("discarding result of reset job")
		return
	}

	logger.Info("batch job completed",
		zap.Int("records", len(records)),
		zap.Int("successCount", successCount),
		zap.Bool("partial", runErr != nil),
	)
	s.record(saveCtx, summary)
}

func (s *JobService) fail(ctx context.Context, jobID string, message string) {
	summary, ok := s.finish(jobID, func(job *domain.BatchJob) {
		job.Status = domain.JobStatusFailed
		job.FailureMessage = message
		job.CurrentIdentifier = ""
	})
	if !ok {
		return
	}
	s.record(context.WithoutCancel(ctx), summary)
}

// finish applies the terminal mutation and snapshots the job. It reports
// false when the job was reset in the meantime.
func (s *JobService) finish(jobID string, mutate func(job *domain.BatchJob)) (domain.JobSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[jobID]
	if !ok {
		return domain.JobSummary{}, false
	}

	mutate(entry.job)
	finishedAt := s.now().UTC()
	entry.job.FinishedAt = &finishedAt

	if s.metrics != nil {
		s.metrics.IncJobFinished(entry.job.Status.String())
	}
	return entry.job.Summary(), true
}

func (s *JobService) finished(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.jobs[jobID]
	return !ok || entry.job.Status.IsTerminal()
}

func (s *JobService) update(jobID string, mutate func(job *domain.BatchJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.jobs[jobID]; ok {
		mutate(entry.job)
	}
}

func (s *JobService) applyProgress(jobID string, p portal.Progress) {
	s.update(jobID, func(job *domain.BatchJob) {
		job.ProcessedCount = p.Processed()
		switch p.Kind {
		case portal.ProgressDispatch:
			job.CurrentIdentifier = p.Identifier
		case portal.ProgressOutcome:
			if p.Outcome != nil {
				job.Records = append(job.Records, *p.Outcome)
				if p.Outcome.IsSuccess() {
					job.SuccessCount++
				}
			}
		}
	})
}

func (s *JobService) record(ctx context.Context, summary domain.JobSummary) {
	for _, r := range s.recorders {
		recordCtx, cancel := context.WithTimeout(ctx, recorderTimeout)
		err := r.recorder.RecordJob(recordCtx, summary)
		cancel()
		if err != nil {
			s.logger.Error("job recorder failed",
				zap.String("jobId", summary.JobID),
				zap.String("recorder", r.name),
				zap.Error(err),
			)
			if s.metrics != nil {
				s.metrics.IncRecorderFailure(r.name)
			}
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
