package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/nikverify/internal/domain"
	"github.com/kursadbilgin/nikverify/internal/portal"
	"github.com/kursadbilgin/nikverify/internal/report"
	"github.com/kursadbilgin/nikverify/internal/session"
	"go.uber.org/zap"
)

type fakeDriver struct {
	mu     sync.Mutex
	closed int
}

func (d *fakeDriver) Goto(context.Context, string) error                      { return nil }
func (d *fakeDriver) WaitFor(context.Context, string, time.Duration) error    { return nil }
func (d *fakeDriver) Type(context.Context, string, string) error              { return nil }
func (d *fakeDriver) Click(context.Context, string) error                     { return nil }
func (d *fakeDriver) QueryText(context.Context, string) (string, bool, error) { return "", false, nil }
func (d *fakeDriver) Reload(context.Context) error                            { return nil }
func (d *fakeDriver) ScreenshotAndDumpHTML(context.Context, string) error     { return nil }

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *fakeDriver) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeAuth struct {
	loginFn func(ctx context.Context, driver session.Driver, creds domain.Credentials, loginURL string) bool
}

func (f *fakeAuth) Login(ctx context.Context, driver session.Driver, creds domain.Credentials, loginURL string) bool {
	if f.loginFn != nil {
		return f.loginFn(ctx, driver, creds, loginURL)
	}
	return true
}

type fakeEngine struct {
	runFn func(
		ctx context.Context,
		driver session.Driver,
		identifiers []domain.Identifier,
		successLimit int,
		progress portal.ProgressFunc,
	) (*portal.RunResult, error)
}

func (f *fakeEngine) Run(
	ctx context.Context,
	driver session.Driver,
	identifiers []domain.Identifier,
	successLimit int,
	progress portal.ProgressFunc,
) (*portal.RunResult, error) {
	if f.runFn != nil {
		return f.runFn(ctx, driver, identifiers, successLimit, progress)
	}
	return &portal.RunResult{}, nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	summaries []domain.JobSummary
	recordFn  func(ctx context.Context, summary domain.JobSummary) error
}

func (f *fakeRecorder) RecordJob(ctx context.Context, summary domain.JobSummary) error {
	f.mu.Lock()
	f.summaries = append(f.summaries, summary)
	f.mu.Unlock()
	if f.recordFn != nil {
		return f.recordFn(ctx, summary)
	}
	return nil
}

func (f *fakeRecorder) all() []domain.JobSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.JobSummary, len(f.summaries))
	copy(out, f.summaries)
	return out
}

type failingWriter struct {
	err error
}

func (w failingWriter) Write([]report.Row) ([]byte, error) { return nil, w.err }

type testHarness struct {
	driver   *fakeDriver
	opened   int
	openErr  error
	auth     *fakeAuth
	engine   *fakeEngine
	recorder *fakeRecorder
	accounts []string
	mu       sync.Mutex
}

func (h *testHarness) factory() session.Factory {
	return session.FactoryFunc(func(context.Context) (session.Driver, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.opened++
		if h.openErr != nil {
			return nil, h.openErr
		}
		return h.driver, nil
	})
}

func (h *testHarness) engines() EngineFactory {
	return func(account string, _ *zap.Logger) BatchEngine {
		h.mu.Lock()
		h.accounts = append(h.accounts, account)
		h.mu.Unlock()
		return h.engine
	}
}

func (h *testHarness) openedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened
}

func successRecord(id domain.Identifier) domain.OutcomeRecord {
	return domain.NewSuccess(id, domain.CustomerInfo{Name: "BUDI", Category: "Rumah Tangga"}, time.Unix(1_700_000_000, 0))
}

func failureRecord(id domain.Identifier, reason domain.FailureReason) domain.OutcomeRecord {
	return domain.NewFailure(id, nil, reason, time.Unix(1_700_000_000, 0))
}
