package portal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kursadbilgin/nikverify/internal/domain"
	"github.com/kursadbilgin/nikverify/internal/observability"
	"github.com/kursadbilgin/nikverify/internal/ratelimit"
	"github.com/kursadbilgin/nikverify/internal/session"
	"go.uber.org/zap"
)

const (
	defaultElementTimeout    = 5 * time.Second
	defaultProbeTimeout      = time.Second
	defaultRateLimitPadding  = time.Second
	defaultRateLimitFallback = 30 * time.Second
	diagnosticsTimeout       = 10 * time.Second
)

// ProgressKind tells which phase of a transaction a Progress event describes.
type ProgressKind int

const (
	ProgressDispatch ProgressKind = iota + 1
	ProgressOutcome
)

// Progress is emitted by the engine; the caller owns any job state it updates.
type Progress struct {
	Kind       ProgressKind
	Index      int
	Identifier domain.Identifier
	Outcome    *domain.OutcomeRecord
}

// Processed is the processed counter implied by the event.
func (p Progress) Processed() int {
	if p.Kind == ProgressOutcome {
		return p.Index + 1
	}
	return p.Index
}

type ProgressFunc func(Progress)

// StopCause explains why a run ended.
type StopCause string

const (
	StopInputExhausted StopCause = "input_exhausted"
	StopLimitReached   StopCause = "limit_reached"
	StopStockExhausted StopCause = "stock_exhausted"
	StopAborted        StopCause = "aborted"
)

// RunResult holds every record accumulated by a run, including partial runs.
type RunResult struct {
	Records      []domain.OutcomeRecord
	SuccessCount int
	Stopped      StopCause
}

type EngineConfig struct {
	VerifyURL         string
	Selectors         Selectors
	Markers           Markers
	ElementTimeout    time.Duration
	ProbeTimeout      time.Duration
	RateLimitPadding  time.Duration
	RateLimitFallback time.Duration
	DiagnosticsDir    string
}

// Engine runs verification transactions against one driver at a time.
// It holds no per-run state and may be shared across jobs.
type Engine struct {
	cfg     EngineConfig
	limiter ratelimit.RateLimiter
	account string
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewEngine(cfg EngineConfig, limiter ratelimit.RateLimiter, logger *zap.Logger) (*Engine, error) {
	if strings.TrimSpace(cfg.VerifyURL) == "" {
		return nil, fmt.Errorf("verify url is required")
	}
	if err := cfg.Markers.validate(); err != nil {
		return nil, err
	}
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = defaultElementTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.RateLimitPadding < 0 {
		cfg.RateLimitPadding = defaultRateLimitPadding
	}
	if cfg.RateLimitFallback <= 0 {
		cfg.RateLimitFallback = defaultRateLimitFallback
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepWithContext,
	}, nil
}

func (e *Engine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// WithAccount returns a copy of the engine whose dispatches are paced under account.
func (e *Engine) WithAccount(account string) *Engine {
	clone := *e
	clone.account = strings.ToLower(strings.TrimSpace(account))
	return &clone
}

// WithLogger returns a copy of the engine logging through logger.
func (e *Engine) WithLogger(logger *zap.Logger) *Engine {
	if logger == nil {
		return e
	}
	clone := *e
	clone.logger = logger
	return &clone
}

// Run verifies identifiers in order until the input is exhausted, the
// success limit is reached, or the portal reports stock exhaustion. On an
// unclassified error or panic the records gathered so far are returned with
// the error.
func (e *Engine) Run(
	ctx context.Context,
	driver session.Driver,
	identifiers []domain.Identifier,
	successLimit int,
	progress ProgressFunc,
) (result *RunResult, err error) {
	if driver == nil {
		return nil, fmt.Errorf("driver is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if progress == nil {
		progress = func(Progress) {}
	}
	successLimit = domain.NormalizeSuccessLimit(successLimit, len(identifiers))

	result = &RunResult{
		Records: make([]domain.OutcomeRecord, 0, len(identifiers)),
		Stopped: StopInputExhausted,
	}

	var current domain.Identifier
	defer func() {
		if r := recover(); r != nil {
			result.Stopped = StopAborted
			e.logger.Error("batch run panicked",
				zap.String("identifier", current.String()),
				zap.Int("records", len(result.Records)),
				zap.Any("panic", r),
			)
			e.dumpDiagnostics(ctx, driver, current)
			err = fmt.Errorf("verify %s: panic: %v", current, r)
		}
	}()

	if len(identifiers) > 0 {
		if err := driver.Goto(ctx, e.cfg.VerifyURL); err != nil {
			result.Stopped = StopAborted
			return result, fmt.Errorf("open verification page: %w", err)
		}
	}

	for i, id := range identifiers {
		if result.SuccessCount >= successLimit {
			result.Stopped = StopLimitReached
			break
		}
		current = id

		tx := &transaction{index: i, id: id, driver: driver, progress: progress}
		started := e.now()
		v, err := e.transact(ctx, tx)
		if err != nil {
			result.Stopped = StopAborted
			e.dumpDiagnostics(ctx, driver, id)
			return result, fmt.Errorf("verify %s: %w", id, err)
		}

		record := v.record
		result.Records = append(result.Records, record)
		if record.IsSuccess() {
			result.SuccessCount++
		}
		e.observeOutcome(record, e.now().Sub(started))
		progress(Progress{Kind: ProgressOutcome, Index: i, Identifier: id, Outcome: &record})

		if v.kind == verdictStop {
			result.Stopped = StopStockExhausted
			e.logger.Warn("stock exhausted, stopping batch",
				zap.String("identifier", id.String()),
				zap.Int("index", i),
			)
			break
		}

		if err := e.restore(ctx, driver, v.recovery); err != nil {
			result.Stopped = StopAborted
			e.dumpDiagnostics(ctx, driver, id)
			return result, fmt.Errorf("return to verification page after %s: %w", id, err)
		}
	}

	if result.Stopped == StopInputExhausted && result.SuccessCount >= successLimit && successLimit < len(identifiers) {
		result.Stopped = StopLimitReached
	}
	return result, nil
}

// transact drives one identifier through the state machine until a terminal
// verdict. Rate-limit verdicts are handled here and never leave this loop.
func (e *Engine) transact(ctx context.Context, tx *transaction) (verdict, error) {
	current := stateDispatching
	for {
		if err := ctx.Err(); err != nil {
			return verdict{}, err
		}

		handler := e.handlerFor(current)
		if handler == nil {
			return verdict{}, fmt.Errorf("no handler for state %s", current)
		}

		next, v, err := handler(ctx, tx)
		if err != nil {
			return verdict{}, fmt.Errorf("%s: %w", current, err)
		}

		switch v.kind {
		case verdictNone:
			current = next
		case verdictRetry:
			e.logger.Info("rate limited, retrying identifier",
				zap.String("identifier", tx.id.String()),
				zap.Duration("wait", v.after),
			)
			if e.metrics != nil {
				e.metrics.IncRateLimitWait()
			}
			if err := e.sleep(ctx, v.after); err != nil {
				return verdict{}, err
			}
			if err := tx.driver.Reload(ctx); err != nil {
				return verdict{}, fmt.Errorf("reload after rate limit: %w", err)
			}
			tx.reset()
			current = stateDispatching
		default:
			return v, nil
		}
	}
}

func (e *Engine) restore(ctx context.Context, driver session.Driver, r recovery) error {
	if r == recoveryReload {
		if err := driver.Reload(ctx); err != nil {
			return err
		}
	}
	return driver.Goto(ctx, e.cfg.VerifyURL)
}

func (e *Engine) dumpDiagnostics(ctx context.Context, driver session.Driver, id domain.Identifier) {
	if e.cfg.DiagnosticsDir == "" {
		return
	}

	dumpCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticsTimeout)
	defer cancel()

	prefix := filepath.Join(e.cfg.DiagnosticsDir, fmt.Sprintf("%s-%d", id, e.now().UTC().Unix()))
	if err := driver.ScreenshotAndDumpHTML(dumpCtx, prefix); err != nil {
		e.logger.Warn("failed to write diagnostics", zap.String("path", prefix), zap.Error(err))
		return
	}
	e.logger.Info("diagnostics written", zap.String("path", prefix))
}

func (e *Engine) observeOutcome(record domain.OutcomeRecord, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	reason := ""
	if record.FailureReason != nil {
		reason = record.FailureReason.String()
	}
	e.metrics.IncOutcome(record.Result.String(), reason)
	e.metrics.ObserveTransactionDuration(record.Result.String(), elapsed)
}

func isElementMissing(err error) bool {
	return errors.Is(err, session.ErrElementNotFound)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
