// Package bootstrap assembles the portal automation stack from configuration
// for the binaries.
package bootstrap

import (
	"fmt"

	"github.com/kursadbilgin/nikverify/internal/config"
	"github.com/kursadbilgin/nikverify/internal/observability"
	"github.com/kursadbilgin/nikverify/internal/portal"
	"github.com/kursadbilgin/nikverify/internal/ratelimit"
	"github.com/kursadbilgin/nikverify/internal/service"
	"github.com/kursadbilgin/nikverify/internal/session"
	"go.uber.org/zap"
)

// Portal bundles what a job needs to drive the merchant portal.
type Portal struct {
	Sessions session.Factory
	Auth     *portal.Authenticator
	Engine   *portal.Engine
	LoginURL string
}

// NewPortal wires the rod session factory, the authenticator and the batch
// engine. limiter may be nil when dispatch pacing is disabled.
func NewPortal(
	cfg *config.Config,
	limiter ratelimit.RateLimiter,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Portal, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	selectors := portal.DefaultSelectors()

	sessions := session.NewRodFactory(session.RodConfig{
		Bin:               cfg.BrowserBin,
		Headless:          cfg.BrowserHeadless,
		NavigationTimeout: cfg.NavigationTimeout(),
		ElementTimeout:    cfg.ElementTimeout(),
	}, logger)

	auth := portal.NewAuthenticator(selectors, cfg.ElementTimeout(), cfg.NavigationTimeout(), logger)

	engine, err := portal.NewEngine(portal.EngineConfig{
		VerifyURL:         cfg.PortalVerifyURL,
		Selectors:         selectors,
		Markers:           portal.DefaultMarkers(),
		ElementTimeout:    cfg.ElementTimeout(),
		ProbeTimeout:      cfg.ProbeTimeout(),
		RateLimitPadding:  cfg.RateLimitPadding(),
		RateLimitFallback: cfg.RateLimitFallback(),
		DiagnosticsDir:    cfg.DiagnosticsDir,
	}, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}
	engine.SetMetrics(metrics)

	return &Portal{
		Sessions: sessions,
		Auth:     auth,
		Engine:   engine,
		LoginURL: cfg.PortalLoginURL,
	}, nil
}

// Engines scopes the shared engine to each job's merchant account.
func (p *Portal) Engines() service.EngineFactory {
	return func(account string, logger *zap.Logger) service.BatchEngine {
		return p.Engine.WithAccount(account).WithLogger(logger)
	}
}
