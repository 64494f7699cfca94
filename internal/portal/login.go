package portal

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/nikverify/internal/domain"
	"github.com/kursadbilgin/nikverify/internal/session"
	"go.uber.org/zap"
)

const (
	defaultFormTimeout       = 5 * time.Second
	defaultNavigationTimeout = 15 * time.Second
)

// Authenticator signs a session in to the merchant portal.
type Authenticator struct {
	selectors         Selectors
	formTimeout       time.Duration
	navigationTimeout time.Duration
	logger            *zap.Logger
}

func NewAuthenticator(selectors Selectors, formTimeout, navigationTimeout time.Duration, logger *zap.Logger) *Authenticator {
	if formTimeout <= 0 {
		formTimeout = defaultFormTimeout
	}
	if navigationTimeout <= 0 {
		navigationTimeout = defaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Authenticator{
		selectors:         selectors,
		formTimeout:       formTimeout,
		navigationTimeout: navigationTimeout,
		logger:            logger,
	}
}

// Login reports whether the driver ended up on the authenticated landing
// page. It never returns an error: every failure is logged and reported as false.
func (a *Authenticator) Login(ctx context.Context, driver session.Driver, creds domain.Credentials, loginURL string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("login panicked", zap.Any("panic", r))
			ok = false
		}
	}()

	if err := a.login(ctx, driver, creds, loginURL); err != nil {
		a.logger.Warn("login failed",
			zap.String("loginUrl", loginURL),
			zap.String("username", creds.Username),
			zap.Error(err),
		)
		return false
	}

	a.logger.Info("login succeeded", zap.String("username", creds.Username))
	return true
}

func (a *Authenticator) login(ctx context.Context, driver session.Driver, creds domain.Credentials, loginURL string) error {
	if driver == nil {
		return fmt.Errorf("driver is required")
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	if err := driver.Goto(ctx, loginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := driver.WaitFor(ctx, a.selectors.Username, a.formTimeout); err != nil {
		return fmt.Errorf("login form did not appear: %w", err)
	}
	if err := driver.Type(ctx, a.selectors.Username, creds.Username); err != nil {
		return fmt.Errorf("username field rejected input: %w", err)
	}
	if err := driver.Type(ctx, a.selectors.Password, creds.Password); err != nil {
		return fmt.Errorf("password field rejected input: %w", err)
	}
	if err := driver.Click(ctx, a.selectors.LoginSubmit); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	// The verification input only exists behind the login wall.
	if err := driver.WaitFor(ctx, a.selectors.IdentifierInput, a.navigationTimeout); err != nil {
		return fmt.Errorf("no authenticated page after submit: %w", err)
	}
	return nil
}
