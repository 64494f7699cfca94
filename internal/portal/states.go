package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/nikverify/internal/domain"
	"github.com/kursadbilgin/nikverify/internal/session"
	"go.uber.org/zap"
)

type state int

const (
	stateDispatching state = iota
	stateCheckingRateLimit
	stateCheckingNotFound
	stateCheckingAmbiguous
	stateCheckingUpdateRequired
	stateCheckingQuota
	stateCheckingStock
	stateReadingCustomer
	stateCheckout
)

func (s state) String() string {
	switch s {
	case stateDispatching:
		return "dispatching"
	case stateCheckingRateLimit:
		return "checking_rate_limit"
	case stateCheckingNotFound:
		return "checking_not_found"
	case stateCheckingAmbiguous:
		return "checking_ambiguous"
	case stateCheckingUpdateRequired:
		return "checking_update_required"
	case stateCheckingQuota:
		return "checking_quota"
	case stateCheckingStock:
		return "checking_stock"
	case stateReadingCustomer:
		return "reading_customer"
	case stateCheckout:
		return "checkout"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type verdictKind int

const (
	verdictNone verdictKind = iota
	verdictRetry
	verdictRecord
	verdictStop
)

// recovery is how the page is restored after a recorded outcome.
type recovery int

const (
	recoveryReturn recovery = iota
	recoveryReload
)

type verdict struct {
	kind     verdictKind
	after    time.Duration
	record   domain.OutcomeRecord
	recovery recovery
}

const (
	householdAddClicks = 1
	otherAddClicks     = 3

	// maxFallbackWaits bounds retries for rate-limit banners without a
	// countdown; after that the alert goes through the remaining checks.
	maxFallbackWaits = 3
)

type transaction struct {
	index    int
	id       domain.Identifier
	driver   session.Driver
	progress ProgressFunc
	customer *domain.CustomerInfo

	// fallbackWaits counts rate-limit retries whose banner had no countdown.
	fallbackWaits int
}

func (tx *transaction) reset() {
	tx.customer = nil
}

type stateFn func(ctx context.Context, tx *transaction) (state, verdict, error)

func (e *Engine) handlerFor(s state) stateFn {
	switch s {
	case stateDispatching:
		return e.dispatch
	case stateCheckingRateLimit:
		return e.checkRateLimit
	case stateCheckingNotFound:
		return e.checkNotFound
	case stateCheckingAmbiguous:
		return e.checkAmbiguous
	case stateCheckingUpdateRequired:
		return e.checkUpdateRequired
	case stateCheckingQuota:
		return e.checkQuota
	case stateCheckingStock:
		return e.checkStock
	case stateReadingCustomer:
		return e.readCustomer
	case stateCheckout:
		return e.checkout
	}
	return nil
}

func advance(s state) (state, verdict, error) { return s, verdict{}, nil }

func (e *Engine) record(tx *transaction, reason domain.FailureReason, r recovery) (state, verdict, error) {
	return 0, verdict{
		kind:     verdictRecord,
		record:   domain.NewFailure(tx.id, tx.customer, reason, e.now().UTC()),
		recovery: r,
	}, nil
}

func (e *Engine) dispatch(ctx context.Context, tx *transaction) (state, verdict, error) {
	if e.limiter != nil && e.account != "" {
		if err := e.limiter.Wait(ctx, e.account); err != nil {
			return 0, verdict{}, fmt.Errorf("dispatch pacing: %w", err)
		}
	}

	tx.progress(Progress{Kind: ProgressDispatch, Index: tx.index, Identifier: tx.id})

	sel := e.cfg.Selectors
	if err := tx.driver.WaitFor(ctx, sel.IdentifierInput, e.cfg.ElementTimeout); err != nil {
		return 0, verdict{}, fmt.Errorf("identifier input: %w", err)
	}
	if err := tx.driver.Type(ctx, sel.IdentifierInput, tx.id.String()); err != nil {
		return 0, verdict{}, err
	}
	if err := tx.driver.Click(ctx, sel.IdentifierSubmit); err != nil {
		return 0, verdict{}, err
	}

	// Whatever the portal answers with, one of these renders. A silent page
	// falls through to readCustomer, which fails on its own wait.
	if err := tx.driver.WaitFor(ctx, sel.settled(), e.cfg.ElementTimeout); err != nil && !isElementMissing(err) {
		return 0, verdict{}, err
	}
	return advance(stateCheckingRateLimit)
}

func (e *Engine) checkRateLimit(ctx context.Context, tx *transaction) (state, verdict, error) {
	text, matched, err := e.match(ctx, tx.driver, e.cfg.Selectors.Alert, e.cfg.Markers.RateLimit.MatchString)
	if err != nil || !matched {
		return stateCheckingNotFound, verdict{}, err
	}

	wait, ok := parseWait(text)
	if !ok {
		if tx.fallbackWaits >= maxFallbackWaits {
			e.logger.Warn("alert still present after fallback waits, classifying it",
				zap.String("identifier", tx.id.String()),
				zap.Int("waits", tx.fallbackWaits),
			)
			return stateCheckingNotFound, verdict{}, nil
		}
		tx.fallbackWaits++
		e.logger.Warn("rate limit banner without countdown, using fallback",
			zap.String("identifier", tx.id.String()),
			zap.Duration("fallback", e.cfg.RateLimitFallback),
		)
		wait = e.cfg.RateLimitFallback
	}
	return 0, verdict{kind: verdictRetry, after: wait + e.cfg.RateLimitPadding}, nil
}

func (e *Engine) checkNotFound(ctx context.Context, tx *transaction) (state, verdict, error) {
	_, matched, err := e.match(ctx, tx.driver, e.cfg.Selectors.Alert, e.cfg.Markers.NotFound.MatchString)
	if err != nil || !matched {
		return stateCheckingAmbiguous, verdict{}, err
	}
	return e.record(tx, domain.ReasonNotFound, recoveryReload)
}

func (e *Engine) checkAmbiguous(ctx context.Context, tx *transaction) (state, verdict, error) {
	_, matched, err := e.match(ctx, tx.driver, e.cfg.Selectors.Dialog, e.cfg.Markers.Ambiguous.MatchString)
	if err != nil || !matched {
		return stateCheckingUpdateRequired, verdict{}, err
	}

	clicked, err := e.clickIfPresent(ctx, tx.driver, e.cfg.Selectors.AmbiguousContinue)
	if err != nil {
		return 0, verdict{}, err
	}
	if !clicked {
		return e.record(tx, domain.ReasonAmbiguousMatch, recoveryReload)
	}
	return advance(stateCheckingUpdateRequired)
}

func (e *Engine) checkUpdateRequired(ctx context.Context, tx *transaction) (state, verdict, error) {
	_, matched, err := e.match(ctx, tx.driver, e.cfg.Selectors.Dialog, e.cfg.Markers.UpdateRequired.MatchString)
	if err != nil || !matched {
		return stateCheckingQuota, verdict{}, err
	}

	clicked, err := e.clickIfPresent(ctx, tx.driver, e.cfg.Selectors.UpdateContinue)
	if err != nil {
		return 0, verdict{}, err
	}
	if !clicked {
		return e.record(tx, domain.ReasonUpdateRequired, recoveryReload)
	}
	return advance(stateCheckingQuota)
}

func (e *Engine) checkQuota(ctx context.Context, tx *transaction) (state, verdict, error) {
	_, matched, err := e.match(ctx, tx.driver, e.cfg.Selectors.Alert, e.cfg.Markers.QuotaExceeded.MatchString)
	if err != nil || !matched {
		return stateCheckingStock, verdict{}, err
	}
	return e.record(tx, domain.ReasonQuotaExceeded, recoveryReturn)
}

func (e *Engine) checkStock(ctx context.Context, tx *transaction) (state, verdict, error) {
	_, matched, err := e.match(ctx, tx.driver, e.cfg.Selectors.Alert, e.cfg.Markers.StockExhausted.MatchString)
	if err != nil || !matched {
		return stateReadingCustomer, verdict{}, err
	}
	return 0, verdict{
		kind:   verdictStop,
		record: domain.NewFailure(tx.id, tx.customer, domain.ReasonStockExhausted, e.now().UTC()),
	}, nil
}

func (e *Engine) readCustomer(ctx context.Context, tx *transaction) (state, verdict, error) {
	panel := e.cfg.Selectors.CustomerPanel
	if err := tx.driver.WaitFor(ctx, panel, e.cfg.ElementTimeout); err != nil {
		return 0, verdict{}, fmt.Errorf("customer panel: %w", err)
	}

	text, ok, err := tx.driver.QueryText(ctx, panel)
	if err != nil {
		return 0, verdict{}, err
	}
	if !ok {
		return 0, verdict{}, fmt.Errorf("customer panel disappeared")
	}

	info := parseCustomerPanel(text)
	tx.customer = &info
	return advance(stateCheckout)
}

func (e *Engine) checkout(ctx context.Context, tx *transaction) (state, verdict, error) {
	sel := e.cfg.Selectors
	if tx.customer == nil {
		return 0, verdict{}, fmt.Errorf("checkout without customer info")
	}

	if err := tx.driver.WaitFor(ctx, sel.AddItem, e.cfg.ElementTimeout); err != nil {
		return 0, verdict{}, fmt.Errorf("add item control: %w", err)
	}
	clicks := otherAddClicks
	if tx.customer.IsHousehold() {
		clicks = householdAddClicks
	}
	for i := 0; i < clicks; i++ {
		if err := tx.driver.Click(ctx, sel.AddItem); err != nil {
			return 0, verdict{}, err
		}
	}

	for _, control := range []string{sel.CheckOrder, sel.Pay} {
		if err := tx.driver.WaitFor(ctx, control, e.cfg.ElementTimeout); err != nil {
			if isElementMissing(err) {
				e.logger.Warn("submit control missing",
					zap.String("identifier", tx.id.String()),
					zap.String("selector", control),
				)
				return e.record(tx, domain.ReasonSubmitMissing, recoveryReload)
			}
			return 0, verdict{}, err
		}
		if err := tx.driver.Click(ctx, control); err != nil {
			return 0, verdict{}, err
		}
	}

	return 0, verdict{
		kind:     verdictRecord,
		record:   domain.NewSuccess(tx.id, *tx.customer, e.now().UTC()),
		recovery: recoveryReturn,
	}, nil
}

// match reports whether the element under selector is present and its text
// satisfies matches. It never waits.
func (e *Engine) match(ctx context.Context, driver session.Driver, selector string, matches func(string) bool) (string, bool, error) {
	text, ok, err := driver.QueryText(ctx, selector)
	if err != nil {
		return "", false, err
	}
	if !ok || !matches(text) {
		return "", false, nil
	}
	return text, true, nil
}

func (e *Engine) clickIfPresent(ctx context.Context, driver session.Driver, selector string) (bool, error) {
	if err := driver.WaitFor(ctx, selector, e.cfg.ProbeTimeout); err != nil {
		if isElementMissing(err) {
			return false, nil
		}
		return false, err
	}
	if err := driver.Click(ctx, selector); err != nil {
		return false, err
	}
	return true, nil
}

// parseCustomerPanel reads the name from the second line and the category
// from the second-to-last line of the panel text.
func parseCustomerPanel(text string) domain.CustomerInfo {
	lines := make([]string, 0, 8)
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	var info domain.CustomerInfo
	switch {
	case len(lines) >= 2:
		info.Name = lines[1]
		info.Category = lines[len(lines)-2]
	case len(lines) == 1:
		info.Name = lines[0]
	}

	for _, line := range lines {
		if (domain.CustomerInfo{Category: line}).IsHousehold() {
			info.Category = line
			break
		}
	}
	return info
}
