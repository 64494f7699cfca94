package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/nikverify/internal/domain"
	"github.com/kursadbilgin/nikverify/internal/session"
)

const testVerifyURL = "https://portal.test/verify"

// pageState is what the portal shows after an identifier is submitted.
type pageState struct {
	alert    string
	dialogs  []string
	panel    string
	controls map[string]bool
}

func (p pageState) dialog() string {
	if len(p.dialogs) == 0 {
		return ""
	}
	return p.dialogs[0]
}

// fakeDriver replays scripted page states keyed by the submitted identifier.
// Each submit consumes the next scripted state; the last one repeats.
type fakeDriver struct {
	mu sync.Mutex

	sel       Selectors
	responses map[domain.Identifier][]pageState

	url   string
	typed string
	page  pageState

	submitted   []domain.Identifier
	clicks      map[string]int
	typedValues map[string]string
	reloads     int
	gotos       []string
	dumps       []string
	closed      bool

	missing  map[string]bool
	typeErr  map[string]error
	gotoErr  error
	panicOn  string
	queryErr error
}

func newFakeDriver(sel Selectors) *fakeDriver {
	return &fakeDriver{
		sel:         sel,
		responses:   make(map[domain.Identifier][]pageState),
		clicks:      make(map[string]int),
		typedValues: make(map[string]string),
		missing:     make(map[string]bool),
		typeErr:     make(map[string]error),
	}
}

func (f *fakeDriver) script(id domain.Identifier, states ...pageState) {
	f.responses[id] = append(f.responses[id], states...)
}

func (f *fakeDriver) Goto(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.gotoErr != nil {
		return f.gotoErr
	}
	f.url = url
	f.gotos = append(f.gotos, url)
	f.page = pageState{}
	return nil
}

func (f *fakeDriver) WaitFor(_ context.Context, selector string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.maybePanic(selector)
	if f.present(selector) {
		return nil
	}
	return fmt.Errorf("%w: %s", session.ErrElementNotFound, selector)
}

func (f *fakeDriver) Type(_ context.Context, selector string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.maybePanic(selector)
	if err := f.typeErr[selector]; err != nil {
		return err
	}
	f.typed = text
	f.typedValues[selector] = text
	return nil
}

func (f *fakeDriver) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.maybePanic(selector)
	if !f.present(selector) {
		return fmt.Errorf("%w: %s", session.ErrElementNotFound, selector)
	}
	f.clicks[selector]++

	switch selector {
	case f.sel.IdentifierSubmit:
		f.submit()
	case f.sel.AmbiguousContinue, f.sel.UpdateContinue:
		if len(f.page.dialogs) > 0 {
			f.page.dialogs = f.page.dialogs[1:]
		}
	}
	return nil
}

func (f *fakeDriver) QueryText(_ context.Context, selector string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queryErr != nil {
		return "", false, f.queryErr
	}

	var text string
	switch selector {
	case f.sel.Alert:
		text = f.page.alert
	case f.sel.Dialog:
		text = f.page.dialog()
	case f.sel.CustomerPanel:
		text = f.page.panel
	}
	return text, text != "", nil
}

func (f *fakeDriver) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reloads++
	f.page = pageState{}
	return nil
}

func (f *fakeDriver) ScreenshotAndDumpHTML(_ context.Context, pathPrefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dumps = append(f.dumps, pathPrefix)
	return nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

func (f *fakeDriver) submit() {
	id := domain.Identifier(f.typed)
	f.submitted = append(f.submitted, id)

	states := f.responses[id]
	if len(states) == 0 {
		f.page = pageState{}
		return
	}
	f.page = states[0]
	if len(states) > 1 {
		f.responses[id] = states[1:]
	}
}

func (f *fakeDriver) present(selector string) bool {
	if f.missing[selector] {
		return false
	}
	switch selector {
	case f.sel.Username, f.sel.Password, f.sel.LoginSubmit, f.sel.IdentifierInput:
		return true
	case f.sel.Alert:
		return f.page.alert != ""
	case f.sel.Dialog:
		return f.page.dialog() != ""
	case f.sel.CustomerPanel:
		return f.page.panel != ""
	case f.sel.settled():
		return f.page.alert != "" || f.page.dialog() != "" || f.page.panel != ""
	}
	return f.page.controls[selector]
}

func (f *fakeDriver) maybePanic(selector string) {
	if f.panicOn != "" && f.panicOn == selector {
		panic("driver crashed on " + selector)
	}
}

func (f *fakeDriver) submittedCount(id domain.Identifier) int {
	n := 0
	for _, s := range f.submitted {
		if s == id {
			n++
		}
	}
	return n
}

// Page builders.

func checkoutControls(sel Selectors) map[string]bool {
	return map[string]bool{sel.AddItem: true, sel.CheckOrder: true, sel.Pay: true}
}

func customerPanel(name, category string) string {
	return "Informasi Pelanggan\n" + name + "\nNIK terverifikasi\n" + category + "\nUbah"
}

func successPage(sel Selectors, name, category string) pageState {
	return pageState{panel: customerPanel(name, category), controls: checkoutControls(sel)}
}

func alertPage(text string) pageState {
	return pageState{alert: text}
}

func dialogPage(sel Selectors, dialog string, continueSelector string, withContinue bool) pageState {
	page := successPage(sel, "SITI AMINAH", "Rumah Tangga")
	page.dialogs = []string{dialog}
	if withContinue {
		page.controls[continueSelector] = true
	}
	return page
}

var _ session.Driver = (*fakeDriver)(nil)
