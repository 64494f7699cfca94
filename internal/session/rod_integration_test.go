//go:build integration

package session_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kursadbilgin/nikverify/internal/session"
)

const verifyPage = `<html><body>
<form onsubmit="event.preventDefault(); document.getElementById('out').innerHTML =
  '<div class=\'infoPelangganSubsidi_x\'><p>Informasi</p><p>' + document.getElementById('mantine-r2').value + '</p></div>';">
  <input id="mantine-r2" />
  <button type="submit">Cek</button>
</form>
<div id="out"></div>
</body></html>`

func TestRodDriver_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, verifyPage)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	factory := session.NewRodFactory(session.RodConfig{
		Bin:            os.Getenv("BROWSER_BIN"),
		Headless:       true,
		ElementTimeout: 3 * time.Second,
	}, nil)

	driver, err := factory.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer driver.Close()

	if err := driver.Goto(ctx, ts.URL); err != nil {
		t.Fatalf("Goto() error = %v", err)
	}
	if err := driver.WaitFor(ctx, `input[id="mantine-r2"]`, time.Second); err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}

	if _, ok, err := driver.QueryText(ctx, `[class*="infoPelangganSubsidi"]`); err != nil || ok {
		t.Fatalf("QueryText() before submit = ok %v, err %v", ok, err)
	}

	if err := driver.Type(ctx, `input[id="mantine-r2"]`, "1234567890123456"); err != nil {
		t.Fatalf("Type() error = %v", err)
	}
	if err := driver.Click(ctx, `button[type="submit"]`); err != nil {
		t.Fatalf("Click() error = %v", err)
	}
	if err := driver.WaitFor(ctx, `[class*="infoPelangganSubsidi"]`, 3*time.Second); err != nil {
		t.Fatalf("WaitFor() panel error = %v", err)
	}

	text, ok, err := driver.QueryText(ctx, `[class*="infoPelangganSubsidi"]`)
	if err != nil || !ok {
		t.Fatalf("QueryText() = ok %v, err %v", ok, err)
	}
	if text != "Informasi\n1234567890123456" {
		t.Fatalf("QueryText() = %q", text)
	}

	err = driver.WaitFor(ctx, `[role="dialog"]`, 200*time.Millisecond)
	if !errors.Is(err, session.ErrElementNotFound) {
		t.Fatalf("WaitFor() missing element error = %v, want ErrElementNotFound", err)
	}

	prefix := filepath.Join(t.TempDir(), "diag", "snapshot")
	if err := driver.ScreenshotAndDumpHTML(ctx, prefix); err != nil {
		t.Fatalf("ScreenshotAndDumpHTML() error = %v", err)
	}
	for _, ext := range []string{".png", ".html"} {
		if _, err := os.Stat(prefix + ext); err != nil {
			t.Fatalf("expected %s: %v", prefix+ext, err)
		}
	}

	if err := driver.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if err := driver.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	_ = driver.Close()
}
