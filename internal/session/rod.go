package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	defaultViewportWidth     = 1280
	defaultViewportHeight    = 800
	defaultNavigationTimeout = 30 * time.Second
	defaultElementTimeout    = 5 * time.Second
)

// RodConfig controls how browsers are launched for each driver.
type RodConfig struct {
	Bin               string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
}

func (c RodConfig) withDefaults() RodConfig {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = defaultViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = defaultViewportHeight
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = defaultElementTimeout
	}
	return c
}

var _ Factory = (*RodFactory)(nil)

// RodFactory launches a dedicated browser process per driver so jobs never
// share page state.
type RodFactory struct {
	cfg    RodConfig
	logger *zap.Logger
}

func NewRodFactory(cfg RodConfig, logger *zap.Logger) *RodFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodFactory{cfg: cfg.withDefaults(), logger: logger}
}

func (f *RodFactory) Open(ctx context.Context) (Driver, error) {
	l := launcher.New().
		Headless(f.cfg.Headless).
		Set(flags.Flag("no-sandbox")).
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("disable-gpu")).
		Set(flags.Flag("no-first-run")).
		Set(flags.Flag("disable-extensions"))
	if bin := strings.TrimSpace(f.cfg.Bin); bin != "" {
		l = l.Bin(bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             f.cfg.ViewportWidth,
		Height:            f.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		f.logger.Warn("failed to set viewport", zap.Error(err))
	}

	return &RodDriver{
		cfg:      f.cfg,
		launcher: l,
		browser:  browser,
		page:     page,
	}, nil
}

var _ Driver = (*RodDriver)(nil)

// RodDriver drives a single rod page.
type RodDriver struct {
	cfg      RodConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
}

func (d *RodDriver) Goto(ctx context.Context, url string) error {
	page := d.page.Context(ctx).Timeout(d.cfg.NavigationTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (d *RodDriver) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.cfg.ElementTimeout
	}
	if _, err := d.page.Context(ctx).Timeout(timeout).Element(selector); err != nil {
		return wrapElementErr(ctx, selector, err)
	}
	return nil
}

func (d *RodDriver) Type(ctx context.Context, selector string, text string) error {
	el, err := d.page.Context(ctx).Timeout(d.cfg.ElementTimeout).Element(selector)
	if err != nil {
		return wrapElementErr(ctx, selector, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

func (d *RodDriver) Click(ctx context.Context, selector string) error {
	el, err := d.page.Context(ctx).Timeout(d.cfg.ElementTimeout).Element(selector)
	if err != nil {
		return wrapElementErr(ctx, selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// QueryText snapshots the current DOM and evaluates selector against it, so
// absent elements are reported immediately instead of after rod's retry loop.
func (d *RodDriver) QueryText(ctx context.Context, selector string) (string, bool, error) {
	raw, err := d.page.Context(ctx).Timeout(d.cfg.ElementTimeout).HTML()
	if err != nil {
		return "", false, fmt.Errorf("snapshot html: %w", err)
	}
	return queryText(raw, selector)
}

func (d *RodDriver) Reload(ctx context.Context) error {
	page := d.page.Context(ctx).Timeout(d.cfg.NavigationTimeout)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load after reload: %w", err)
	}
	return nil
}

func (d *RodDriver) ScreenshotAndDumpHTML(ctx context.Context, pathPrefix string) error {
	if err := os.MkdirAll(filepath.Dir(pathPrefix), 0o755); err != nil {
		return fmt.Errorf("create diagnostics dir: %w", err)
	}

	page := d.page.Context(ctx).Timeout(d.cfg.ElementTimeout)

	png, err := page.Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if err := os.WriteFile(pathPrefix+".png", png, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}

	raw, err := page.HTML()
	if err != nil {
		return fmt.Errorf("snapshot html: %w", err)
	}
	if err := os.WriteFile(pathPrefix+".html", []byte(raw), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

// Close releases the page, the browser and its process. Safe to call more than once.
func (d *RodDriver) Close() error {
	d.closeOnce.Do(func() {
		if d.page != nil {
			_ = d.page.Close()
		}
		if d.browser != nil {
			d.closeErr = d.browser.Close()
		}
		if d.launcher != nil {
			d.launcher.Kill()
			d.launcher.Cleanup()
		}
	})
	return d.closeErr
}

func wrapElementErr(ctx context.Context, selector string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", selector, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return fmt.Errorf("%s: %w", selector, err)
}

func queryText(raw string, selector string) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", false, fmt.Errorf("parse html: %w", err)
	}

	selection := doc.Find(selector).First()
	if selection.Length() == 0 {
		return "", false, nil
	}
	return blockText(selection), true, nil
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "ul": true,
}

// blockText approximates innerText: inline runs are joined with collapsed
// whitespace and lines break at block elements and <br>.
func blockText(selection *goquery.Selection) string {
	lines := make([]string, 0, 8)
	var current strings.Builder
	flush := func() {
		if line := strings.Join(strings.Fields(current.String()), " "); line != "" {
			lines = append(lines, line)
		}
		current.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			current.WriteString(n.Data)
			return
		case html.ElementNode:
			switch {
			case n.Data == "script" || n.Data == "style":
				return
			case n.Data == "br":
				flush()
				return
			case n.Data == "td" || n.Data == "th":
				current.WriteString(" ")
			case blockElements[n.Data]:
				flush()
				defer flush()
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range selection.Nodes {
		walk(n)
	}
	flush()
	return strings.Join(lines, "\n")
}
