// Package session defines the browser capability the portal automation runs
// against, and a go-rod implementation of it.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrElementNotFound is returned when a selector does not resolve within its timeout.
var ErrElementNotFound = errors.New("element not found")

// Driver is one logical browser tab. Every call blocks until the operation
// completes or times out; callers must not share a Driver across goroutines.
type Driver interface {
	Goto(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Type(ctx context.Context, selector string, text string) error
	Click(ctx context.Context, selector string) error
	// QueryText returns the text of the first element matching selector
	// without waiting. ok is false when nothing matches.
	QueryText(ctx context.Context, selector string) (text string, ok bool, err error)
	Reload(ctx context.Context) error
	// ScreenshotAndDumpHTML writes <pathPrefix>.png and <pathPrefix>.html for diagnostics.
	ScreenshotAndDumpHTML(ctx context.Context, pathPrefix string) error
	Close() error
}

// Factory opens one exclusively owned Driver per job.
type Factory interface {
	Open(ctx context.Context) (Driver, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Driver, error)

func (f FactoryFunc) Open(ctx context.Context) (Driver, error) { return f(ctx) }
