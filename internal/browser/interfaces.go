package browser

import (
	"context"
	"time"
)

// Driver launches browser processes. Implementations wrap a concrete
// automation product; the rest of the core depends only on these shapes.
type Driver interface {
	// Launch starts a browser and applies the serialized session seed
	// (cookies captured earlier), which may be empty.
	Launch(ctx context.Context, headless bool, seed []byte) (Browser, error)
}

// Browser is one running automation process with a shared context.
// Multiple logical pages can be opened against it.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	// Cookies serializes the current session state for later seeding.
	Cookies(ctx context.Context) ([]byte, error)
	Close() error
}

// Page is one logical tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// WaitElement blocks until the selector matches or the timeout elapses.
	WaitElement(ctx context.Context, selector string, timeout time.Duration) error
	Elements(ctx context.Context, selector string) ([]Element, error)
	// Eval runs a JS expression on the page (used for scrolling).
	Eval(ctx context.Context, js string) error
	Close() error
}

// Element is one DOM node matched on a page.
type Element interface {
	Text() (string, error)
	HTML() (string, error)
	Attribute(name string) (string, error)
	Click() error
	Visible() (bool, error)
	Elements(selector string) ([]Element, error)
}
