package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/casewatch/api/schemas"
)

// Box is an element's bounding rectangle in CSS pixels.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ElementHandle is a snapshot of a live DOM element plus a stable handle for
// follow-up interactions. The handle stays valid until the page navigates or
// re-renders the node; interactions on a stale handle fail recoverably.
type ElementHandle struct {
	ID      string            `json:"id"`
	Tag     string            `json:"tag"`
	Text    string            `json:"text"`
	Attrs   map[string]string `json:"attrs"`
	Box     Box               `json:"box"`
	Visible bool              `json:"visible"`
	Enabled bool              `json:"enabled"`
	Checked bool              `json:"checked"`
}

// Attr returns the named attribute or "".
func (e ElementHandle) Attr(name string) string {
	return e.Attrs[name]
}

// Selector returns the tag-attribute CSS selector addressing this element.
func (e ElementHandle) Selector() string {
	return fmt.Sprintf(`[%s=%q]`, tagAttribute, e.ID)
}

// Driver is the browser-control surface the automation core depends on.
// Implementations must be safe for sequential use only; there is exactly one
// in-flight browser operation at a time.
type Driver interface {
	// Navigate loads the given address and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// Location reports the current address and page title.
	Location(ctx context.Context) (url, title string, err error)
	// Reload refreshes the current document.
	Reload(ctx context.Context) error
	// Nodes enumerates all elements matching the CSS selector, tagging each
	// with a stable handle. Zero matches is not an error.
	Nodes(ctx context.Context, selector string) ([]ElementHandle, error)
	// Screenshot captures a PNG of the element's box.
	Screenshot(ctx context.Context, el ElementHandle) ([]byte, error)
	// Click scrolls the element into view, settles briefly, then clicks.
	Click(ctx context.Context, el ElementHandle) error
	// ScriptClick dispatches a click from script, bypassing hit testing. Used
	// as the fallback when a direct Click is intercepted.
	ScriptClick(ctx context.Context, el ElementHandle) error
	// Clear empties a text input, idempotent against stale content.
	Clear(ctx context.Context, el ElementHandle) error
	// Type sends keystrokes to the element.
	Type(ctx context.Context, el ElementHandle, text string) error
	// Checked reports the live checked state of a checkbox or radio.
	Checked(ctx context.Context, el ElementHandle) (bool, error)
	// OuterHTML returns the full serialized document, used for diagnostics.
	OuterHTML(ctx context.Context) (string, error)
	// Close releases the underlying browser session.
	Close(ctx context.Context) error
}

// fatalMarkers are substrings of chromedp/websocket errors that indicate the
// browser process or transport is gone rather than a page-level problem.
var fatalMarkers = []string{
	"websocket",
	"could not dial",
	"chrome failed to start",
	"target closed",
	"session closed",
	"connection refused",
}

// classify wraps a raw driver error, promoting dead-browser conditions to
// schemas.ErrDriverFailure so callers can tell fatal from recoverable.
func classify(sessionErr error, op string, err error) error {
	if err == nil {
		return nil
	}
	if sessionErr != nil {
		return fmt.Errorf("%s: %w: session context done: %v", op, schemas.ErrDriverFailure, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%s: %w: %v", op, schemas.ErrDriverFailure, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
