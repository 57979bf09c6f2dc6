package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// tagAttribute marks elements we have handed out handles for. Tagging the node
// and re-addressing it by attribute survives most framework re-renders better
// than positional selectors do.
const tagAttribute = "data-casewatch-id"

// settleDelay is the short pause between scrolling an element into view and
// interacting with it, so asynchronous rendering can catch up.
const settleDelay = 200 * time.Millisecond

// opTimeout bounds any single browser operation.
const opTimeout = 15 * time.Second

// Session is the chromedp-backed Driver implementation. One Session owns one
// browser tab; it is not safe for concurrent callers.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	serial atomic.Uint64
}

var _ Driver = (*Session)(nil)

// newSession wraps an initialized chromedp context.
func newSession(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) *Session {
	id := uuid.New().String()
	s := &Session{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("session").With(zap.String("session_id", id)),
	}

	// Surface in-page errors in our own log; they are often the only hint
	// when a selector cascade stops matching after a frontend deploy.
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			if e.Type == runtime.APITypeError {
				s.logger.Debug("Page console error", zap.Int("args", len(e.Args)))
			}
		case *runtime.EventExceptionThrown:
			s.logger.Debug("Page exception", zap.String("detail", e.ExceptionDetails.Text))
		}
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// run executes chromedp actions against the session tab with a bounded timeout.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(s.ctx, ctx, opTimeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// combineContext derives an operation context from the session's browser
// context while honoring the caller's cancellation and a hard timeout.
func combineContext(sessionCtx, callerCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(sessionCtx, timeout)
	stop := context.AfterFunc(callerCtx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return classify(s.ctx.Err(), "navigate", err)
}

func (s *Session) Location(ctx context.Context) (string, string, error) {
	var urlStr, title string
	err := s.run(ctx,
		chromedp.Location(&urlStr),
		chromedp.Title(&title),
	)
	return urlStr, title, classify(s.ctx.Err(), "location", err)
}

func (s *Session) Reload(ctx context.Context) error {
	err := s.run(ctx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return classify(s.ctx.Err(), "reload", err)
}

// nodesJS enumerates matches for a selector in one page round trip, tagging
// each element so later interactions can address it by attribute. Visibility
// follows the usual rules: non-zero box, not display:none/visibility:hidden.
const nodesJS = `(() => {
	const sel = %s;
	const prefix = %s;
	const out = [];
	document.querySelectorAll(sel).forEach((el, i) => {
		let id = el.getAttribute(%q);
		if (!id) {
			id = prefix + "-" + i;
			el.setAttribute(%q, id);
		}
		const r = el.getBoundingClientRect();
		const cs = getComputedStyle(el);
		const attrs = {};
		for (const a of el.attributes) { attrs[a.name] = a.value; }
		out.push({
			id: id,
			tag: el.tagName.toLowerCase(),
			text: (el.innerText || "").trim().slice(0, 120),
			attrs: attrs,
			box: {x: r.x, y: r.y, w: r.width, h: r.height},
			visible: r.width > 0 && r.height > 0 && cs.visibility !== "hidden" && cs.display !== "none",
			enabled: !el.disabled,
			checked: !!el.checked,
		});
	});
	return out;
})()`

func (s *Session) Nodes(ctx context.Context, selector string) ([]ElementHandle, error) {
	selJSON, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("nodes: bad selector %q: %w", selector, err)
	}
	prefix := fmt.Sprintf("cw-%d", s.serial.Add(1))
	prefixJSON, _ := json.Marshal(prefix)

	js := fmt.Sprintf(nodesJS, selJSON, prefixJSON, tagAttribute, tagAttribute)

	var handles []ElementHandle
	if err := s.run(ctx, chromedp.Evaluate(js, &handles)); err != nil {
		return nil, classify(s.ctx.Err(), "nodes", err)
	}
	return handles, nil
}

func (s *Session) Screenshot(ctx context.Context, el ElementHandle) ([]byte, error) {
	var buf []byte
	err := s.run(ctx,
		chromedp.ScrollIntoView(el.Selector(), chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.Screenshot(el.Selector(), &buf, chromedp.ByQuery),
	)
	if err != nil {
		return nil, classify(s.ctx.Err(), "screenshot", err)
	}
	return buf, nil
}

func (s *Session) Click(ctx context.Context, el ElementHandle) error {
	err := s.run(ctx,
		chromedp.ScrollIntoView(el.Selector(), chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.Click(el.Selector(), chromedp.ByQuery),
	)
	return classify(s.ctx.Err(), "click", err)
}

func (s *Session) ScriptClick(ctx context.Context, el ElementHandle) error {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.click();
		return true;
	})()`, el.Selector())

	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return classify(s.ctx.Err(), "script click", err)
	}
	if !clicked {
		return fmt.Errorf("script click: element %s no longer present", el.ID)
	}
	return nil
}

func (s *Session) Clear(ctx context.Context, el ElementHandle) error {
	err := s.run(ctx, chromedp.Clear(el.Selector(), chromedp.ByQuery))
	return classify(s.ctx.Err(), "clear", err)
}

func (s *Session) Type(ctx context.Context, el ElementHandle, text string) error {
	err := s.run(ctx,
		chromedp.ScrollIntoView(el.Selector(), chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.SendKeys(el.Selector(), text, chromedp.ByQuery),
	)
	return classify(s.ctx.Err(), "type", err)
}

func (s *Session) Checked(ctx context.Context, el ElementHandle) (bool, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return el ? !!el.checked : false;
	})()`, el.Selector())

	var checked bool
	if err := s.run(ctx, chromedp.Evaluate(js, &checked)); err != nil {
		return false, classify(s.ctx.Err(), "checked", err)
	}
	return checked, nil
}

func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", classify(s.ctx.Err(), "outer html", err)
	}
	return html, nil
}

func (s *Session) Close(ctx context.Context) error {
	s.logger.Debug("Closing browser session")
	s.cancel()
	return nil
}
