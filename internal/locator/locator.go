// Package locator resolves page roles to live elements. Target applications
// re-skin their forms frequently, so every role carries an ordered cascade of
// selectors rather than a single brittle one. The first visible, enabled
// element matching any query in the cascade wins.
package locator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/browser"
)

// Role names a functional slot on the page, independent of how the current
// markup happens to express it.
type Role string

const (
	RoleUsername       Role = "username"
	RolePassword       Role = "password"
	RoleCodeEntry      Role = "code-entry"
	RoleSignIn         Role = "sign-in"
	RoleCaptchaImage   Role = "captcha-image"
	RoleCaptchaRefresh Role = "captcha-refresh"
	RoleCaseCheckbox   Role = "case-checkbox"
	RoleWorkSwitch     Role = "work-switch"
	RoleConfirm        Role = "confirm"
)

// Query is one rung of a cascade: a CSS selector plus an optional in-process
// filter for conditions CSS cannot express, like text content or pixel size.
type Query struct {
	Selector string
	Filter   func(browser.ElementHandle) bool
}

func textContains(substrs ...string) func(browser.ElementHandle) bool {
	return func(el browser.ElementHandle) bool {
		for _, s := range substrs {
			if strings.Contains(el.Text, s) {
				return true
			}
		}
		return false
	}
}

// captchaBox bounds the rendered size of a code image. Real code canvases are
// small; anything outside this window is a page decoration.
func captchaBox(el browser.ElementHandle) bool {
	return el.Box.W > 20 && el.Box.W < 200 && el.Box.H > 10 && el.Box.H < 100
}

// registry maps each role to its selector cascade, ordered most specific
// first. The cascades mirror the markup variants seen in production.
var registry = map[Role][]Query{
	RoleUsername: {
		{Selector: `input[placeholder*='account']`},
		{Selector: `input[placeholder*='Account']`},
		{Selector: `input[name='username']`},
		{Selector: `input[name='account']`},
		{Selector: `input[type='text']`},
	},
	RolePassword: {
		{Selector: `input[placeholder*='password']`},
		{Selector: `input[placeholder*='Password']`},
		{Selector: `input[name='password']`},
		{Selector: `input[type='password']`},
	},
	RoleCodeEntry: {
		{Selector: `input[placeholder*='verification']`},
		{Selector: `input[placeholder*='Verification']`},
		{Selector: `input[name='verification']`},
		{Selector: `input[name='captcha']`},
	},
	RoleSignIn: {
		{Selector: `button[type='submit']`},
		{Selector: `input[type='submit']`},
		{Selector: `button`, Filter: textContains("Sign In", "Login", "登录")},
	},
	RoleCaptchaImage: {
		{Selector: `canvas`, Filter: captchaBox},
		{Selector: `img[src*='captcha']`, Filter: captchaBox},
		{Selector: `img[src*='verification']`, Filter: captchaBox},
		{Selector: `img[alt*='captcha']`, Filter: captchaBox},
		{Selector: `img[alt*='verification']`, Filter: captchaBox},
	},
	RoleCaptchaRefresh: {
		{Selector: `button[title*='refresh']`},
		{Selector: `button[title*='Refresh']`},
		{Selector: `button[class*='refresh']`},
		{Selector: `button[class*='reload']`},
		{Selector: `img[alt*='refresh']`},
		{Selector: `img[alt*='Refresh']`},
		{Selector: `a[href*='captcha']`},
		{Selector: `a[href*='verification']`},
	},
	RoleCaseCheckbox: {
		{Selector: `div.ant-table-container input[type='checkbox']`},
		{Selector: `div[class*='ant-table'] input[type='checkbox']`},
		{Selector: `input.ant-checkbox-input`},
		{Selector: `input[type='checkbox']`},
	},
	RoleWorkSwitch: {
		{Selector: `button[role='switch']`},
		{Selector: `button.ant-switch`},
		{Selector: `button[class*='ant-switch']`},
	},
	RoleConfirm: {
		{Selector: `button.Confirm_bottom`},
		{Selector: `button[class*='Confirm_bottom']`},
		{Selector: `button.ant-btn-primary`, Filter: textContains("Confirm")},
		{Selector: `button`, Filter: textContains("Confirm", "confirm")},
		{Selector: `input[value='Confirm']`},
		{Selector: `input[value='confirm']`},
		{Selector: `button.ant-btn-primary`},
	},
}

// Locator resolves roles against a live session.
type Locator struct {
	drv    browser.Driver
	logger *zap.Logger
}

func New(drv browser.Driver, logger *zap.Logger) *Locator {
	return &Locator{drv: drv, logger: logger.Named("locator")}
}

// usable reports whether the element can receive an interaction right now.
func usable(el browser.ElementHandle) bool {
	return el.Visible && el.Enabled
}

// Locate finds the first usable element for the role, walking the cascade in
// priority order. A miss across the whole cascade yields ErrElementNotFound
// after dumping page diagnostics.
func (l *Locator) Locate(ctx context.Context, role Role) (browser.ElementHandle, error) {
	queries, ok := registry[role]
	if !ok {
		return browser.ElementHandle{}, fmt.Errorf("unknown role %q", role)
	}
	for _, q := range queries {
		handles, err := l.drv.Nodes(ctx, q.Selector)
		if err != nil {
			return browser.ElementHandle{}, fmt.Errorf("locate %s: %w", role, err)
		}
		for _, el := range handles {
			if !usable(el) {
				continue
			}
			if q.Filter != nil && !q.Filter(el) {
				continue
			}
			l.logger.Debug("Role resolved",
				zap.String("role", string(role)),
				zap.String("selector", q.Selector),
				zap.String("element_id", el.ID))
			return el, nil
		}
	}
	l.diagnose(ctx, role)
	return browser.ElementHandle{}, fmt.Errorf("locate %s: %w", role, schemas.ErrElementNotFound)
}

// LocateAll returns every usable element matched by the first cascade rung
// that yields any, preserving document order. An empty result is not an
// error; callers treat it as "nothing to do".
func (l *Locator) LocateAll(ctx context.Context, role Role) ([]browser.ElementHandle, error) {
	queries, ok := registry[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	for _, q := range queries {
		handles, err := l.drv.Nodes(ctx, q.Selector)
		if err != nil {
			return nil, fmt.Errorf("locate all %s: %w", role, err)
		}
		var out []browser.ElementHandle
		for _, el := range handles {
			if !usable(el) {
				continue
			}
			if q.Filter != nil && !q.Filter(el) {
				continue
			}
			out = append(out, el)
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, nil
}
