// Package auth drives the sign-in flow: fill credentials, obtain the access
// code, submit, and verify the landing address.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/browser"
	"github.com/xkilldash9x/casewatch/internal/config"
	"github.com/xkilldash9x/casewatch/internal/locator"
)

// CodeSource supplies the access code for the sign-in form.
type CodeSource interface {
	Obtain(ctx context.Context) (string, error)
}

// Flow performs authentication against the target application.
type Flow struct {
	drv    browser.Driver
	loc    *locator.Locator
	codes  CodeSource
	cfg    config.TargetConfig
	creds  schemas.Credentials
	logger *zap.Logger
}

func NewFlow(drv browser.Driver, loc *locator.Locator, codes CodeSource,
	cfg config.TargetConfig, creds schemas.Credentials, logger *zap.Logger) *Flow {
	return &Flow{
		drv:    drv,
		loc:    loc,
		codes:  codes,
		cfg:    cfg,
		creds:  creds,
		logger: logger.Named("auth"),
	}
}

// Authenticated decides session validity from the current address: landing on
// the application marker, or anywhere off the sign-in page, counts as a live
// session.
func (f *Flow) Authenticated(ctx context.Context) (bool, error) {
	url, _, err := f.drv.Location(ctx)
	if err != nil {
		return false, err
	}
	if f.cfg.AppMarker != "" && strings.Contains(url, f.cfg.AppMarker) {
		return true, nil
	}
	return !strings.Contains(url, f.cfg.LoginMarker), nil
}

// Login runs the full sign-in flow. Calling it with a live session is a
// no-op, so callers can invoke it unconditionally after a session doubt.
func (f *Flow) Login(ctx context.Context) error {
	ok, err := f.Authenticated(ctx)
	if err != nil {
		return err
	}
	if ok {
		f.logger.Debug("Session already valid, skipping sign-in")
		return nil
	}

	f.logger.Info("Signing in", zap.String("url", f.cfg.LoginURL))
	if err := f.drv.Navigate(ctx, f.cfg.LoginURL); err != nil {
		return err
	}
	if err := f.settle(ctx); err != nil {
		return err
	}

	username, err := f.loc.Locate(ctx, locator.RoleUsername)
	if err != nil {
		return fmt.Errorf("sign-in form: %w", err)
	}
	password, err := f.loc.Locate(ctx, locator.RolePassword)
	if err != nil {
		return fmt.Errorf("sign-in form: %w", err)
	}
	codeEntry, err := f.loc.Locate(ctx, locator.RoleCodeEntry)
	if err != nil {
		return fmt.Errorf("sign-in form: %w", err)
	}

	if err := f.fill(ctx, username, f.creds.Username); err != nil {
		return err
	}
	if err := f.fill(ctx, password, f.creds.Password); err != nil {
		return err
	}

	// The code image sits on the form we just filled; obtaining the code may
	// refresh it but never navigates away.
	code, err := f.codes.Obtain(ctx)
	if err != nil {
		return fmt.Errorf("access code: %w", err)
	}
	if err := f.fill(ctx, codeEntry, code); err != nil {
		return err
	}

	submit, err := f.loc.Locate(ctx, locator.RoleSignIn)
	if err != nil {
		return fmt.Errorf("sign-in form: %w", err)
	}
	if err := f.click(ctx, submit); err != nil {
		return err
	}
	if err := f.settle(ctx); err != nil {
		return err
	}

	ok, err = f.Authenticated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		url, _, _ := f.drv.Location(ctx)
		return fmt.Errorf("still at %s after submit: %w", url, schemas.ErrAuthenticationFailed)
	}
	f.logger.Info("Signed in")
	return nil
}

// fill clears stale content before typing; forms keep rejected values around.
func (f *Flow) fill(ctx context.Context, el browser.ElementHandle, value string) error {
	if err := f.drv.Clear(ctx, el); err != nil {
		return err
	}
	return f.drv.Type(ctx, el, value)
}

// click tries a real click and falls back to a script-dispatched one, which
// gets past overlays that intercept the hit test.
func (f *Flow) click(ctx context.Context, el browser.ElementHandle) error {
	err := f.drv.Click(ctx, el)
	if err == nil {
		return nil
	}
	if errors.Is(err, schemas.ErrDriverFailure) {
		return err
	}
	f.logger.Debug("Direct click failed, dispatching from script", zap.Error(err))
	if err := f.drv.ScriptClick(ctx, el); err != nil {
		if errors.Is(err, schemas.ErrDriverFailure) {
			return err
		}
		return fmt.Errorf("element %s: %v: %w", el.ID, err, schemas.ErrInteractionFailed)
	}
	return nil
}

func (f *Flow) settle(ctx context.Context) error {
	select {
	case <-time.After(f.cfg.SettleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
