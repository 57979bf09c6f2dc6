// Package monitor runs the polling loop over the case queue: keep the
// session alive, watch for pending cases, and work exactly one confirmation
// through per cycle unless configured otherwise.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/browser"
	"github.com/xkilldash9x/casewatch/internal/config"
	"github.com/xkilldash9x/casewatch/internal/locator"
)

// Authenticator is the session facade the monitor drives.
type Authenticator interface {
	Authenticated(ctx context.Context) (bool, error)
	Login(ctx context.Context) error
}

// Monitor owns the watch loop and its published status.
type Monitor struct {
	drv    browser.Driver
	loc    *locator.Locator
	auth   Authenticator
	cfg    config.MonitorConfig
	target config.TargetConfig
	logger *zap.Logger

	status    atomic.Pointer[schemas.Status]
	lastCount int
	cycles    int
	processed int
}

func New(drv browser.Driver, loc *locator.Locator, auth Authenticator,
	cfg config.MonitorConfig, target config.TargetConfig, logger *zap.Logger) *Monitor {
	m := &Monitor{
		drv:    drv,
		loc:    loc,
		auth:   auth,
		cfg:    cfg,
		target: target,
		logger: logger.Named("monitor"),
	}
	m.status.Store(&schemas.Status{Session: schemas.SessionUnauthenticated})
	return m
}

// Status returns the latest published snapshot.
func (m *Monitor) Status() schemas.Status {
	return *m.status.Load()
}

// Run polls until the context ends or the browser dies. Page-level errors are
// absorbed with a recovery pause; only ErrDriverFailure escapes, because
// there is nothing left to retry against.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Monitor started",
		zap.Duration("poll_interval", m.cfg.PollInterval),
		zap.String("selection_policy", string(m.cfg.SelectionPolicy)))

	for {
		pause := m.cfg.PollInterval
		if err := m.RunOnce(ctx); err != nil {
			if errors.Is(err, schemas.ErrDriverFailure) || ctx.Err() != nil {
				m.publish(func(s *schemas.Status) {
					s.Running = false
					s.LastError = err.Error()
				})
				return err
			}
			m.logger.Warn("Cycle failed, recovering", zap.Error(err))
			pause = m.cfg.RecoverySleep
		}

		select {
		case <-ctx.Done():
			m.publish(func(s *schemas.Status) { s.Running = false })
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// RunOnce executes a single cycle.
func (m *Monitor) RunOnce(ctx context.Context) error {
	m.cycles++
	m.publish(func(s *schemas.Status) {
		s.Running = true
		s.Cycle = m.cycles
		s.LastCheck = time.Now()
		s.LastError = ""
	})

	err := m.cycle(ctx)
	if err != nil {
		m.publish(func(s *schemas.Status) { s.LastError = err.Error() })
	}
	return err
}

// cycle is the state walk: navigate, verify session, scan, select, confirm.
func (m *Monitor) cycle(ctx context.Context) error {
	if err := m.drv.Navigate(ctx, m.target.AppURL); err != nil {
		return err
	}
	if err := m.settle(ctx); err != nil {
		return err
	}

	ok, err := m.auth.Authenticated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		m.publish(func(s *schemas.Status) { s.Session = schemas.SessionExpired })
		m.logger.Info("Session expired, re-authenticating")
		if err := m.reauthenticate(ctx); err != nil {
			return err
		}
		if err := m.drv.Navigate(ctx, m.target.AppURL); err != nil {
			return err
		}
		if err := m.settle(ctx); err != nil {
			return err
		}
	}
	m.publish(func(s *schemas.Status) { s.Session = schemas.SessionAuthenticated })

	boxes, err := m.loc.LocateAll(ctx, locator.RoleCaseCheckbox)
	if err != nil {
		return err
	}
	m.observeCount(len(boxes))
	if len(boxes) == 0 {
		return nil
	}

	selected, err := m.selectCases(ctx, boxes)
	if err != nil {
		return err
	}
	if selected == 0 {
		m.logger.Debug("All pending cases already selected")
		return nil
	}

	if err := m.enableWorkSwitch(ctx); err != nil {
		return err
	}
	if err := m.confirm(ctx); err != nil {
		return err
	}

	m.processed += selected
	m.publish(func(s *schemas.Status) { s.ProcessedTotal = m.processed })
	m.logger.Info("Cases confirmed", zap.Int("count", selected), zap.Int("total", m.processed))
	return nil
}

// reauthenticate retries sign-in with a backoff between failures, bounded by
// the caller's context.
func (m *Monitor) reauthenticate(ctx context.Context) error {
	m.publish(func(s *schemas.Status) { s.Session = schemas.SessionAuthenticating })
	err := m.auth.Login(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, schemas.ErrDriverFailure) {
		return err
	}

	m.logger.Warn("Re-authentication failed, backing off", zap.Error(err))
	select {
	case <-time.After(m.cfg.AuthBackoff):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := m.auth.Login(ctx); err != nil {
		m.publish(func(s *schemas.Status) { s.Session = schemas.SessionUnauthenticated })
		return fmt.Errorf("re-authentication: %w", err)
	}
	return nil
}

// observeCount publishes the queue depth, logging only on change so a quiet
// queue does not flood the log. The baseline is zero, so an initial empty
// queue logs nothing.
func (m *Monitor) observeCount(count int) {
	if count != m.lastCount {
		m.logger.Info("Pending case count changed",
			zap.Int("count", count), zap.Int("previous", m.lastCount))
		m.lastCount = count
	}
	m.publish(func(s *schemas.Status) { s.CaseCount = count })
}

// selectCases ticks pending checkboxes per the configured policy: the first
// unselected one only, or all of them. Live checked state is consulted so a
// box ticked by a previous cycle is not clicked off again.
func (m *Monitor) selectCases(ctx context.Context, boxes []browser.ElementHandle) (int, error) {
	selected := 0
	for _, box := range boxes {
		checked, err := m.drv.Checked(ctx, box)
		if err != nil {
			return selected, err
		}
		if checked {
			continue
		}
		if err := m.click(ctx, box); err != nil {
			return selected, err
		}
		selected++
		if m.cfg.SelectionPolicy == schemas.SelectOne {
			break
		}
	}
	return selected, nil
}

// enableWorkSwitch flips the availability toggle on when the page has one.
// Pages without the toggle are fine; already-on toggles are left alone.
func (m *Monitor) enableWorkSwitch(ctx context.Context) error {
	sw, err := m.loc.Locate(ctx, locator.RoleWorkSwitch)
	if err != nil {
		if errors.Is(err, schemas.ErrElementNotFound) {
			return nil
		}
		return err
	}
	if sw.Attr("aria-checked") == "true" {
		return nil
	}
	m.logger.Info("Enabling work switch")
	return m.click(ctx, sw)
}

func (m *Monitor) confirm(ctx context.Context) error {
	btn, err := m.loc.Locate(ctx, locator.RoleConfirm)
	if err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	if err := m.click(ctx, btn); err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	return nil
}

func (m *Monitor) click(ctx context.Context, el browser.ElementHandle) error {
	err := m.drv.Click(ctx, el)
	if err == nil {
		return nil
	}
	if errors.Is(err, schemas.ErrDriverFailure) {
		return err
	}
	m.logger.Debug("Direct click failed, dispatching from script", zap.Error(err))
	if err := m.drv.ScriptClick(ctx, el); err != nil {
		if errors.Is(err, schemas.ErrDriverFailure) {
			return err
		}
		return fmt.Errorf("element %s: %v: %w", el.ID, err, schemas.ErrInteractionFailed)
	}
	return nil
}

func (m *Monitor) settle(ctx context.Context) error {
	select {
	case <-time.After(m.target.SettleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish replaces the status snapshot with a mutated copy.
func (m *Monitor) publish(mut func(*schemas.Status)) {
	next := *m.status.Load()
	mut(&next)
	m.status.Store(&next)
}
