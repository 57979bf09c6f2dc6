// Package captcha recognizes the access code image guarding the sign-in
// form. Recognition is best effort: a bounded number of automatic attempts,
// refreshing the image between tries, before deferring to the operator.
package captcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/browser"
	"github.com/xkilldash9x/casewatch/internal/config"
	"github.com/xkilldash9x/casewatch/internal/locator"
	"github.com/xkilldash9x/casewatch/internal/ocr"
	"github.com/xkilldash9x/casewatch/internal/vision"
)

// CodePrompter supplies a code from outside the automatic pipeline, typically
// an operator typing what they see. Prompt blocks until a code arrives or the
// context ends.
type CodePrompter interface {
	Prompt(ctx context.Context) (string, error)
}

// Resolver drives the recognition pipeline against the live page.
type Resolver struct {
	drv      browser.Driver
	loc      *locator.Locator
	ex       *ocr.Extractor
	prompter CodePrompter
	cfg      config.CaptchaConfig
	logger   *zap.Logger
}

// NewResolver builds a resolver. prompter may be nil, in which case Obtain
// fails outright when automatic recognition is exhausted.
func NewResolver(drv browser.Driver, loc *locator.Locator, ex *ocr.Extractor,
	prompter CodePrompter, cfg config.CaptchaConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		drv:      drv,
		loc:      loc,
		ex:       ex,
		prompter: prompter,
		cfg:      cfg,
		logger:   logger.Named("captcha"),
	}
}

// Resolve attempts automatic recognition. It returns a code of exactly the
// configured length or ErrRecognitionFailed; no partial results escape. The
// image is refreshed between attempts so a hopeless rendering is not retried
// verbatim.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		code, err := r.attempt(ctx, attempt)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, schemas.ErrRecognitionFailed) {
			return "", err
		}
		r.logger.Warn("Recognition attempt failed",
			zap.Int("attempt", attempt), zap.Int("max_attempts", r.cfg.MaxAttempts))

		if attempt < r.cfg.MaxAttempts {
			if err := r.refresh(ctx); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("all %d attempts exhausted: %w", r.cfg.MaxAttempts, schemas.ErrRecognitionFailed)
}

// Obtain resolves automatically and falls back to the prompter. Manual codes
// are held to the configured minimum length only; operators sometimes face
// codes the length heuristic does not cover.
func (r *Resolver) Obtain(ctx context.Context) (string, error) {
	code, err := r.Resolve(ctx)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, schemas.ErrRecognitionFailed) || r.prompter == nil {
		return "", err
	}

	r.logger.Info("Deferring to manual code entry")
	manual, err := r.prompter.Prompt(ctx)
	if err != nil {
		return "", fmt.Errorf("manual entry: %w", err)
	}
	if len(manual) < r.cfg.ManualMinLength {
		return "", fmt.Errorf("manual code %q shorter than %d: %w",
			manual, r.cfg.ManualMinLength, schemas.ErrInvalidCode)
	}
	return manual, nil
}

// attempt captures the current image and runs every variant family over it.
func (r *Resolver) attempt(ctx context.Context, attempt int) (string, error) {
	el, err := r.loc.Locate(ctx, locator.RoleCaptchaImage)
	if err != nil {
		return "", err
	}
	shot, err := r.drv.Screenshot(ctx, el)
	if err != nil {
		return "", err
	}
	img, _, err := image.Decode(bytes.NewReader(shot))
	if err != nil {
		return "", fmt.Errorf("decode code image: %w", err)
	}

	// Whole-image variants first; they are cheap and win on clean renders.
	for _, v := range vision.WholeImage(img) {
		code, err := r.ex.WholeImage(ctx, v)
		if err == nil {
			r.logger.Info("Code recognized",
				zap.Int("attempt", attempt), zap.String("strategy", v.Strategy))
			return code, nil
		}
		if !errors.Is(err, schemas.ErrRecognitionFailed) {
			return "", err
		}
	}

	// Segmented family: per-glyph reads across channel projections. Track the
	// closest miss for the log line.
	bestPartial := 0
	for _, v := range vision.Segment(img) {
		code, conf, err := r.ex.Segmented(ctx, v)
		if err == nil {
			r.logger.Info("Code recognized glyph by glyph",
				zap.Int("attempt", attempt), zap.String("strategy", v.Strategy))
			return code, nil
		}
		if !errors.Is(err, schemas.ErrRecognitionFailed) {
			return "", err
		}
		if conf > bestPartial {
			bestPartial = conf
		}
	}

	return "", fmt.Errorf("attempt %d best partial %d glyphs: %w",
		attempt, bestPartial, schemas.ErrRecognitionFailed)
}

// refresh requests a new code image, preferring the page's own refresh
// control and falling back to a full reload.
func (r *Resolver) refresh(ctx context.Context) error {
	el, err := r.loc.Locate(ctx, locator.RoleCaptchaRefresh)
	switch {
	case err == nil:
		r.logger.Debug("Refreshing code image via page control")
		if err := r.drv.Click(ctx, el); err != nil {
			if errors.Is(err, schemas.ErrDriverFailure) {
				return err
			}
			if err := r.drv.ScriptClick(ctx, el); err != nil {
				return err
			}
		}
	case errors.Is(err, schemas.ErrElementNotFound):
		r.logger.Debug("No refresh control, reloading page")
		if err := r.drv.Reload(ctx); err != nil {
			return err
		}
	default:
		return err
	}

	select {
	case <-time.After(r.cfg.RefreshDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
