package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/auth"
	"github.com/xkilldash9x/casewatch/internal/browser"
	"github.com/xkilldash9x/casewatch/internal/captcha"
	"github.com/xkilldash9x/casewatch/internal/config"
	"github.com/xkilldash9x/casewatch/internal/locator"
	"github.com/xkilldash9x/casewatch/internal/monitor"
	"github.com/xkilldash9x/casewatch/internal/ocr"
)

// buildMonitor wires the full stack for one browser session: driver, role
// locator, recognition pipeline, sign-in flow and the monitor on top. The
// returned cleanup closes the session and reaps the browser process.
func buildMonitor(ctx context.Context, creds schemas.Credentials,
	prompter captcha.CodePrompter, logger *zap.Logger) (*monitor.Monitor, func(), error) {
	cfg := config.Get()

	manager, err := browser.NewManager(cfg.Browser, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("browser manager: %w", err)
	}
	session, err := manager.NewSession(ctx)
	if err != nil {
		manager.Shutdown()
		return nil, nil, fmt.Errorf("browser session: %w", err)
	}

	loc := locator.New(session, logger)
	engine := &ocr.Tesseract{TessdataPrefix: cfg.Captcha.TessdataPrefix}
	extractor := ocr.NewExtractor(engine, cfg.Captcha.CodeLength, logger)
	resolver := captcha.NewResolver(session, loc, extractor, prompter, cfg.Captcha, logger)
	flow := auth.NewFlow(session, loc, resolver, cfg.Target, creds, logger)
	mon := monitor.New(session, loc, flow, cfg.Monitor, cfg.Target, logger)

	cleanup := func() {
		if err := session.Close(context.Background()); err != nil {
			logger.Warn("Failed to close browser session", zap.Error(err))
		}
		manager.Shutdown()
	}
	return mon, cleanup, nil
}
