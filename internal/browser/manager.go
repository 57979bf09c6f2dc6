package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/casewatch/internal/config"
)

// Manager owns the browser process. It builds the exec allocator once and
// hands out tab sessions bound to it.
type Manager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewManager launches (lazily, on first session) a Chrome instance configured
// from cfg. Shutdown must be called to reap the process.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	opts := append([]chromedp.ExecAllocatorOption{},
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Manager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		logger:      logger.Named("browser"),
	}, nil
}

// NewSession opens a fresh tab and blocks until the browser is reachable.
func (m *Manager) NewSession(ctx context.Context) (Driver, error) {
	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			m.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// Force the browser process to start now rather than on first navigation,
	// so startup failures surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, classify(nil, "session start", err)
	}

	m.logger.Info("Browser session established")
	return newSession(tabCtx, tabCancel, m.logger), nil
}

// Shutdown tears down the allocator and the browser process with it.
func (m *Manager) Shutdown() {
	m.logger.Info("Shutting down browser manager")
	m.allocCancel()
}
