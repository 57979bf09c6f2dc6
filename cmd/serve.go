package cmd

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/config"
	"github.com/xkilldash9x/casewatch/internal/control"
	"github.com/xkilldash9x/casewatch/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control surface and serve monitor start/stop requests.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := observability.GetLogger()
	defer observability.Sync()

	factory := func(creds schemas.Credentials, slot *control.CodeSlot) (control.Runner, func(), error) {
		return buildMonitor(cmd.Context(), creds, slot, logger)
	}
	server := control.NewServer(factory, cfg.Control, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
		return err
	}
	return nil
}
