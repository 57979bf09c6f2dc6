package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/observability"
)

var (
	flagUsername string
	flagPassword string
)

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Execute a single monitoring cycle and exit.",
	RunE:  runOnce,
}

func init() {
	runOnceCmd.Flags().StringVar(&flagUsername, "username", "", "sign-in username (defaults to CASEWATCH_USERNAME)")
	runOnceCmd.Flags().StringVar(&flagPassword, "password", "", "sign-in password (defaults to CASEWATCH_PASSWORD)")
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	creds := schemas.Credentials{
		Username: flagUsername,
		Password: flagPassword,
	}
	if creds.Username == "" {
		creds.Username = viper.GetString("credentials.username")
	}
	if creds.Password == "" {
		creds.Password = viper.GetString("credentials.password")
	}
	if creds.Username == "" || creds.Password == "" {
		return fmt.Errorf("credentials required: set --username/--password or CASEWATCH_USERNAME/CASEWATCH_PASSWORD")
	}

	// In a terminal run the operator can type the access code directly when
	// recognition gives up.
	mon, cleanup, err := buildMonitor(cmd.Context(), creds, terminalPrompter{}, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return mon.RunOnce(cmd.Context())
}

// terminalPrompter reads a manually entered access code from stdin.
type terminalPrompter struct{}

func (terminalPrompter) Prompt(ctx context.Context) (string, error) {
	fmt.Fprint(os.Stderr, "Enter the access code shown in the browser: ")

	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			errs <- err
			return
		}
		lines <- strings.TrimSpace(line)
	}()

	select {
	case line := <-lines:
		return line, nil
	case err := <-errs:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
