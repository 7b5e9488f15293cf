package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/stockbook/internal/logging"
	"github.com/dukerupert/stockbook/internal/poller"
)

func newPollCmd() *cobra.Command {
	var (
		baseURL  string
		token    string
		interval time.Duration
		watch    bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Print due notifications in the terminal as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("STOCKBOOK_TOKEN")
			}
			if token == "" {
				return errors.New("an access token is required: use --token or STOCKBOOK_TOKEN")
			}
			logger := logging.New(cmd.ErrOrStderr(), logLevel, "text").With("component", "poller")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := poller.NewHTTPClient(baseURL, token)
			p := poller.New(client, poller.NewTextRenderer(cmd.OutOrStdout()), nil, interval, logger)

			triggers := make(chan struct{}, 1)
			if watch {
				go poller.WatchNudges(ctx, client.WebSocketURL(), token, triggers, logger)
			}
			return p.Run(ctx, triggers)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "stockbook server base URL")
	cmd.Flags().StringVar(&token, "token", "", "user access token")
	cmd.Flags().DurationVar(&interval, "interval", poller.DefaultInterval, "polling interval")
	cmd.Flags().BoolVar(&watch, "watch", true, "re-check immediately on server nudges")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	return cmd
}
