package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/stockbook/internal/database"
	"github.com/dukerupert/stockbook/internal/logging"
	"github.com/dukerupert/stockbook/internal/push"
	"github.com/dukerupert/stockbook/internal/server"
)

func newPushCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push notification batch commands",
	}
	cmd.AddCommand(newPushRunCmd(opts))
	return cmd
}

func newPushRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the push batch once, for an external scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			dispatcher := server.New(cfg, db, logger).Dispatcher()
			if dispatcher == nil {
				return errors.New("push notifications are not configured: set vapid_public_key and vapid_private_key")
			}

			res, err := dispatcher.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
}

func printResult(cmd *cobra.Command, res push.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
