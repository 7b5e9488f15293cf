package cli

import (
	"github.com/spf13/cobra"

	"github.com/dukerupert/stockbook/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "stockbook",
		Short:         "Financial reminder dispatch service",
		Long:          "Stockbook reminds users about upcoming and overdue transactions through in-app polling and web push.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "stockbook.yaml", "path to YAML config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newPushCmd(opts))
	cmd.AddCommand(newVAPIDCmd())
	cmd.AddCommand(newSecretCmd())
	cmd.AddCommand(newTokenCmd(opts))
	cmd.AddCommand(newPollCmd())
	return cmd
}

func Execute() error {
	return newRootCmd().Execute()
}
